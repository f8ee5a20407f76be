// Package ecs implements the runtime's entity/component world: a flat
// entity table, name-keyed component storage, parent/child relations,
// prefabs, and phase-ordered systems/observers with a per-entity trampoline.
package ecs

import (
	"sort"
	"sync"

	"github.com/keystone-engine/keystone/internal/profiler"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

// Entity is a 64-bit, monotonically issued identifier.
type Entity uint64

// invalidEntity is never issued by CreateEntity.
const invalidEntity Entity = 0

// Phase is one of the seven ordered update phases a system or observer may
// run in, mirroring the original flecs-backed pipeline stages.
type Phase int

const (
	PhaseOnLoad Phase = iota
	PhasePostLoad
	PhasePreUpdate
	PhaseOnUpdate
	PhasePostUpdate
	PhasePreStore
	PhaseOnStore
	phaseCount
)

// ObserverEvent is the component-lifecycle trigger an observer runs on.
type ObserverEvent int

const (
	EventOnAdd ObserverEvent = iota
	EventOnRemove
	EventOnSet
)

// SystemFunc is invoked once per matched entity by a system or an observer.
type SystemFunc func(w *World, e Entity, userData interface{})

// componentType is a registered component type's reflection-sourced shape.
type componentType struct {
	name      string
	size      uintptr
	alignment uintptr
	tagOnly   bool
}

// tagSentinelSize is used for components with no data (pure tags),
// matching the original's sentinel-size convention for flecs tag
// components.
const tagSentinelSize = 0

type entityRecord struct {
	name       string
	alive      bool
	enabled    bool
	parent     Entity
	children   []Entity
	components map[string]interface{}
	isPrefab   bool
}

type system struct {
	name     string
	filter   string
	phase    Phase
	fn       SystemFunc
	userData interface{}
	enabled  bool
	after    []string // dependency pairs: names of systems this one runs after, within the same phase
}

type observer struct {
	event     ObserverEvent
	component string
	fn        SystemFunc
	userData  interface{}
}

// World holds every entity, component, relation, prefab, system, and
// observer for one ECS instance.
type World struct {
	mu sync.Mutex

	nextEntity Entity
	entities   map[Entity]*entityRecord
	byName     map[string]Entity
	prefabs    map[string]Entity

	componentTypes map[string]*componentType
	registry       *reflectinfo.Registry

	globals map[string]interface{}

	systemsByPhase [phaseCount][]*system
	observers      map[string][]*observer // keyed by component name

	profSession  *profiler.Session
	profCounters *profiler.Counters

	// releaseScriptRef is invoked whenever a script-table component (one
	// whose stored value implements ScriptRef) is removed from an entity or
	// the entity itself is destroyed, so the scripting bridge can release
	// its registry reference and avoid a script-side leak.
	releaseScriptRef func(ScriptRef)
}

// ScriptRef is implemented by component values that wrap a scripting-side
// registry reference (keystone/bindings stores script-table components this
// way). Whenever the owning component is removed or the owning entity is
// destroyed, the ECS world passes these to the releaser installed with
// SetScriptRefReleaser; with no releaser installed, nothing is released.
type ScriptRef interface {
	Release()
}

// NewWorld creates an empty world backed by registry for component-size
// lookups (reflectinfo.Lookup by component name).
func NewWorld(registry *reflectinfo.Registry) *World {
	return &World{
		entities:       make(map[Entity]*entityRecord),
		byName:         make(map[string]Entity),
		prefabs:        make(map[string]Entity),
		componentTypes: make(map[string]*componentType),
		registry:       registry,
		globals:        make(map[string]interface{}),
		observers:      make(map[string][]*observer),
	}
}

// AttachProfiler wires a profiling session and/or counter ring into the
// world: every system run through runPhase becomes a timed scope named
// "system:<name>" on a thread id equal to its phase, feeding both the trace
// file (if session is active) and the duration ring (if counters is
// non-nil). Queries run through RunQuery are not named and are not timed.
func (w *World) AttachProfiler(session *profiler.Session, counters *profiler.Counters) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.profSession = session
	w.profCounters = counters
}

// SetScriptRefReleaser installs the callback invoked when a ScriptRef
// component is removed or its owning entity is destroyed.
func (w *World) SetScriptRefReleaser(fn func(ScriptRef)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseScriptRef = fn
}

func (w *World) componentType(name string) *componentType {
	if ct, ok := w.componentTypes[name]; ok {
		return ct
	}

	ct := &componentType{name: name, tagOnly: true}
	if w.registry != nil {
		if info := w.registry.Lookup(name); info != nil {
			ct.size = info.Size
			ct.alignment = info.Alignment
			ct.tagOnly = info.Size == tagSentinelSize
		}
	}
	w.componentTypes[name] = ct
	return ct
}

// CreateEntity issues a new, enabled, alive entity, optionally named.
func (w *World) CreateEntity(name string) Entity {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextEntity++
	e := w.nextEntity

	w.entities[e] = &entityRecord{name: name, alive: true, enabled: true, components: make(map[string]interface{})}
	if name != "" {
		w.byName[name] = e
	}

	return e
}

// DestroyEntity removes e, releasing any ScriptRef components it holds and
// detaching it from its parent and children.
func (w *World) DestroyEntity(e Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyLocked(e)
}

func (w *World) destroyLocked(e Entity) {
	rec, ok := w.entities[e]
	if !ok || !rec.alive {
		return
	}

	for name, val := range rec.components {
		w.fireObserversLocked(EventOnRemove, name, e)
		if ref, ok := val.(ScriptRef); ok && w.releaseScriptRef != nil {
			w.releaseScriptRef(ref)
		}
	}

	if rec.parent != invalidEntity {
		if p, ok := w.entities[rec.parent]; ok {
			p.children = removeEntity(p.children, e)
		}
	}
	for _, c := range rec.children {
		if child, ok := w.entities[c]; ok {
			child.parent = invalidEntity
		}
	}

	if rec.name != "" {
		delete(w.byName, rec.name)
	}
	delete(w.entities, e)
}

func removeEntity(list []Entity, e Entity) []Entity {
	for i, v := range list {
		if v == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Enable sets e's enabled flag; disabled entities are skipped by system
// and query iteration.
func (w *World) Enable(e Entity, enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.entities[e]; ok {
		rec.enabled = enabled
	}
}

// IsAlive reports whether e currently exists in the world.
func (w *World) IsAlive(e Entity) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.entities[e]
	return ok && rec.alive
}

// Name returns e's registered name, or "".
func (w *World) Name(e Entity) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.entities[e]; ok {
		return rec.name
	}
	return ""
}

// Lookup returns the entity registered under name, or the invalid entity
// (zero) if none.
func (w *World) Lookup(name string) Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.byName[name]
}

// SetComponent attaches or replaces data under the named component type on
// e. Registers the component type (deriving its size from the reflection
// registry, or marking it tag-only) on first use.
func (w *World) SetComponent(e Entity, typeName string, data interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, ok := w.entities[e]
	if !ok {
		return
	}

	w.componentType(typeName)
	rec.components[typeName] = data
	w.fireObserversLocked(EventOnSet, typeName, e)
}

// GetComponent returns e's value for typeName, or (nil, false).
func (w *World) GetComponent(e Entity, typeName string) (interface{}, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.entities[e]
	if !ok {
		return nil, false
	}
	v, ok := rec.components[typeName]
	return v, ok
}

// HasComponent reports whether e currently carries typeName.
func (w *World) HasComponent(e Entity, typeName string) bool {
	_, ok := w.GetComponent(e, typeName)
	return ok
}

// RemoveComponent detaches typeName from e, releasing a ScriptRef value if
// present and firing on-remove observers.
func (w *World) RemoveComponent(e Entity, typeName string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, ok := w.entities[e]
	if !ok {
		return
	}
	val, ok := rec.components[typeName]
	if !ok {
		return
	}

	w.fireObserversLocked(EventOnRemove, typeName, e)
	if ref, ok := val.(ScriptRef); ok && w.releaseScriptRef != nil {
		w.releaseScriptRef(ref)
	}
	delete(rec.components, typeName)
}

// AddChild attaches child under parent, detaching it from any previous
// parent first.
func (w *World) AddChild(parent, child Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()

	childRec, ok := w.entities[child]
	if !ok {
		return
	}
	if _, ok := w.entities[parent]; !ok {
		return
	}

	if childRec.parent != invalidEntity {
		if old, ok := w.entities[childRec.parent]; ok {
			old.children = removeEntity(old.children, child)
		}
	}

	childRec.parent = parent
	w.entities[parent].children = append(w.entities[parent].children, child)
}

// RemoveChild detaches child from parent if it is currently attached there.
func (w *World) RemoveChild(parent, child Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.entities[parent]
	if !ok {
		return
	}
	p.children = removeEntity(p.children, child)

	if c, ok := w.entities[child]; ok && c.parent == parent {
		c.parent = invalidEntity
	}
}

// GetParent returns child's parent, or the invalid entity if it has none.
func (w *World) GetParent(child Entity) Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.entities[child]; ok {
		return rec.parent
	}
	return invalidEntity
}

// CreatePrefab creates an entity marked as a prefab template, registered
// under name for later lookup via GetPrefab.
func (w *World) CreatePrefab(name string) Entity {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextEntity++
	e := w.nextEntity
	w.entities[e] = &entityRecord{name: name, alive: true, components: make(map[string]interface{}), isPrefab: true}
	w.prefabs[name] = e

	return e
}

// GetPrefab returns the prefab entity registered under name, or the
// invalid entity.
func (w *World) GetPrefab(name string) Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prefabs[name]
}

// Instantiate creates a new entity that inherits every component currently
// attached to prefab. Component values are shared by reference (matching
// the original's shallow component copy via reflection-sized memcpy,
// approximated here since Go values are immutable-by-convention at the
// component-storage layer).
func (w *World) Instantiate(prefab Entity) Entity {
	w.mu.Lock()
	defer w.mu.Unlock()

	src, ok := w.entities[prefab]
	if !ok || !src.isPrefab {
		return invalidEntity
	}

	w.nextEntity++
	e := w.nextEntity
	rec := &entityRecord{alive: true, enabled: true, components: make(map[string]interface{}, len(src.components))}
	for k, v := range src.components {
		rec.components[k] = v
	}
	w.entities[e] = rec

	return e
}

// SetGlobal stores a single world-wide value under typeName, replacing any
// previous value.
func (w *World) SetGlobal(typeName string, data interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.globals[typeName] = data
}

// GetGlobal returns the world-wide value stored under typeName, or nil.
func (w *World) GetGlobal(typeName string) interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.globals[typeName]
}

// CreateSystem registers a system running fn over every matched, enabled,
// alive entity during the given phase. after names other systems in the
// same phase this one must run behind (the dependency pairs mentioned
// alongside the seven-phase ordering).
func (w *World) CreateSystem(name, filter string, phase Phase, fn SystemFunc, userData interface{}, after ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := &system{name: name, filter: filter, phase: phase, fn: fn, userData: userData, enabled: true, after: after}
	w.systemsByPhase[phase] = append(w.systemsByPhase[phase], s)
	w.sortPhaseLocked(phase)
}

// sortPhaseLocked orders a phase's systems so that every system with
// "after" dependencies runs strictly later than the systems it names,
// using a stable topological sort with declaration order as the tiebreak.
func (w *World) sortPhaseLocked(phase Phase) {
	list := w.systemsByPhase[phase]
	byName := make(map[string]*system, len(list))
	for _, s := range list {
		byName[s.name] = s
	}

	visited := make(map[string]int) // 0=unvisited 1=visiting 2=done
	var order []*system
	var visit func(s *system)
	visit = func(s *system) {
		if visited[s.name] == 2 || visited[s.name] == 1 {
			return
		}
		visited[s.name] = 1
		for _, dep := range s.after {
			if d, ok := byName[dep]; ok {
				visit(d)
			}
		}
		visited[s.name] = 2
		order = append(order, s)
	}

	for _, s := range list {
		visit(s)
	}
	w.systemsByPhase[phase] = order
}

// EnableSystem toggles whether a system participates in Progress.
func (w *World) EnableSystem(name string, enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, list := range w.systemsByPhase {
		for _, s := range list {
			if s.name == name {
				s.enabled = enabled
				return
			}
		}
	}
}

// CreateObserver registers fn to run whenever event fires for component.
func (w *World) CreateObserver(event ObserverEvent, component string, fn SystemFunc, userData interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers[component] = append(w.observers[component], &observer{event: event, component: component, fn: fn, userData: userData})
}

func (w *World) fireObserversLocked(event ObserverEvent, component string, e Entity) {
	obs := w.observers[component]
	if len(obs) == 0 {
		return
	}
	// Copy so a triggered observer may itself add/remove components or
	// observers without corrupting iteration.
	snapshot := append([]*observer(nil), obs...)
	for _, o := range snapshot {
		if o.event == event {
			fn, ud := o.fn, o.userData
			w.mu.Unlock()
			fn(w, e, ud)
			w.mu.Lock()
		}
	}
}

// matches reports whether entity e satisfies filter. Filter syntax (a
// comma-separated component-name list, e.g. "Position, Velocity") is
// reserved for a future query-language implementation; the trampoline
// currently requires every listed component to be present on e, with an
// empty filter matching every entity.
func (w *World) matches(rec *entityRecord, filter string) bool {
	if filter == "" {
		return true
	}
	for _, name := range splitFilter(filter) {
		if _, ok := rec.components[name]; !ok {
			return false
		}
	}
	return true
}

func splitFilter(filter string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(filter); i++ {
		if i == len(filter) || filter[i] == ',' {
			part := trimSpace(filter[start:i])
			if part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	return parts
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// Progress runs every enabled system, phase by phase in declaration order
// (OnLoad < PostLoad < PreUpdate < OnUpdate < PostUpdate < PreStore <
// OnStore), invoking its trampoline over every matched, enabled, alive
// entity.
func (w *World) Progress(deltaTime float64) {
	for phase := Phase(0); phase < phaseCount; phase++ {
		w.runPhase(phase)
	}
}

func (w *World) runPhase(phase Phase) {
	w.mu.Lock()
	systems := append([]*system(nil), w.systemsByPhase[phase]...)
	session, counters := w.profSession, w.profCounters
	w.mu.Unlock()

	for _, s := range systems {
		if !s.enabled {
			continue
		}

		var timer *profiler.Timer
		if s.name != "" && (session != nil || counters != nil) {
			timer = profiler.StartTimer(session, counters, "system:"+s.name, uint32(phase))
		}

		w.runSystem(s)

		if timer != nil {
			timer.Stop()
		}
	}
}

func (w *World) runSystem(s *system) {
	w.mu.Lock()
	var matched []Entity
	for e, rec := range w.entities {
		if rec.alive && rec.enabled && w.matches(rec, s.filter) {
			matched = append(matched, e)
		}
	}
	w.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i] < matched[j] })

	for _, e := range matched {
		s.fn(w, e, s.userData)
	}
}

// RunQuery runs fn once for every currently alive, enabled entity matching
// filter, without registering a persistent system.
func (w *World) RunQuery(filter string, fn SystemFunc, userData interface{}) {
	w.runSystem(&system{filter: filter, fn: fn, userData: userData, enabled: true})
}
