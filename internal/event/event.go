// Package event implements the runtime's typed publish/subscribe manager:
// idempotent named registration, ordered subscriber lists, and a strictly
// type-checked payload accessed by both native and scripted subscribers.
package event

import (
	"fmt"
	"sync"

	"github.com/keystone-engine/keystone/internal/handle"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

const (
	eventTypeName        = "event"
	subscriptionTypeName = "event.subscription"
)

// Callback receives the published Payload and whatever user data was
// supplied at subscription time.
type Callback func(payload *Payload, userData interface{})

// Arg is one positional value within a published Payload.
type Arg struct {
	Semantic reflectinfo.Semantic
	Value    interface{}
}

// Payload is the promoted argument list passed to subscribers. It is
// immutable once published.
type Payload struct {
	Args []Arg
}

// ArgCount returns the number of positional arguments in the payload.
func (p *Payload) ArgCount() int { return len(p.Args) }

// ArgType returns the declared semantic of argument i, or Unknown if i is
// out of range.
func (p *Payload) ArgType(i int) reflectinfo.Semantic {
	if i < 0 || i >= len(p.Args) {
		return reflectinfo.SemanticUnknown
	}
	return p.Args[i].Semantic
}

// GetBool returns arg i as a bool, or false unless its declared type is Bool.
func (p *Payload) GetBool(i int) bool {
	v, ok := p.typed(i, reflectinfo.SemanticBool)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GetInt returns arg i as an int64, or 0 unless its declared type is an
// integer semantic.
func (p *Payload) GetInt(i int) int64 {
	if i < 0 || i >= len(p.Args) {
		return 0
	}
	a := p.Args[i]
	switch a.Semantic {
	case reflectinfo.SemanticInt8, reflectinfo.SemanticInt16, reflectinfo.SemanticInt32, reflectinfo.SemanticInt64,
		reflectinfo.SemanticUint8, reflectinfo.SemanticUint16, reflectinfo.SemanticUint32, reflectinfo.SemanticUint64:
	default:
		return 0
	}
	switch v := a.Value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		return 0
	}
}

// GetFloat returns arg i as a float64, or 0 unless its declared type is a
// floating-point semantic.
func (p *Payload) GetFloat(i int) float64 {
	if i < 0 || i >= len(p.Args) {
		return 0
	}
	a := p.Args[i]
	if a.Semantic != reflectinfo.SemanticFloat32 && a.Semantic != reflectinfo.SemanticFloat64 {
		return 0
	}
	switch v := a.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		return 0
	}
}

// GetString returns arg i as a string, or "" unless its declared type is
// CString.
func (p *Payload) GetString(i int) string {
	v, ok := p.typed(i, reflectinfo.SemanticCString)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetUserData returns arg i's raw value, or nil unless its declared type is
// UserData.
func (p *Payload) GetUserData(i int) interface{} {
	v, _ := p.typed(i, reflectinfo.SemanticUserData)
	return v
}

// GetAny returns arg i's raw value regardless of declared type, or nil if i
// is out of range.
func (p *Payload) GetAny(i int) interface{} {
	if i < 0 || i >= len(p.Args) {
		return nil
	}
	return p.Args[i].Value
}

func (p *Payload) typed(i int, want reflectinfo.Semantic) (interface{}, bool) {
	if i < 0 || i >= len(p.Args) {
		return nil, false
	}
	a := p.Args[i]
	if a.Semantic != want {
		return nil, false
	}
	return a.Value, true
}

// eventDef is a registered event's signature.
type eventDef struct {
	name  string
	types []reflectinfo.Semantic
	subs  []*subscription
}

type subscription struct {
	event    handle.Handle
	callback Callback
	userData interface{}
}

// Manager is the event system: registration, subscription, and dispatch.
type Manager struct {
	mu sync.RWMutex

	registry *handle.Registry
	eventTID handle.ID
	subTID   handle.ID

	nameToHandle map[string]handle.Handle
	events       map[handle.Handle]*eventDef
	subs         map[handle.Handle]*subscription
}

// NewManager creates an empty event manager.
func NewManager() *Manager {
	r := handle.NewRegistry()
	return &Manager{
		registry:     r,
		eventTID:     r.Register(eventTypeName),
		subTID:       r.Register(subscriptionTypeName),
		nameToHandle: make(map[string]handle.Handle),
		events:       make(map[handle.Handle]*eventDef),
		subs:         make(map[handle.Handle]*subscription),
	}
}

// Register declares an event by name with a fixed argument type list.
// Registering the same name again is idempotent: it returns the existing
// handle without altering its signature.
func (m *Manager) Register(name string, types []reflectinfo.Semantic) handle.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.nameToHandle[name]; ok {
		return h
	}

	h := m.registry.Make(m.eventTID)
	if !h.IsValid() {
		return handle.Invalid
	}

	sig := append([]reflectinfo.Semantic(nil), types...)
	m.events[h] = &eventDef{name: name, types: sig}
	m.nameToHandle[name] = h

	return h
}

// Lookup returns the handle registered under name, or handle.Invalid.
func (m *Manager) Lookup(name string) handle.Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nameToHandle[name]
}

// Name returns the registered name for an event handle, or "".
func (m *Manager) Name(ev handle.Handle) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if def, ok := m.events[ev]; ok {
		return def.name
	}
	return ""
}

// Types returns the declared argument signature for ev, or nil if ev is
// not registered. Used by callers (script bindings in particular) that
// build a Payload themselves and publish it with PublishDirect instead of
// letting Publish promote raw arguments.
func (m *Manager) Types(ev handle.Handle) []reflectinfo.Semantic {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if def, ok := m.events[ev]; ok {
		return append([]reflectinfo.Semantic(nil), def.types...)
	}
	return nil
}

// Subscribe appends callback to ev's subscriber list and returns a
// subscription handle usable with Unsubscribe. Subscribing to an
// unregistered event returns handle.Invalid.
func (m *Manager) Subscribe(ev handle.Handle, cb Callback, userData interface{}) handle.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	def, ok := m.events[ev]
	if !ok {
		return handle.Invalid
	}

	sh := m.registry.Make(m.subTID)
	if !sh.IsValid() {
		return handle.Invalid
	}

	sub := &subscription{event: ev, callback: cb, userData: userData}
	def.subs = append(def.subs, sub)
	m.subs[sh] = sub

	return sh
}

// Unsubscribe removes the subscription identified by sh from whichever
// event's list contains it. Unknown or already-removed handles are a no-op.
func (m *Manager) Unsubscribe(sh handle.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[sh]
	if !ok {
		return
	}
	delete(m.subs, sh)

	def, ok := m.events[sub.event]
	if !ok {
		return
	}
	for i, s := range def.subs {
		if s == sub {
			def.subs = append(def.subs[:i], def.subs[i+1:]...)
			break
		}
	}
}

// promote converts each raw argument to the Arg form expected by the
// event's declared signature. A value whose count differs from the
// declared signature length is promoted positionally up to the shorter of
// the two; extra declared types without a matching argument are omitted.
func promote(types []reflectinfo.Semantic, args []interface{}) []Arg {
	n := len(args)
	if len(types) < n {
		n = len(types)
	}

	out := make([]Arg, n)
	for i := 0; i < n; i++ {
		out[i] = Arg{Semantic: types[i], Value: normalize(types[i], args[i])}
	}
	return out
}

// normalize applies the promotion rule for a single declared semantic,
// mirroring the C variadic promotion table: integers widen to int64,
// single-precision floats widen to float64, and everything else passes
// through unchanged (strings and userdata already own their storage under
// the Go runtime, unlike the buffer-copy the original engine performs).
func normalize(sem reflectinfo.Semantic, v interface{}) interface{} {
	switch sem {
	case reflectinfo.SemanticInt8, reflectinfo.SemanticInt16, reflectinfo.SemanticInt32, reflectinfo.SemanticInt64,
		reflectinfo.SemanticUint8, reflectinfo.SemanticUint16, reflectinfo.SemanticUint32, reflectinfo.SemanticUint64:
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		case uint32:
			return int64(n)
		case int64:
			return n
		case uint64:
			return int64(n)
		}
	case reflectinfo.SemanticFloat32, reflectinfo.SemanticFloat64:
		switch n := v.(type) {
		case float32:
			return float64(n)
		case float64:
			return n
		}
	}
	return v
}

// Publish walks ev's declared signature, promotes each argument, and
// dispatches to every current subscriber. The subscriber list is copied
// under the lock and invoked after release, so a callback may itself
// subscribe or unsubscribe without deadlocking.
func (m *Manager) Publish(ev handle.Handle, args ...interface{}) error {
	m.mu.RLock()
	def, ok := m.events[ev]
	if !ok {
		m.mu.RUnlock()
		return fmt.Errorf("event: publish to unregistered handle %v", ev)
	}
	types := def.types
	subs := append([]*subscription(nil), def.subs...)
	m.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	payload := &Payload{Args: promote(types, args)}
	for _, s := range subs {
		s.callback(payload, s.userData)
	}
	return nil
}

// PublishDirect dispatches an already-built Payload without re-promotion,
// used by script bindings that construct the payload from VM stack values
// directly.
func (m *Manager) PublishDirect(ev handle.Handle, payload *Payload) error {
	m.mu.RLock()
	def, ok := m.events[ev]
	if !ok {
		m.mu.RUnlock()
		return fmt.Errorf("event: publish_direct to unregistered handle %v", ev)
	}
	subs := append([]*subscription(nil), def.subs...)
	m.mu.RUnlock()

	for _, s := range subs {
		s.callback(payload, s.userData)
	}
	return nil
}
