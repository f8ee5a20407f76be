package ecs

import (
	"testing"

	"github.com/keystone-engine/keystone/internal/memory"
	"github.com/keystone-engine/keystone/internal/profiler"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

func TestCreateEntityAssignsDistinctIDs(t *testing.T) {
	w := NewWorld(nil)
	a := w.CreateEntity("a")
	b := w.CreateEntity("b")

	if a == b {
		t.Fatal("expected distinct entity ids")
	}
	if !w.IsAlive(a) || !w.IsAlive(b) {
		t.Fatal("expected both entities alive")
	}
	if w.Lookup("a") != a {
		t.Fatal("expected name lookup to resolve")
	}
}

func TestSetGetHasRemoveComponent(t *testing.T) {
	w := NewWorld(nil)
	e := w.CreateEntity("")

	w.SetComponent(e, "Position", [2]float64{1, 2})
	if !w.HasComponent(e, "Position") {
		t.Fatal("expected HasComponent true after SetComponent")
	}

	v, ok := w.GetComponent(e, "Position")
	if !ok || v.([2]float64) != [2]float64{1, 2} {
		t.Fatalf("unexpected component value: %v", v)
	}

	w.RemoveComponent(e, "Position")
	if w.HasComponent(e, "Position") {
		t.Fatal("expected HasComponent false after RemoveComponent")
	}
}

type fakeScriptRef struct{ released bool }

func (f *fakeScriptRef) Release() { f.released = true }

func TestDestroyEntityReleasesScriptRefComponents(t *testing.T) {
	w := NewWorld(nil)

	var releasedVia *fakeScriptRef
	w.SetScriptRefReleaser(func(r ScriptRef) {
		releasedVia = r.(*fakeScriptRef)
		r.Release()
	})

	e := w.CreateEntity("")
	ref := &fakeScriptRef{}
	w.SetComponent(e, "ScriptTable", ref)

	w.DestroyEntity(e)

	if releasedVia != ref || !ref.released {
		t.Fatal("expected the script ref to be released on entity destruction")
	}
	if w.IsAlive(e) {
		t.Fatal("expected entity to no longer be alive")
	}
}

func TestRemoveComponentReleasesScriptRef(t *testing.T) {
	w := NewWorld(nil)

	var released bool
	w.SetScriptRefReleaser(func(r ScriptRef) { released = true })

	e := w.CreateEntity("")
	w.SetComponent(e, "ScriptTable", &fakeScriptRef{})
	w.RemoveComponent(e, "ScriptTable")

	if !released {
		t.Fatal("expected script ref release on component removal")
	}
}

func TestParentChildRelation(t *testing.T) {
	w := NewWorld(nil)
	parent := w.CreateEntity("parent")
	child := w.CreateEntity("child")

	w.AddChild(parent, child)
	if w.GetParent(child) != parent {
		t.Fatal("expected child's parent to be set")
	}

	w.RemoveChild(parent, child)
	if w.GetParent(child) != invalidEntity {
		t.Fatal("expected child's parent cleared after RemoveChild")
	}
}

func TestDestroyingParentDetachesChildren(t *testing.T) {
	w := NewWorld(nil)
	parent := w.CreateEntity("parent")
	child := w.CreateEntity("child")
	w.AddChild(parent, child)

	w.DestroyEntity(parent)

	if w.GetParent(child) != invalidEntity {
		t.Fatal("expected child detached after parent destroyed")
	}
}

func TestPrefabInstantiateCopiesComponents(t *testing.T) {
	w := NewWorld(nil)
	prefab := w.CreatePrefab("Goblin")
	w.SetComponent(prefab, "Health", 100)

	if w.GetPrefab("Goblin") != prefab {
		t.Fatal("expected prefab lookup to resolve")
	}

	instance := w.Instantiate(prefab)
	if instance == invalidEntity {
		t.Fatal("expected a valid instantiated entity")
	}

	v, ok := w.GetComponent(instance, "Health")
	if !ok || v.(int) != 100 {
		t.Fatalf("expected instance to inherit Health=100, got %v", v)
	}
}

func TestInstantiateNonPrefabFails(t *testing.T) {
	w := NewWorld(nil)
	e := w.CreateEntity("not-a-prefab")
	if w.Instantiate(e) != invalidEntity {
		t.Fatal("expected instantiating a non-prefab entity to fail")
	}
}

func TestSystemRunsOverMatchingEntitiesInDeclaredPhase(t *testing.T) {
	w := NewWorld(nil)
	moving := w.CreateEntity("moving")
	w.SetComponent(moving, "Velocity", 1)
	still := w.CreateEntity("still")
	_ = still

	var ran []Entity
	w.CreateSystem("move", "Velocity", PhaseOnUpdate, func(w *World, e Entity, userData interface{}) {
		ran = append(ran, e)
	}, nil)

	w.Progress(0.016)

	if len(ran) != 1 || ran[0] != moving {
		t.Fatalf("expected exactly the moving entity to match, got %v", ran)
	}
}

func TestAttachProfilerTimesSystemDispatch(t *testing.T) {
	w := NewWorld(nil)
	w.CreateEntity("e")

	counters := profiler.NewCounters(8)
	w.AttachProfiler(nil, counters)

	w.CreateSystem("move", "", PhaseOnUpdate, func(w *World, e Entity, userData interface{}) {}, nil)
	w.Progress(0.016)
	w.Progress(0.016)

	samples := counters.Samples("system:move")
	if len(samples) != 2 {
		t.Fatalf("expected 2 profiled dispatches, got %d", len(samples))
	}
}

func TestSystemDependencyOrdering(t *testing.T) {
	w := NewWorld(nil)
	e := w.CreateEntity("")

	var order []string
	w.CreateSystem("b", "", PhaseOnUpdate, func(w *World, ent Entity, ud interface{}) {
		order = append(order, "b")
	}, nil, "a")
	w.CreateSystem("a", "", PhaseOnUpdate, func(w *World, ent Entity, ud interface{}) {
		order = append(order, "a")
	}, nil)

	_ = e
	w.Progress(0)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected a before b, got %v", order)
	}
}

func TestDisabledSystemDoesNotRun(t *testing.T) {
	w := NewWorld(nil)
	w.CreateEntity("")

	ran := false
	w.CreateSystem("sys", "", PhaseOnUpdate, func(w *World, e Entity, ud interface{}) { ran = true }, nil)
	w.EnableSystem("sys", false)

	w.Progress(0)

	if ran {
		t.Fatal("expected a disabled system not to run")
	}
}

func TestObserverFiresOnAddAndRemove(t *testing.T) {
	w := NewWorld(nil)
	e := w.CreateEntity("")

	var events []ObserverEvent
	w.CreateObserver(EventOnSet, "Health", func(w *World, ent Entity, ud interface{}) {
		events = append(events, EventOnSet)
	}, nil)
	w.CreateObserver(EventOnRemove, "Health", func(w *World, ent Entity, ud interface{}) {
		events = append(events, EventOnRemove)
	}, nil)

	w.SetComponent(e, "Health", 10)
	w.RemoveComponent(e, "Health")

	if len(events) != 2 || events[0] != EventOnSet || events[1] != EventOnRemove {
		t.Fatalf("unexpected observer event sequence: %v", events)
	}
}

func TestComponentSizeDerivedFromReflection(t *testing.T) {
	registry := reflectinfo.NewRegistry()
	perm := memory.NewLinear()
	reflectinfo.BuilderBegin(registry, perm, "Transform", reflectinfo.KindStruct, 32, 8).BuilderEnd()

	w := NewWorld(registry)
	e := w.CreateEntity("")
	w.SetComponent(e, "Transform", struct{}{})

	ct := w.componentType("Transform")
	if ct.tagOnly {
		t.Fatal("expected Transform to be sized, not tag-only")
	}
	if ct.size != 32 {
		t.Fatalf("expected size 32 from reflection, got %d", ct.size)
	}
}

func TestRunQueryDoesNotRegisterPersistentSystem(t *testing.T) {
	w := NewWorld(nil)
	e := w.CreateEntity("")
	w.SetComponent(e, "Tag", struct{}{})

	calls := 0
	w.RunQuery("Tag", func(w *World, ent Entity, ud interface{}) { calls++ }, nil)
	w.Progress(0) // must not re-run the one-off query

	if calls != 1 {
		t.Fatalf("expected exactly 1 call from RunQuery, got %d", calls)
	}
}
