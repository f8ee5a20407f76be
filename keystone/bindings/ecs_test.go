package bindings

import (
	"testing"

	"github.com/keystone-engine/keystone/internal/ecs"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
	"github.com/keystone-engine/keystone/internal/script"
)

func TestECSBindingCreateEntityAndComponentRoundTrip(t *testing.T) {
	ctx := script.NewContext(reflectinfo.NewRegistry())
	defer ctx.Close()
	world := ecs.NewWorld(reflectinfo.NewRegistry())

	RegisterECS(ctx, world)

	err := ctx.DoString("chunk", `
		e = ecs.create_entity("hero")
		ecs.set_component(e, "Position", {x = 1, y = 2})
		pos = ecs.get_component(e, "Position")
		has_pos = ecs.has_component(e, "Position")
	`)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	if ctx.VM().GetGlobal("has_pos").String() != "true" {
		t.Fatal("expected has_component to report true after set_component")
	}
}

func TestECSBindingDestroyEntityReleasesScriptComponent(t *testing.T) {
	ctx := script.NewContext(reflectinfo.NewRegistry())
	defer ctx.Close()
	world := ecs.NewWorld(reflectinfo.NewRegistry())

	RegisterECS(ctx, world)

	err := ctx.DoString("chunk", `
		e = ecs.create_entity("thing")
		ecs.set_component(e, "Tag", {})
		ecs.destroy_entity(e)
		alive = ecs.is_alive(e)
	`)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	if ctx.VM().GetGlobal("alive").String() != "false" {
		t.Fatal("expected entity to report not alive after destroy_entity")
	}
}

func TestECSBindingSystemRunsOverMatchingEntities(t *testing.T) {
	ctx := script.NewContext(reflectinfo.NewRegistry())
	defer ctx.Close()
	world := ecs.NewWorld(reflectinfo.NewRegistry())

	RegisterECS(ctx, world)

	err := ctx.DoString("chunk", `
		e1 = ecs.create_entity("a")
		e2 = ecs.create_entity("b")
		ecs.set_component(e1, "Moving", {})

		seen = 0
		ecs.create_system("movement", "Moving", ecs.Phase.OnUpdate, function(entity)
			seen = seen + 1
		end)

		ecs.progress(1.0 / 60.0)
	`)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	if ctx.VM().GetGlobal("seen").String() != "1" {
		t.Fatalf("expected system to run exactly once over the one matching entity, got %s",
			ctx.VM().GetGlobal("seen").String())
	}
}

func TestECSBindingObserverFiresOnSet(t *testing.T) {
	ctx := script.NewContext(reflectinfo.NewRegistry())
	defer ctx.Close()
	world := ecs.NewWorld(reflectinfo.NewRegistry())

	RegisterECS(ctx, world)

	err := ctx.DoString("chunk", `
		set_fired = false
		ecs.create_observer(ecs.Event.OnSet, "Health", function(entity)
			set_fired = true
		end)

		e = ecs.create_entity("target")
		ecs.set_component(e, "Health", {hp = 10})
	`)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	if ctx.VM().GetGlobal("set_fired").String() != "true" {
		t.Fatal("expected OnSet observer to fire when set_component is called")
	}
}

func TestECSBindingRunQueryDoesNotRegisterPersistentSystem(t *testing.T) {
	ctx := script.NewContext(reflectinfo.NewRegistry())
	defer ctx.Close()
	world := ecs.NewWorld(reflectinfo.NewRegistry())

	RegisterECS(ctx, world)

	err := ctx.DoString("chunk", `
		e = ecs.create_entity("solo")
		ecs.set_component(e, "Flag", {})

		count = 0
		ecs.run_query("Flag", function(entity) count = count + 1 end)
		ecs.progress(1.0 / 60.0)
	`)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	if ctx.VM().GetGlobal("count").String() != "1" {
		t.Fatalf("expected run_query to visit the matching entity exactly once, got %s",
			ctx.VM().GetGlobal("count").String())
	}
}
