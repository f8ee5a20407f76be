package bindings

import (
	"testing"

	"github.com/keystone-engine/keystone/internal/event"
	"github.com/keystone-engine/keystone/internal/script"
)

func TestEventsBindingRegisterSubscribePublish(t *testing.T) {
	ctx := script.NewContext(nil)
	defer ctx.Close()
	mgr := event.NewManager()

	RegisterEvents(ctx, mgr)

	err := ctx.DoString("chunk", `
		ev = events.register("damage", {"string", "int32"})
		received_name = nil
		received_amount = nil
		events.subscribe(ev, function(name, amount)
			received_name = name
			received_amount = amount
		end)
		events.publish(ev, "goblin", 7)
	`)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	if got := ctx.VM().GetGlobal("received_name").String(); got != "goblin" {
		t.Fatalf("expected subscriber to receive name %q, got %q", "goblin", got)
	}
	if got := ctx.VM().GetGlobal("received_amount").String(); got != "7" {
		t.Fatalf("expected subscriber to receive amount 7, got %s", got)
	}
}

func TestEventsBindingUnsubscribeStopsDelivery(t *testing.T) {
	ctx := script.NewContext(nil)
	defer ctx.Close()
	mgr := event.NewManager()

	RegisterEvents(ctx, mgr)

	err := ctx.DoString("chunk", `
		ev = events.register("tick", {})
		count = 0
		sub = events.subscribe(ev, function() count = count + 1 end)
		events.publish(ev)
		events.unsubscribe(sub)
		events.publish(ev)
	`)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	if ctx.VM().GetGlobal("count").String() != "1" {
		t.Fatal("expected only the first publish to reach the subscriber")
	}
}

func TestEventsBindingLookupFindsRegisteredEvent(t *testing.T) {
	ctx := script.NewContext(nil)
	defer ctx.Close()
	mgr := event.NewManager()

	RegisterEvents(ctx, mgr)

	if err := ctx.DoString("chunk", `
		events.register("spawn", {})
		found = events.lookup("spawn")
		missing = events.lookup("nope")
	`); err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	if ctx.VM().GetGlobal("found").String() == "0" {
		t.Fatal("expected lookup to resolve a registered event to a nonzero handle")
	}
	if ctx.VM().GetGlobal("missing").String() != "0" {
		t.Fatal("expected lookup of an unregistered name to return the zero handle")
	}
}
