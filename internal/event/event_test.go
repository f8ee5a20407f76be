package event

import (
	"testing"

	"github.com/keystone-engine/keystone/internal/handle"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

func TestRegisterIsIdempotentByName(t *testing.T) {
	m := NewManager()

	h1 := m.Register("damage", []reflectinfo.Semantic{reflectinfo.SemanticInt32})
	h2 := m.Register("damage", []reflectinfo.Semantic{reflectinfo.SemanticCString})

	if h1 != h2 {
		t.Fatalf("expected re-registering the same name to return the same handle, got %v and %v", h1, h2)
	}
}

func TestTypesReturnsDeclaredSignature(t *testing.T) {
	m := NewManager()
	h := m.Register("hit", []reflectinfo.Semantic{reflectinfo.SemanticInt32, reflectinfo.SemanticCString})

	types := m.Types(h)
	if len(types) != 2 || types[0] != reflectinfo.SemanticInt32 || types[1] != reflectinfo.SemanticCString {
		t.Fatalf("expected [Int32 CString], got %v", types)
	}

	if got := m.Types(handle.Invalid); got != nil {
		t.Fatalf("expected nil signature for an unregistered handle, got %v", got)
	}
}

func TestSubscribePublishDispatchesToCallback(t *testing.T) {
	m := NewManager()
	ev := m.Register("damage", []reflectinfo.Semantic{reflectinfo.SemanticInt32, reflectinfo.SemanticCString})

	var gotAmount int64
	var gotSource string
	m.Subscribe(ev, func(payload *Payload, userData interface{}) {
		gotAmount = payload.GetInt(0)
		gotSource = payload.GetString(1)
	}, nil)

	if err := m.Publish(ev, 42, "arrow"); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if gotAmount != 42 || gotSource != "arrow" {
		t.Fatalf("expected (42, arrow), got (%d, %q)", gotAmount, gotSource)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewManager()
	ev := m.Register("tick", []reflectinfo.Semantic{reflectinfo.SemanticFloat64})

	calls := 0
	sub := m.Subscribe(ev, func(payload *Payload, userData interface{}) { calls++ }, nil)

	_ = m.Publish(ev, 1.0)
	m.Unsubscribe(sub)
	_ = m.Publish(ev, 2.0)

	if calls != 1 {
		t.Fatalf("expected exactly 1 delivery before unsubscribe, got %d", calls)
	}
}

func TestPublishToUnregisteredHandleFails(t *testing.T) {
	m := NewManager()
	if err := m.Publish(handle.Invalid); err == nil {
		t.Fatal("expected publishing to an unregistered handle to fail")
	}
}

func TestGettersRejectTypeMismatch(t *testing.T) {
	m := NewManager()
	ev := m.Register("mismatch", []reflectinfo.Semantic{reflectinfo.SemanticInt32})

	var payload *Payload
	m.Subscribe(ev, func(p *Payload, userData interface{}) { payload = p }, nil)
	_ = m.Publish(ev, 7)

	if payload.GetString(0) != "" {
		t.Fatal("expected GetString to refuse an int-typed argument")
	}
	if payload.GetInt(0) != 7 {
		t.Fatalf("expected GetInt(0) == 7, got %d", payload.GetInt(0))
	}
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	m := NewManager()
	ev := m.Register("unheard", []reflectinfo.Semantic{reflectinfo.SemanticInt32})

	if err := m.Publish(ev, 7); err != nil {
		t.Fatalf("publish to a subscriberless event failed: %v", err)
	}

	def := m.events[ev]
	if len(def.subs) != 0 {
		t.Fatalf("expected no subscribers to be registered, got %d", len(def.subs))
	}
}

func TestPublishDirectSkipsPromotion(t *testing.T) {
	m := NewManager()
	ev := m.Register("raw", []reflectinfo.Semantic{reflectinfo.SemanticInt32})

	var got int64
	m.Subscribe(ev, func(p *Payload, userData interface{}) { got = p.GetInt(0) }, nil)

	prebuilt := &Payload{Args: []Arg{{Semantic: reflectinfo.SemanticInt32, Value: int64(99)}}}
	if err := m.PublishDirect(ev, prebuilt); err != nil {
		t.Fatalf("publish_direct failed: %v", err)
	}
	if got != 99 {
		t.Fatalf("expected 99, got %d", got)
	}
}

func TestUnsubscribeUnknownHandleIsNoop(t *testing.T) {
	m := NewManager()
	m.Unsubscribe(handle.Invalid) // must not panic
}

func TestSubscriberCanUnsubscribeDuringDispatch(t *testing.T) {
	m := NewManager()
	ev := m.Register("self-remove", nil)

	var sub handle.Handle
	calls := 0
	sub = m.Subscribe(ev, func(p *Payload, userData interface{}) {
		calls++
		m.Unsubscribe(sub)
	}, nil)

	_ = m.Publish(ev)
	_ = m.Publish(ev)

	if calls != 1 {
		t.Fatalf("expected the self-unsubscribing callback to fire exactly once, got %d", calls)
	}
}
