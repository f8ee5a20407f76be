package timer

import (
	"testing"

	"github.com/keystone-engine/keystone/internal/handle"
)

// withDelta bypasses the wall-clock in Update by setting deltaSec directly,
// so ProcessTimers behavior can be tested deterministically.
func withDelta(m *Manager, deltaSec float64) {
	m.mu.Lock()
	m.deltaSec = deltaSec
	m.mu.Unlock()
}

func TestOneShotTimerFiresOnceThenIsCompacted(t *testing.T) {
	m := NewManager()
	h := m.CreateTimer(1_000_000_000, false) // 1 second
	m.Start(h)

	fired := 0
	m.SetCallback(h, func(userData interface{}) { fired++ }, nil)

	withDelta(m, 0.5)
	m.ProcessTimers()
	if fired != 0 {
		t.Fatalf("expected no fire at 0.5s of 1s duration, got %d", fired)
	}

	withDelta(m, 0.6)
	m.ProcessTimers()
	if fired != 1 {
		t.Fatalf("expected exactly 1 fire, got %d", fired)
	}

	if m.IsRunning(h) {
		t.Fatal("expected a non-loop timer to stop running after firing")
	}

	withDelta(m, 10)
	m.ProcessTimers()
	if fired != 1 {
		t.Fatal("expected a destroyed/stopped timer not to fire again")
	}
}

func TestLoopTimerCatchesUpMultipleFires(t *testing.T) {
	m := NewManager()
	h := m.CreateTimer(1_000_000_000, true) // 1 second, loop
	m.Start(h)

	fired := 0
	m.SetCallback(h, func(userData interface{}) { fired++ }, nil)

	// A single big step covering 3.5 periods should fire 3 times and leave
	// 0.5s of elapsed remainder.
	withDelta(m, 3.5)
	m.ProcessTimers()

	if fired != 3 {
		t.Fatalf("expected 3 catch-up fires, got %d", fired)
	}
	if !m.IsRunning(h) {
		t.Fatal("expected a loop timer to keep running")
	}
}

func TestStoppedTimerDoesNotAccumulate(t *testing.T) {
	m := NewManager()
	h := m.CreateTimer(1_000_000_000, false)
	// never started

	fired := 0
	m.SetCallback(h, func(userData interface{}) { fired++ }, nil)

	withDelta(m, 5)
	m.ProcessTimers()

	if fired != 0 {
		t.Fatal("expected a never-started timer not to fire")
	}
}

func TestDestroyRemovesEntryOnNextProcess(t *testing.T) {
	m := NewManager()
	h := m.CreateTimer(1_000_000_000, true)
	m.Start(h)
	m.DestroyTimer(h)

	if m.IsRunning(h) {
		t.Fatal("expected a destroyed timer to no longer be findable as running")
	}
}

func TestUpdateClampsDeltaToMax(t *testing.T) {
	m := NewManager()
	m.lastTick = m.lastTick.Add(-5_000_000_000) // simulate a 5s stall
	m.Update()

	if m.DeltaSec() > maxDeltaSec {
		t.Fatalf("expected delta clamped to %.2f, got %.4f", maxDeltaSec, m.DeltaSec())
	}
}

func TestScaleAffectsDelta(t *testing.T) {
	m := NewManager()
	m.SetScale(0)
	m.lastTick = m.lastTick.Add(-1_000_000_000)
	m.Update()

	if m.DeltaSec() != 0 {
		t.Fatalf("expected zero delta at zero scale, got %.4f", m.DeltaSec())
	}
}

func TestCreateTimerReturnsDistinctHandles(t *testing.T) {
	m := NewManager()
	a := m.CreateTimer(1, false)
	b := m.CreateTimer(1, false)

	if a == b {
		t.Fatal("expected distinct handles for distinct timers")
	}
	if a == handle.Invalid || b == handle.Invalid {
		t.Fatal("expected valid handles")
	}
}
