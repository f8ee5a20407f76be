// Package timer implements the runtime's clock and scaled-delta timer
// entries: update() advances the clock, process_timers() steps every
// running entry and fires callbacks, with catch-up subtraction for loop
// timers and deferred compaction for finished one-shots.
package timer

import (
	"sync"
	"time"

	"github.com/keystone-engine/keystone/internal/handle"
)

// maxDeltaSec is the per-update() clamp on scaled delta time, preventing a
// long stall (debugger pause, slow frame) from firing many timers' worth of
// catch-up in one process_timers() call.
const maxDeltaSec = 0.1

const timerTypeName = "timer.entry"

// Callback is invoked when a timer fires, once per expiry (loop timers may
// fire it multiple times within a single process_timers() call when
// catching up after a stall).
type Callback func(userData interface{})

type entry struct {
	handle        handle.Handle
	durationNS    uint64
	elapsedNS     uint64
	loop          bool
	running       bool
	pendingDelete bool
	callback      Callback
	userData      interface{}
}

// Manager is the clock plus the set of timer entries driven by it.
type Manager struct {
	mu sync.Mutex

	registry *handle.Registry
	tid      handle.ID

	lastTick      time.Time
	totalElapsed  uint64
	deltaSec      float64
	scale         float64

	timers []*entry
}

// NewManager creates a manager with its clock started at the current
// instant and a 1.0 time scale.
func NewManager() *Manager {
	r := handle.NewRegistry()
	now := time.Now()
	return &Manager{
		registry: r,
		tid:      r.Register(timerTypeName),
		lastTick: now,
		scale:    1.0,
	}
}

// Update advances the clock: computes the unscaled delta since the previous
// Update, multiplies by the current scale, clamps the result to
// maxDeltaSec, and accumulates total elapsed nanoseconds.
func (m *Manager) Update() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	frame := now.Sub(m.lastTick)
	m.lastTick = now

	scaled := float64(frame.Nanoseconds()) * m.scale
	deltaSec := scaled / 1e9
	if deltaSec > maxDeltaSec {
		deltaSec = maxDeltaSec
		scaled = maxDeltaSec * 1e9
	}
	if deltaSec < 0 {
		deltaSec = 0
		scaled = 0
	}

	m.deltaSec = deltaSec
	m.totalElapsed += uint64(scaled)
}

// TotalElapsedNS returns the accumulated scaled elapsed time since creation.
func (m *Manager) TotalElapsedNS() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalElapsed
}

// DeltaSec returns the clamped scaled delta computed by the most recent
// Update.
func (m *Manager) DeltaSec() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deltaSec
}

// SetScale sets the clock's time multiplier.
func (m *Manager) SetScale(scale float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scale = scale
}

// Scale returns the clock's current time multiplier.
func (m *Manager) Scale() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scale
}

// CreateTimer registers a new, initially-stopped timer entry with the given
// duration and loop flag.
func (m *Manager) CreateTimer(durationNS uint64, loop bool) handle.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.registry.Make(m.tid)
	if !h.IsValid() {
		return handle.Invalid
	}

	m.timers = append(m.timers, &entry{handle: h, durationNS: durationNS, loop: loop})
	return h
}

// DestroyTimer marks h's entry pending-delete; it is removed on the next
// ProcessTimers compaction pass and stops firing immediately.
func (m *Manager) DestroyTimer(h handle.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.find(h); t != nil {
		t.pendingDelete = true
	}
}

func (m *Manager) find(h handle.Handle) *entry {
	for _, t := range m.timers {
		if t.handle == h && !t.pendingDelete {
			return t
		}
	}
	return nil
}

// Start marks h's entry running.
func (m *Manager) Start(h handle.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.find(h); t != nil {
		t.running = true
	}
}

// Stop marks h's entry not running; its elapsed time is preserved.
func (m *Manager) Stop(h handle.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.find(h); t != nil {
		t.running = false
	}
}

// Reset zeroes h's elapsed time without changing its running state.
func (m *Manager) Reset(h handle.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.find(h); t != nil {
		t.elapsedNS = 0
	}
}

// IsRunning reports whether h's entry is currently running.
func (m *Manager) IsRunning(h handle.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(h)
	return t != nil && t.running
}

// IsLooping reports whether h's entry is a loop timer.
func (m *Manager) IsLooping(h handle.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(h)
	return t != nil && t.loop
}

// SetDuration changes h's fire duration.
func (m *Manager) SetDuration(h handle.Handle, durationNS uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.find(h); t != nil {
		t.durationNS = durationNS
	}
}

// SetLoop changes whether h's entry loops.
func (m *Manager) SetLoop(h handle.Handle, loop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.find(h); t != nil {
		t.loop = loop
	}
}

// SetCallback attaches the fire callback and user data for h's entry.
func (m *Manager) SetCallback(h handle.Handle, cb Callback, userData interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.find(h); t != nil {
		t.callback = cb
		t.userData = userData
	}
}

// ProcessTimers steps every running, non-pending-delete entry by the
// current scaled delta (computed from the most recent Update). An entry
// whose elapsed time reaches its duration fires its callback; loop entries
// subtract the duration repeatedly to catch up (possibly firing again if a
// stall let more than one period elapse), non-loop entries stop and are
// marked pending-delete. After the pass, pending-delete entries are
// compacted out of the timer list.
func (m *Manager) ProcessTimers() {
	m.mu.Lock()

	stepNS := uint64(m.deltaSec * 1e9)

	type fire struct {
		cb       Callback
		userData interface{}
	}
	var fires []fire

	for _, t := range m.timers {
		if !t.running || t.pendingDelete {
			continue
		}

		t.elapsedNS += stepNS

		if t.elapsedNS >= t.durationNS {
			if t.callback != nil {
				fires = append(fires, fire{t.callback, t.userData})
			}

			if t.loop {
				for t.durationNS > 0 && t.elapsedNS >= t.durationNS {
					t.elapsedNS -= t.durationNS
					if t.callback != nil && t.elapsedNS >= t.durationNS {
						fires = append(fires, fire{t.callback, t.userData})
					}
				}
			} else {
				t.running = false
				t.elapsedNS = 0
				t.pendingDelete = true
			}
		}
	}

	kept := m.timers[:0]
	for _, t := range m.timers {
		if !t.pendingDelete {
			kept = append(kept, t)
		}
	}
	m.timers = kept

	m.mu.Unlock()

	for _, f := range fires {
		f.cb(f.userData)
	}
}
