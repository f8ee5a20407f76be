package profiler

import "sync"

// Timer times one scope, writing its span to session (if any) and recording
// a sample on counters (if any) when stopped. Mirrors the original engine's
// InstrumentationTimer, but threadID is supplied by the caller instead of
// hashed from a native thread handle — Go has no stable, cheap thread id,
// and callers that care (the job manager, the ECS system trampoline) already
// know which worker or phase they are running on.
type Timer struct {
	session   *Session
	counters  *Counters
	name      string
	threadID  uint32
	startUS   int64
	stopped   bool
}

// StartTimer begins timing name on threadID. The span and sample are
// recorded by the first call to Stop; later calls have no effect. Either
// session or counters may be nil.
func StartTimer(session *Session, counters *Counters, name string, threadID uint32) *Timer {
	return &Timer{
		session:  session,
		counters: counters,
		name:     name,
		threadID: threadID,
		startUS:  Microtime(),
	}
}

// Stop ends the timer, recording its span and sample. Calling Stop more
// than once has no effect after the first call.
func (t *Timer) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true

	end := Microtime()
	if t.session != nil {
		t.session.WriteSpan(t.name, t.startUS, end, t.threadID)
	}
	if t.counters != nil {
		t.counters.Add(t.name, end-t.startUS)
	}
}

const defaultRingCapacity = 128

// Counters is a bounded ring of named duration samples (microseconds),
// the profiler's sibling to errstack.Stack: a fallible log, queryable by
// the host application, never a control-flow mechanism. Each name gets its
// own fixed-capacity ring; once full, the oldest sample is evicted.
type Counters struct {
	mu       sync.Mutex
	capacity int
	rings    map[string][]int64
	cursor   map[string]int
}

// NewCounters creates an empty ring set. A capacity <= 0 uses a default of
// 128 samples per name.
func NewCounters(capacity int) *Counters {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &Counters{
		capacity: capacity,
		rings:    make(map[string][]int64),
		cursor:   make(map[string]int),
	}
}

// Add records one duration-in-microseconds sample under name.
func (c *Counters) Add(name string, durationUS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ring, ok := c.rings[name]
	if !ok {
		ring = make([]int64, 0, c.capacity)
	}

	if len(ring) < c.capacity {
		ring = append(ring, durationUS)
	} else {
		ring[c.cursor[name]] = durationUS
		c.cursor[name] = (c.cursor[name] + 1) % c.capacity
	}
	c.rings[name] = ring
}

// Samples returns a copy of the duration samples currently held for name,
// oldest-write-order undefined once the ring has wrapped (the ring trades
// order for a fixed memory footprint, same as errstack's trade of a single
// mutex for reentrancy safety).
func (c *Counters) Samples(name string) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ring := c.rings[name]
	out := make([]int64, len(ring))
	copy(out, ring)
	return out
}

// Average returns the mean duration in microseconds for name, or 0 if no
// samples have been recorded.
func (c *Counters) Average(name string) float64 {
	samples := c.Samples(name)
	if len(samples) == 0 {
		return 0
	}

	var sum int64
	for _, v := range samples {
		sum += v
	}
	return float64(sum) / float64(len(samples))
}

// Reset drops every recorded sample for every name.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rings = make(map[string][]int64)
	c.cursor = make(map[string]int)
}
