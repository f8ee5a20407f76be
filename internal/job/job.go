// Package job implements the runtime's worker pool: fire-and-forget and
// waitable task submission over a shared deque, with work-stealing waits so
// a job blocked on another job's completion never deadlocks the pool.
package job

import (
	"runtime"
	"sync"

	"github.com/keystone-engine/keystone/internal/profiler"
)

// Func is a unit of work submitted to the pool. Payload is whatever the
// caller attached via Run/Dispatch.
type Func func(payload interface{})

type task struct {
	fn      Func
	payload interface{}
	counter *Counter
}

// Counter is a handle returned by Run, used to Wait for the submitted job
// (and any job chained onto the same counter) to finish. It is reference
// counted: one reference for the submitter, one for the worker that runs
// the job, exactly mirroring the original engine's two-owner scheme so a
// counter is only returned to the pool once both sides are done with it.
type Counter struct {
	active int32
	refs   int32
	mu     sync.Mutex
}

func (c *Counter) reset() {
	c.active = 0
	c.refs = 0
}

// IsBusy reports whether the job tracked by this counter has not finished.
func (c *Counter) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active > 0
}

const counterChunkSize = 256

// counterPool recycles Counter values in fixed-size chunks, matching the
// original engine's preallocated-chunk strategy rather than allocating one
// Go object per submitted job.
type counterPool struct {
	mu       sync.Mutex
	freeList []*Counter
}

func newCounterPool(initialChunks int) *counterPool {
	p := &counterPool{}
	for i := 0; i < initialChunks; i++ {
		p.expandLocked()
	}
	return p
}

func (p *counterPool) expandLocked() {
	chunk := make([]Counter, counterChunkSize)
	for i := range chunk {
		p.freeList = append(p.freeList, &chunk[i])
	}
}

func (p *counterPool) allocate() *Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.freeList) == 0 {
		p.expandLocked()
	}

	c := p.freeList[len(p.freeList)-1]
	p.freeList = p.freeList[:len(p.freeList)-1]
	c.reset()
	return c
}

func (p *counterPool) deallocate(c *Counter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeList = append(p.freeList, c)
}

// Manager is the job system: a fixed pool of worker goroutines pulling from
// a shared deque, plus the counter pool backing Run's return handles.
type Manager struct {
	queueMu sync.Mutex
	cond    *sync.Cond
	queue   []task

	counters *counterPool

	stopped  bool
	wg       sync.WaitGroup
	numWorkers int

	profSession  *profiler.Session
	profCounters *profiler.Counters
}

// AttachProfiler wires a profiling session and/or counter ring into the
// pool: every task execution becomes a timed scope named "job.execute" on
// the worker's thread id, feeding both the trace file (if session is
// active) and the duration ring (if counters is non-nil). Either argument
// may be nil to disable that half of the instrumentation.
func (m *Manager) AttachProfiler(session *profiler.Session, counters *profiler.Counters) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	m.profSession = session
	m.profCounters = counters
}

// NewManager spawns max(1, hardware-concurrency-1) worker goroutines and a
// counter pool seeded with 4 chunks (1024 counters), matching the original
// engine's startup allocation.
func NewManager() *Manager {
	cores := runtime.NumCPU()
	workers := cores - 1
	if workers < 1 {
		workers = 1
	}

	m := &Manager{
		numWorkers: workers,
		counters:   newCounterPool(4),
	}
	m.cond = sync.NewCond(&m.queueMu)

	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.workerLoop(uint32(i))
	}

	return m
}

// ThreadCount returns the number of worker goroutines spawned at creation.
func (m *Manager) ThreadCount() int { return m.numWorkers }

// Shutdown signals every worker to stop once the queue drains, and blocks
// until all workers have exited.
func (m *Manager) Shutdown() {
	m.queueMu.Lock()
	m.stopped = true
	m.queueMu.Unlock()
	m.cond.Broadcast()
	m.wg.Wait()
}

func (m *Manager) submit(fn Func, payload interface{}, returnHandle bool) *Counter {
	var c *Counter
	if returnHandle {
		c = m.counters.allocate()
		c.mu.Lock()
		c.active = 1
		c.refs = 2
		c.mu.Unlock()
	}

	m.queueMu.Lock()
	m.queue = append(m.queue, task{fn: fn, payload: payload, counter: c})
	m.queueMu.Unlock()
	m.cond.Signal()

	return c
}

// Run submits fn for asynchronous execution and returns a Counter to Wait
// on. payload is passed through to fn verbatim; callers that need the
// original engine's "deep copy untrusted payload" behavior should clone
// payload themselves before calling Run, since Go values are already
// independently owned (no shared C buffer to race on).
func (m *Manager) Run(fn Func, payload interface{}) *Counter {
	return m.submit(fn, payload, true)
}

// Dispatch submits fn fire-and-forget: no counter is allocated and the
// caller has no way to wait for or query completion.
func (m *Manager) Dispatch(fn Func, payload interface{}) {
	m.submit(fn, payload, false)
}

func (m *Manager) releaseCounter(c *Counter) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.refs--
	done := c.refs == 0
	c.mu.Unlock()
	if done {
		m.counters.deallocate(c)
	}
}

func (m *Manager) executeTask(t task, threadID uint32) {
	m.queueMu.Lock()
	session, counters := m.profSession, m.profCounters
	m.queueMu.Unlock()

	var timer *profiler.Timer
	if session != nil || counters != nil {
		timer = profiler.StartTimer(session, counters, "job.execute", threadID)
	}

	if t.fn != nil {
		t.fn(t.payload)
	}

	if timer != nil {
		timer.Stop()
	}

	if t.counter != nil {
		t.counter.mu.Lock()
		t.counter.active--
		t.counter.mu.Unlock()
		m.releaseCounter(t.counter)
	}
}

// workerLoop is the body run by every worker goroutine: pop under lock,
// sleep on the condition variable when the queue is empty, run outside the
// lock. id identifies this worker for profiling spans.
func (m *Manager) workerLoop(id uint32) {
	defer m.wg.Done()

	for {
		m.queueMu.Lock()
		for len(m.queue) == 0 && !m.stopped {
			m.cond.Wait()
		}
		if len(m.queue) == 0 && m.stopped {
			m.queueMu.Unlock()
			return
		}

		t := m.queue[0]
		m.queue = m.queue[1:]
		m.queueMu.Unlock()

		m.executeTask(t, id)
	}
}

// stealingThreadID marks spans run by a goroutine helping drain the queue
// while waiting on a Counter, rather than one of the fixed worker slots.
const stealingThreadID = 0xFFFFFFFF

// tryStealWork pops and runs one queued task on the calling goroutine,
// reporting whether it found work to do.
func (m *Manager) tryStealWork() bool {
	m.queueMu.Lock()
	if len(m.queue) == 0 {
		m.queueMu.Unlock()
		return false
	}
	t := m.queue[0]
	m.queue = m.queue[1:]
	m.queueMu.Unlock()

	m.executeTask(t, stealingThreadID)
	return true
}

// Wait blocks until counter's active-job count reaches zero. While waiting,
// the calling goroutine helps execute other queued jobs (work-stealing)
// rather than parking idle: this is what lets a job that itself calls Wait
// on a job queued after it avoid deadlocking the pool. A nil counter (a
// Dispatch-submitted job) returns immediately.
func (m *Manager) Wait(counter *Counter) {
	if counter == nil {
		return
	}

	for counter.IsBusy() {
		if !m.tryStealWork() {
			runtime.Gosched()
		}
	}

	m.releaseCounter(counter)
}
