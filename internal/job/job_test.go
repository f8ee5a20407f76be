package job

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/keystone-engine/keystone/internal/profiler"
)

func TestRunWaitExecutesJob(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()

	var ran int32
	counter := m.Run(func(payload interface{}) {
		atomic.AddInt32(&ran, 1)
	}, nil)

	m.Wait(counter)

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected job to run exactly once, ran %d times", ran)
	}
}

func TestDispatchFireAndForget(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()

	done := make(chan struct{})
	m.Dispatch(func(payload interface{}) { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatched job did not run in time")
	}
}

func TestWaitOnNilCounterReturnsImmediately(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()

	done := make(chan struct{})
	go func() {
		m.Wait(nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait(nil) should return immediately")
	}
}

func TestWaitOnChainedJobDoesNotDeadlock(t *testing.T) {
	// A job that itself waits on a second job queued after it must not
	// deadlock the pool: Wait performs work-stealing on the calling
	// goroutine rather than blocking, even if every worker is similarly
	// stuck waiting.
	m := NewManager()
	defer m.Shutdown()

	var innerRan int32
	outer := m.Run(func(payload interface{}) {
		inner := m.Run(func(payload interface{}) {
			atomic.AddInt32(&innerRan, 1)
		}, nil)
		m.Wait(inner)
	}, nil)

	done := make(chan struct{})
	go func() {
		m.Wait(outer)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("chained Wait deadlocked")
	}

	if atomic.LoadInt32(&innerRan) != 1 {
		t.Fatal("inner job never ran")
	}
}

func TestIsBusyReflectsCompletionState(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()

	block := make(chan struct{})
	counter := m.Run(func(payload interface{}) { <-block }, nil)

	if !counter.IsBusy() {
		t.Fatal("expected counter to be busy before the job unblocks")
	}

	close(block)
	m.Wait(counter)
}

func TestManyJobsAllComplete(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()

	const n = 200
	var count int32
	counters := make([]*Counter, n)
	for i := 0; i < n; i++ {
		counters[i] = m.Run(func(payload interface{}) {
			atomic.AddInt32(&count, 1)
		}, nil)
	}
	for _, c := range counters {
		m.Wait(c)
	}

	if atomic.LoadInt32(&count) != n {
		t.Fatalf("expected %d completions, got %d", n, count)
	}
}

func TestAttachProfilerRecordsExecutionSamples(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()

	counters := profiler.NewCounters(16)
	m.AttachProfiler(nil, counters)

	const n = 5
	handles := make([]*Counter, n)
	for i := 0; i < n; i++ {
		handles[i] = m.Run(func(payload interface{}) {}, nil)
	}
	for _, c := range handles {
		m.Wait(c)
	}

	samples := counters.Samples("job.execute")
	if len(samples) != n {
		t.Fatalf("expected %d profiled executions, got %d", n, len(samples))
	}
}

func TestThreadCountIsAtLeastOne(t *testing.T) {
	m := NewManager()
	defer m.Shutdown()

	if m.ThreadCount() < 1 {
		t.Fatalf("expected at least 1 worker, got %d", m.ThreadCount())
	}
}
