// Package memory provides tagged, lifetime-classified allocation for the
// KeyStone runtime: a frame arena, a permanent linear allocator, a
// size-sorted pool set, and a system fallback, all tracked through one
// global allocation map.
package memory

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Lifetime classifies which allocator owns release of a block.
type Lifetime int

const (
	// LifetimeUserManaged blocks are released explicitly via Dealloc.
	LifetimeUserManaged Lifetime = iota
	// LifetimePermanent blocks live until process shutdown.
	LifetimePermanent
	// LifetimeFrame blocks are released in bulk at the next frame reset.
	LifetimeFrame
	// LifetimeScoped blocks are released in bulk when their owning scope ends.
	LifetimeScoped
)

func (l Lifetime) String() string {
	switch l {
	case LifetimeUserManaged:
		return "user-managed"
	case LifetimePermanent:
		return "permanent"
	case LifetimeFrame:
		return "frame"
	case LifetimeScoped:
		return "scoped"
	default:
		return "unknown"
	}
}

// Tag is a purely informational classification used by the statistics
// aggregator; it has no bearing on which allocator owns a block.
type Tag int

const (
	TagInternal Tag = iota
	TagResource
	TagScript
	TagPlugin
	TagJob
	TagGarbage
)

func (t Tag) String() string {
	switch t {
	case TagInternal:
		return "internal"
	case TagResource:
		return "resource"
	case TagScript:
		return "script"
	case TagPlugin:
		return "plugin"
	case TagJob:
		return "job"
	case TagGarbage:
		return "garbage"
	default:
		return "unknown"
	}
}

// Record is the bookkeeping entry kept in the global allocation map for
// every pointer handed out by the Manager.
type Record struct {
	Ptr       unsafe.Pointer
	Size      uintptr
	Lifetime  Lifetime
	Tag       Tag
	Owner     owningAllocator
	DebugName string

	// slice keeps the backing Go allocation reachable so the GC does not
	// reclaim it out from under an unsafe.Pointer held only by C-style code.
	slice []byte
}

type owningAllocator interface {
	free(ptr unsafe.Pointer)
}

// Stats aggregates allocation counts and bytes, optionally filtered by tag.
type Stats struct {
	AllocationCount uint64
	FreeCount       uint64
	BytesInUse      uintptr
	ActiveCount     int
	ByTag           map[Tag]TagStats
}

// TagStats is a per-tag breakdown within Stats.
type TagStats struct {
	Count int
	Bytes uintptr
}

// Manager is the top-level memory subsystem: it owns the frame arena, the
// permanent linear allocator, the pool set, and the global allocation map
// that every other allocator's output is recorded into.
type Manager struct {
	mu       sync.Mutex
	records  map[unsafe.Pointer]*Record
	frame    *Arena
	perm     *Linear
	pools    *PoolSet
	shutdown int32

	allocCount uint64
	freeCount  uint64
}

// DefaultFrameArenaSize matches the original engine's default bump-allocator
// capacity for a single frame's worth of transient allocations.
const DefaultFrameArenaSize = 16 * 1024 * 1024

// NewManager creates a memory subsystem with a frame arena of the given
// capacity (DefaultFrameArenaSize if zero) and the standard pool-set size
// classes.
func NewManager(frameArenaSize uintptr) *Manager {
	if frameArenaSize == 0 {
		frameArenaSize = DefaultFrameArenaSize
	}

	return &Manager{
		records: make(map[unsafe.Pointer]*Record),
		frame:   NewArena(frameArenaSize),
		perm:    NewLinear(),
		pools:   NewPoolSet(),
	}
}

// Alloc allocates size bytes with the given lifetime/tag classification and
// records the result in the global allocation map. Returns nil on failure
// (including when size is 0 or the subsystem has been shut down).
func (m *Manager) Alloc(size uintptr, lifetime Lifetime, tag Tag, debugName string) unsafe.Pointer {
	if size == 0 || atomic.LoadInt32(&m.shutdown) != 0 {
		return nil
	}

	var (
		ptr   unsafe.Pointer
		owner owningAllocator
		raw   []byte
	)

	switch lifetime {
	case LifetimeFrame:
		ptr = m.frame.Alloc(size)
		owner = m.frame
	case LifetimePermanent:
		ptr = m.perm.Alloc(size)
		owner = m.perm
	case LifetimeScoped, LifetimeUserManaged:
		var (
			p  unsafe.Pointer
			s  []byte
			ok bool
		)
		if tag == TagResource {
			p, s, ok = m.pools.Alloc(size)
		}
		if ok {
			ptr, raw, owner = p, s, m.pools
		} else {
			raw = systemAlloc(size)
			if raw != nil {
				ptr = unsafe.Pointer(&raw[0])
			}
			owner = systemFallback{}
		}
	default:
		return nil
	}

	if ptr == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[ptr]; exists {
		// alloc must never return a pointer already tracked.
		panic("memory: allocator returned an already-tracked pointer")
	}

	m.records[ptr] = &Record{
		Ptr:       ptr,
		Size:      size,
		Lifetime:  lifetime,
		Tag:       tag,
		Owner:     owner,
		DebugName: debugName,
		slice:     raw,
	}
	m.allocCount++

	return ptr
}

// Dealloc releases ptr through the allocator that produced it. Untracked
// pointers fall back to the system allocator (a no-op under Go's GC, but the
// record bookkeeping behaves as the spec requires). A no-op after Shutdown.
func (m *Manager) Dealloc(ptr unsafe.Pointer) {
	if ptr == nil || atomic.LoadInt32(&m.shutdown) != 0 {
		return
	}

	m.mu.Lock()
	rec, ok := m.records[ptr]
	if ok {
		delete(m.records, ptr)
	}
	m.freeCount++
	m.mu.Unlock()

	if !ok {
		systemFallback{}.free(ptr)
		return
	}

	rec.Owner.free(ptr)
}

// Realloc is supported only for system-allocated user-managed blocks; for
// arena/pool/permanent blocks it returns nil (an error per the spec).
func (m *Manager) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	if ptr == nil {
		return m.Alloc(newSize, LifetimeUserManaged, TagInternal, "")
	}

	m.mu.Lock()
	rec, ok := m.records[ptr]
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if _, isSystem := rec.Owner.(systemFallback); !isSystem {
		return nil
	}

	newPtr := m.Alloc(newSize, rec.Lifetime, rec.Tag, rec.DebugName)
	if newPtr == nil {
		return nil
	}

	copySize := rec.Size
	if newSize < copySize {
		copySize = newSize
	}
	copyMemory(newPtr, ptr, copySize)
	m.Dealloc(ptr)

	return newPtr
}

// ResetFrame bulk-releases every frame-lifetime allocation. Called once per
// frame boundary by the host application.
func (m *Manager) ResetFrame() {
	m.mu.Lock()
	for ptr, rec := range m.records {
		if rec.Lifetime == LifetimeFrame {
			delete(m.records, ptr)
		}
	}
	m.mu.Unlock()
	m.frame.Reset()
}

// cleanupUserManaged frees every still-tracked user-managed block.
func (m *Manager) cleanupUserManaged() {
	m.mu.Lock()
	victims := make([]*Record, 0)
	for ptr, rec := range m.records {
		if rec.Lifetime == LifetimeUserManaged || rec.Lifetime == LifetimeScoped {
			victims = append(victims, rec)
			delete(m.records, ptr)
		}
	}
	m.mu.Unlock()

	for _, rec := range victims {
		rec.Owner.free(rec.Ptr)
	}
}

// Shutdown performs cleanupUserManaged, then releases permanent storage.
// Further Dealloc calls after Shutdown are no-ops.
func (m *Manager) Shutdown() {
	m.cleanupUserManaged()
	m.perm.Release()
	atomic.StoreInt32(&m.shutdown, 1)
}

// Stats aggregates per-tag counts and bytes by iterating the allocation map
// under lock.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		AllocationCount: m.allocCount,
		FreeCount:       m.freeCount,
		ActiveCount:     len(m.records),
		ByTag:           make(map[Tag]TagStats),
	}

	for _, rec := range m.records {
		ts := s.ByTag[rec.Tag]
		ts.Count++
		ts.Bytes += rec.Size
		s.ByTag[rec.Tag] = ts
		s.BytesInUse += rec.Size
	}

	return s
}

// IsTracked reports whether ptr is currently present in the global
// allocation map.
func (m *Manager) IsTracked(ptr unsafe.Pointer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[ptr]
	return ok
}
