package memory

import (
	"sync"
	"unsafe"
)

// defaultAlignment matches the original engine's default allocation
// alignment for bump allocators.
const defaultAlignment = 16

func alignUp(size, alignment uintptr) uintptr {
	return (size + alignment - 1) &^ (alignment - 1)
}

func copyMemory(dst, src unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	dstSlice := (*[1 << 30]byte)(dst)[:size:size]
	srcSlice := (*[1 << 30]byte)(src)[:size:size]
	copy(dstSlice, srcSlice)
}

// Arena is a bump-pointer allocator over a fixed buffer, reset in bulk at
// frame boundaries. A request larger than the remaining free space returns
// nil without corrupting prior allocations.
type Arena struct {
	mu      sync.Mutex
	buffer  []byte
	current uintptr
	size    uintptr
	peak    uintptr
}

// NewArena creates an Arena with the given capacity in bytes.
func NewArena(size uintptr) *Arena {
	return &Arena{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Alloc bumps the arena pointer and returns the next aligned slot, or nil if
// the request does not fit in the remaining space.
func (a *Arena) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	aligned := alignUp(size, defaultAlignment)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current+aligned > a.size {
		return nil
	}

	ptr := unsafe.Pointer(&a.buffer[a.current])
	a.current += aligned
	if a.current > a.peak {
		a.peak = a.current
	}

	return ptr
}

// Reset rewinds the bump pointer to zero, releasing every allocation made
// since the last reset. The arena never shrinks its backing buffer.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = 0
}

// Used returns the number of bytes currently bumped past.
func (a *Arena) Used() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Available returns the number of bytes left before the next Alloc fails.
func (a *Arena) Available() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size - a.current
}

// PeakUsage returns the high-water mark reached since creation.
func (a *Arena) PeakUsage() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peak
}

// free is a no-op: arenas never release individual allocations, only the
// whole buffer via Reset.
func (a *Arena) free(ptr unsafe.Pointer) {}

// Linear is a bump allocator that never resets during a run; its storage is
// bulk-released only at shutdown via Release.
type Linear struct {
	mu      sync.Mutex
	chunks  [][]byte
	current []byte
	offset  uintptr
	total   uintptr
}

// linearChunkSize is the size of each backing chunk the linear allocator
// grows by when the current chunk is exhausted.
const linearChunkSize = 1 << 20

// NewLinear creates an empty permanent linear allocator.
func NewLinear() *Linear {
	return &Linear{}
}

// Alloc bumps the linear allocator, growing a new backing chunk when the
// current one cannot satisfy the request.
func (l *Linear) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	aligned := alignUp(size, defaultAlignment)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil || l.offset+aligned > uintptr(len(l.current)) {
		chunkSize := linearChunkSize
		if aligned > uintptr(chunkSize) {
			chunkSize = int(aligned)
		}
		l.current = make([]byte, chunkSize)
		l.chunks = append(l.chunks, l.current)
		l.offset = 0
	}

	ptr := unsafe.Pointer(&l.current[l.offset])
	l.offset += aligned
	l.total += aligned

	return ptr
}

// TotalAllocated returns the cumulative bytes bumped across all chunks.
func (l *Linear) TotalAllocated() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Release drops every backing chunk, making them eligible for GC. Called
// only at Manager shutdown.
func (l *Linear) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks = nil
	l.current = nil
	l.offset = 0
}

// free is a no-op: permanent allocations live until shutdown.
func (l *Linear) free(ptr unsafe.Pointer) {}
