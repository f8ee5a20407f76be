package memory

import "unsafe"

// systemAlloc allocates a zeroed, GC-visible byte slice for requests the
// frame/permanent/pool allocators did not satisfy.
func systemAlloc(size uintptr) []byte {
	if size == 0 {
		return nil
	}
	return make([]byte, size)
}

// systemFallback is the owningAllocator used for system-heap blocks. Go's
// garbage collector reclaims the backing slice once the Record referencing
// it is dropped from the global map; free exists to satisfy the
// owningAllocator contract and to make the dealloc-untracked-pointer path
// (spec §4.1) explicit rather than implicit.
type systemFallback struct{}

func (systemFallback) free(ptr unsafe.Pointer) {}
