package memory

import (
	"sync"
	"unsafe"
)

// poolClass describes one fixed-size pool's block size and default block
// count, matching the original engine's resource-tagged small-allocation
// pools.
type poolClass struct {
	blockSize uintptr
	count     int
}

var defaultPoolClasses = []poolClass{
	{32, 1000},
	{64, 500},
	{128, 250},
	{256, 100},
	{512, 50},
	{1024, 25},
}

// pool is a single fixed-size-block pool. Free blocks are chained through
// their own body's first word, as in a classic pool allocator.
type pool struct {
	mu        sync.Mutex
	blockSize uintptr
	backing   []byte
	freeHead  unsafe.Pointer
	freeCount int
}

func newPool(blockSize uintptr, count int) *pool {
	backing := make([]byte, blockSize*uintptr(count))
	p := &pool{blockSize: blockSize, backing: backing, freeCount: count}

	// Chain every block onto the free list, last block first so the head
	// ends up pointing at block 0.
	for i := count - 1; i >= 0; i-- {
		block := unsafe.Pointer(&backing[uintptr(i)*blockSize])
		*(*unsafe.Pointer)(block) = p.freeHead
		p.freeHead = block
	}

	return p
}

func (p *pool) alloc() unsafe.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freeHead == nil {
		return nil
	}

	block := p.freeHead
	p.freeHead = *(*unsafe.Pointer)(block)
	p.freeCount--

	return block
}

func (p *pool) owns(ptr unsafe.Pointer) bool {
	start := uintptr(unsafe.Pointer(&p.backing[0]))
	end := start + uintptr(len(p.backing))
	addr := uintptr(ptr)
	return addr >= start && addr < end
}

func (p *pool) release(ptr unsafe.Pointer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	*(*unsafe.Pointer)(ptr) = p.freeHead
	p.freeHead = ptr
	p.freeCount++
}

// PoolSet is the size-sorted vector of fixed-size pools used for
// resource-tagged small allocations. Alloc scans for the first pool whose
// block size is at least the request and whose free count is nonzero.
type PoolSet struct {
	pools []*pool
}

// NewPoolSet builds the standard 32/64/128/256/512/1024-byte pool set with
// the original engine's default block counts.
func NewPoolSet() *PoolSet {
	ps := &PoolSet{}
	for _, c := range defaultPoolClasses {
		ps.pools = append(ps.pools, newPool(c.blockSize, c.count))
	}
	return ps
}

// Alloc returns a block from the first pool whose size class fits, and
// reports whether one was found. The returned slice keeps the backing pool
// storage reachable for the GC.
func (ps *PoolSet) Alloc(size uintptr) (unsafe.Pointer, []byte, bool) {
	for _, p := range ps.pools {
		if size > p.blockSize || p.freeCount == 0 {
			continue
		}
		if ptr := p.alloc(); ptr != nil {
			return ptr, nil, true
		}
	}
	return nil, nil, false
}

// free routes ptr back to whichever pool's address range contains it; falls
// through silently if no pool owns it (callers only reach this path for
// pointers the Manager already knows came from the pool set).
func (ps *PoolSet) free(ptr unsafe.Pointer) {
	for _, p := range ps.pools {
		if p.owns(ptr) {
			p.release(ptr)
			return
		}
	}
}
