// Package kmem is the physical frame allocator (component 4.1): a bit
// vector over physical frames with deterministic ascending-scan allocation.
package kmem

import (
	"sync"

	"yalnix/defs"
)

// Frames is a bit-vector allocator over a fixed number of physical frames.
// Each bit records whether the corresponding frame is in use. Modeled on
// the teacher's Physmem_t page-refcounting table (mem/mem.go), simplified
// from per-page refcounts to a single used/free bit since this kernel has
// no copy-on-write sharing of physical frames outside of fork's eager copy.
type Frames struct {
	mu    sync.Mutex
	bits  []byte
	nfree int
	total int
}

// New allocates a Frames bitmap covering nframes physical frames, all
// initially free.
func New(nframes int) *Frames {
	return &Frames{
		bits:  make([]byte, (nframes+7)/8),
		nfree: nframes,
		total: nframes,
	}
}

// Total returns the number of frames the bitmap covers.
func (f *Frames) Total() int {
	return f.total
}

// Free returns the number of currently unallocated frames.
func (f *Frames) Free() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nfree
}

func (f *Frames) test(i int) bool {
	return f.bits[i/8]&(1<<uint(i%8)) != 0
}

func (f *Frames) set(i int) {
	f.bits[i/8] |= 1 << uint(i%8)
}

func (f *Frames) clear(i int) {
	f.bits[i/8] &^= 1 << uint(i%8)
}

// GetFree scans ascending from frame 0 for the first free frame, marks it
// used, and returns its index. Returns defs.ERROR if none is free; scan
// order is deterministic so callers (and tests) can reason about which
// frame a given allocation will yield.
func (f *Frames) GetFree() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nfree == 0 {
		return defs.ERROR
	}
	for i := 0; i < f.total; i++ {
		if !f.test(i) {
			f.set(i)
			f.nfree--
			return i
		}
	}
	// nfree > 0 but no free bit found means bookkeeping drifted from the
	// bitmap; that is a kernel bug, not a resource-exhaustion condition.
	panic("kmem: nfree/bitmap mismatch")
}

// Mark sets frame i used without scanning, for pre-reserving boot frames
// (kernel text/data/original brk/kernel stack) before the allocator is
// otherwise used. Marking an already-used frame is a no-op.
func (f *Frames) Mark(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.test(i) {
		f.set(i)
		f.nfree--
	}
}

// FreeFrame clears frame i, returning it to the pool. Freeing an already-free
// frame is a no-op; callers must not rely on this to detect double-frees.
func (f *Frames) FreeFrame(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.test(i) {
		f.clear(i)
		f.nfree++
	}
}

// Used reports whether frame i is currently allocated.
func (f *Frames) Used(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.test(i)
}
