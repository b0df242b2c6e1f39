package kvm

import (
	"sync"

	"yalnix/defs"
	"yalnix/kmem"
)

// KernelBrk is the kernel heap break manager (§4.3): a scalar delta before
// virtual memory is enabled, and a mapped-page boundary afterward.
//
// Pre-VM, the MMU is off and the caller may write directly into the grown
// region; the delta only becomes frame-backed once EnableVM replays it as
// page growth against the kernel table.
type KernelBrk struct {
	mu        sync.Mutex
	live      bool
	preDelta  int
	origPage  int
	curPage   int
	limitPage int
	table     *PageTable
	frames    *kmem.Frames
	tlb       TLB
}

// NewKernelBrk returns a break manager for table, whose original brk page
// is origPage (the first page past kernel text/data at boot) and whose
// upper bound is limitPage (VMEM_0_LIMIT's page index). Kernel stack pages
// must already be excluded from [origPage, limitPage) by the caller.
func NewKernelBrk(table *PageTable, frames *kmem.Frames, tlb TLB, origPage, limitPage int) *KernelBrk {
	return &KernelBrk{
		origPage:  origPage,
		curPage:   origPage,
		limitPage: limitPage,
		table:     table,
		frames:    frames,
		tlb:       tlb,
	}
}

// Sbrk grows (delta > 0) or shrinks (delta < 0) the kernel break by delta
// bytes, pre- or post-VM as appropriate, and returns the new break address.
// Returns defs.ERROR on an out-of-bounds request or frame exhaustion,
// leaving the break unchanged.
func (b *KernelBrk) Sbrk(delta int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.live {
		return b.sbrkPreVM(delta)
	}
	return b.sbrkPostVM(delta)
}

func (b *KernelBrk) sbrkPreVM(delta int) int {
	nd := b.preDelta + delta
	if b.origPage*defs.PageSize+nd < b.origPage*defs.PageSize {
		return defs.ERROR
	}
	if (b.origPage*defs.PageSize+nd+defs.PageSize-1)/defs.PageSize > b.limitPage {
		return defs.ERROR
	}
	b.preDelta = nd
	return b.origPage*defs.PageSize + nd
}

func (b *KernelBrk) sbrkPostVM(delta int) int {
	curAddr := b.curPage * defs.PageSize
	newAddr := curAddr + delta
	newPage := newAddr / defs.PageSize
	if newAddr%defs.PageSize != 0 {
		if newAddr > curAddr {
			newPage++
		}
	}
	if newPage < b.origPage || newPage > b.limitPage {
		return defs.ERROR
	}
	if newPage > b.curPage {
		if !b.grow(b.curPage, newPage) {
			return defs.ERROR
		}
	} else if newPage < b.curPage {
		b.shrink(newPage, b.curPage)
	}
	b.curPage = newPage
	return newPage * defs.PageSize
}

// grow maps frames for pages [from, to), rolling back any partial
// allocation on failure (§4.6 brk: "partial allocation rolls back").
func (b *KernelBrk) grow(from, to int) bool {
	mapped := make([]int, 0, to-from)
	for p := from; p < to; p++ {
		pfn := b.frames.GetFree()
		if pfn == defs.ERROR {
			for _, mp := range mapped {
				if f, ok := b.table.Unmap(mp); ok {
					b.frames.FreeFrame(f)
				}
			}
			return false
		}
		b.table.Map(p, pfn, defs.ProtRead|defs.ProtWrite)
		mapped = append(mapped, p)
	}
	return true
}

// shrink unmaps and frees pages [from, to), flushing each from the TLB.
func (b *KernelBrk) shrink(from, to int) {
	for p := from; p < to; p++ {
		if pfn, ok := b.table.Unmap(p); ok {
			b.frames.FreeFrame(pfn)
			b.tlb.FlushPage(b.table.AddrOf(p))
		}
	}
}

// EnableVM transitions from pre-VM to post-VM accounting, replaying the
// accumulated scalar delta as real page mappings. Must be called exactly
// once, after the kernel table is otherwise fully built.
func (b *KernelBrk) EnableVM() defs.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.live {
		return defs.EINVAL
	}
	delta := b.preDelta
	b.live = true
	b.preDelta = 0
	if b.sbrkPostVM(delta) == defs.ERROR {
		return defs.ENOMEM
	}
	return 0
}

// Break returns the current break address.
func (b *KernelBrk) Break() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.live {
		return b.origPage*defs.PageSize + b.preDelta
	}
	return b.curPage * defs.PageSize
}
