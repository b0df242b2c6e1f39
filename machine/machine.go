// Package machine is the simulated hardware the kernel runs on (§1's
// external collaborator): physical memory, the TLB-flush register, the
// PID allocator, the Halt primitive, and the KernelContextSwitch
// primitive. The terminal devices live in ktty, not here. Everything here
// is "below" the kernel proper — kvm and ksched depend on the small
// interfaces this package implements, never the other way around.
package machine

import (
	"sync"
	"sync/atomic"

	"yalnix/defs"
	"yalnix/kproc"
)

// Physical is a flat simulated physical memory, divided into
// defs.PageSize frames. It implements kvm.PhysMem.
type Physical struct {
	mem []byte
}

// NewPhysical allocates simulated physical memory for nframes frames.
func NewPhysical(nframes int) *Physical {
	return &Physical{mem: make([]byte, nframes*defs.PageSize)}
}

// NumFrames returns how many frames this memory holds.
func (p *Physical) NumFrames() int {
	return len(p.mem) / defs.PageSize
}

func (p *Physical) frame(pfn int) []byte {
	return p.mem[pfn*defs.PageSize : (pfn+1)*defs.PageSize]
}

// ReadFrame returns the backing bytes for frame pfn.
func (p *Physical) ReadFrame(pfn int) []byte {
	return p.frame(pfn)
}

// CopyFrame copies the full contents of frame src into frame dst.
func (p *Physical) CopyFrame(dst, src int) {
	copy(p.frame(dst), p.frame(src))
}

// SimTLB is a software TLB-flush register: it does no real invalidation
// (there is no hardware cache to invalidate) but records flush activity
// so tests can assert the mapping protocol in §4.2 is followed.
type SimTLB struct {
	mu                sync.Mutex
	FlushedPages      []int
	Region1FlushCount int
}

func (t *SimTLB) FlushPage(addr int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.FlushedPages = append(t.FlushedPages, addr)
}

func (t *SimTLB) FlushRegion1() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Region1FlushCount++
}

// PIDAllocator hands out unique ascending PIDs, starting after the
// reserved idle (0) and init (1) PIDs.
type PIDAllocator struct {
	next int64
}

// NewPIDAllocator returns an allocator whose first Alloc() call returns
// start.
func NewPIDAllocator(start int) *PIDAllocator {
	return &PIDAllocator{next: int64(start) - 1}
}

// Alloc returns the next unique pid.
func (p *PIDAllocator) Alloc() int {
	return int(atomic.AddInt64(&p.next, 1))
}

// ContextSwitchFunc matches the signature the simulator's
// KernelContextSwitch primitive invokes: given the context captured on
// entry and the outgoing/incoming PCBs, it returns the kernel context to
// resume.
type ContextSwitchFunc func(kcIn kproc.KernelContext, curr, next *kproc.PCB) *kproc.KernelContext

// KernelContextSwitch simulates the hardware primitive described in §1:
// it captures curr's currently saved kernel context as kc_in, invokes fn,
// and returns whatever kernel context fn selected for resumption. A real
// simulator would capture kc_in via an assembly trampoline; here curr's
// last saved KCtxt stands in for it, since this machine has no actual
// register file to snapshot.
func KernelContextSwitch(fn ContextSwitchFunc, curr, next *kproc.PCB) *kproc.KernelContext {
	var kcIn kproc.KernelContext
	if curr != nil {
		kcIn = curr.KCtxt
	}
	return fn(kcIn, curr, next)
}

// Halter is anything that can stop the simulated machine (the Halt
// primitive), used so tests can substitute a non-fatal stand-in.
type Halter interface {
	Halt()
}

// HaltFunc adapts a function to Halter.
type HaltFunc func()

func (h HaltFunc) Halt() { h() }
