package ksched

import (
	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/kvm"
)

// ContextSwitcher implements the kernel-stack and address-space handoff
// the simulator's KernelContextSwitch(fn, curr, next) primitive invokes
// fn with (§4.5). It owns the kernel table's kernel-stack page range and
// records the vpn of the page immediately below it as scratch; no current
// operation maps that page.
type ContextSwitcher struct {
	kernel    *kvm.PageTable
	tlb       kvm.TLB
	phys      kvm.PhysMem
	stackBase int // vpn of the first kernel-stack page
	nstack    int // number of kernel-stack pages
	scratch   int // vpn of the page just below the kernel stack (not mapped by KCCopy)
	sched     *Scheduler
}

// NewContextSwitcher returns a switcher operating on kernel's stack page
// range [defs.KernelStackBase, defs.KernelStackLimit), recording the page
// immediately below it as the scratch vpn.
func NewContextSwitcher(kernel *kvm.PageTable, tlb kvm.TLB, phys kvm.PhysMem, sched *Scheduler) *ContextSwitcher {
	base := kernel.PageOf(defs.KernelStackBase)
	return &ContextSwitcher{
		kernel:    kernel,
		tlb:       tlb,
		phys:      phys,
		stackBase: base,
		nstack:    defs.KernelStackMaxSize / defs.PageSize,
		scratch:   base - 1,
		sched:     sched,
	}
}

// KCSwitch saves kcIn into curr's saved kernel context (if curr is not
// nil — nil at the very first dispatch out of KernelStart), remaps the
// kernel-stack virtual pages to next's frames, flushes the affected TLB
// entries, flushes the whole Region 1 TLB, records next as the running
// process, and returns next's saved kernel context for the simulator to
// resume. No page-table base register is loaded with next.Region1: kvm.TLB
// exposes only flush operations.
func (cs *ContextSwitcher) KCSwitch(kcIn kproc.KernelContext, curr, next *kproc.PCB) *kproc.KernelContext {
	if curr != nil {
		curr.KCtxt = kcIn
	}
	for i := 0; i < cs.nstack && i < len(next.KStackPfn); i++ {
		vpn := cs.stackBase + i
		cs.kernel.Unmap(vpn)
		cs.kernel.Map(vpn, next.KStackPfn[i], defs.ProtRead|defs.ProtWrite)
		cs.tlb.FlushPage(cs.kernel.AddrOf(vpn))
	}
	cs.tlb.FlushRegion1()
	cs.sched.SetRunning(next)
	return &next.KCtxt
}

// KCCopy clones curr's kernel stack into next's frames one page at a time
// with PhysMem.CopyFrame, frame to frame; the scratch page is not mapped
// for the copy. It stores kcIn as next's saved kernel context and returns
// kcIn unmodified so the
// caller (curr) resumes on its own stack exactly where it left off. next
// resumes later, from the same point, via a subsequent KCSwitch — this is
// how fork duplicates an in-flight kernel call stack.
func (cs *ContextSwitcher) KCCopy(kcIn kproc.KernelContext, curr, next *kproc.PCB) kproc.KernelContext {
	for i := 0; i < cs.nstack && i < len(curr.KStackPfn) && i < len(next.KStackPfn); i++ {
		cs.phys.CopyFrame(next.KStackPfn[i], curr.KStackPfn[i])
	}
	next.KCtxt = kcIn
	return kcIn
}
