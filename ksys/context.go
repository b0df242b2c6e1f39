// Package ksys is the syscall surface (component 4.6): fork, exec, wait,
// exit, getpid, brk, delay, the pipe/lock/cvar/tty syscalls, Reclaim, and
// the memory/illegal/math/disk trap handlers (§4.7, §7) that share the
// same kernel state. Every exported method takes the calling PCB
// explicitly rather than reading a package-level "current process"
// global, so tests can drive the surface directly without a scheduler
// dispatch loop.
package ksys

import (
	"sync"

	"yalnix/defs"
	"yalnix/kmem"
	"yalnix/kpipe"
	"yalnix/kproc"
	"yalnix/ksched"
	"yalnix/ksync"
	"yalnix/ktty"
	"yalnix/kvm"
	"yalnix/machine"
)

// LoadResult is what a Loader hands back to Exec: the entry point and
// initial stack pointer to resume the new program at, plus the text
// region's page range so Exec can flip it from R+W (needed while the
// loader is writing bytes) to R+X before resuming (§4.6 exec, §6 Loader
// ABI).
type LoadResult struct {
	Entry     int
	SP        int
	TextBase  int
	TextPages int
}

// Loader is the external program-loader collaborator (§1, §6): it reads
// an executable file and writes its bytes directly into pt's mapped
// Region 1 pages, allocating frames from frames as needed. Real binary
// loading is out of scope for this kernel (spec.md §1 names it an
// external collaborator specified only at the interface level); Exec
// depends on this interface rather than a concrete format.
type Loader interface {
	Load(filename string, argv []string, pt *kvm.PageTable, frames *kmem.Frames, phys kvm.PhysMem) (LoadResult, defs.Errno)
}

// Context is the kernel-wide singleton every syscall handler operates
// against (DESIGN NOTES §9: "global mutable kernel state" modeled as one
// struct, rather than package-level globals, so independent kernels can
// coexist in tests).
type Context struct {
	mu sync.Mutex

	Frames   *kmem.Frames
	KernelPT *kvm.PageTable
	TLB      kvm.TLB
	Phys     kvm.PhysMem
	Sched    *ksched.Scheduler
	CS       *ksched.ContextSwitcher
	Pids     *machine.PIDAllocator
	Halt     machine.Halter
	Loader   Loader
	TTYs     *ktty.Array

	procs map[int]*kproc.PCB

	waitingParents *kproc.Queue[*kproc.PCB]
	parentWake     map[*kproc.PCB]chan struct{}

	zombies *kproc.Queue[*kproc.PCB]

	locks *objTable[*ksync.Lock]
	cvars *objTable[*ksync.Cvar]
	pipes *objTable[*kpipe.Pipe]

	procLimit *kproc.ProcLimit
}

// New returns a Context wiring together the given subsystems. maxProcs
// bounds concurrently live PCBs (§12's supplemented resource-limit
// feature).
func New(frames *kmem.Frames, kernelPT *kvm.PageTable, tlb kvm.TLB, phys kvm.PhysMem,
	sched *ksched.Scheduler, cs *ksched.ContextSwitcher, pids *machine.PIDAllocator,
	halt machine.Halter, loader Loader, ttys *ktty.Array, maxProcs int) *Context {
	return &Context{
		Frames:         frames,
		KernelPT:       kernelPT,
		TLB:            tlb,
		Phys:           phys,
		Sched:          sched,
		CS:             cs,
		Pids:           pids,
		Halt:           halt,
		Loader:         loader,
		TTYs:           ttys,
		procs:          map[int]*kproc.PCB{},
		waitingParents: kproc.NewQueue[*kproc.PCB](),
		parentWake:     map[*kproc.PCB]chan struct{}{},
		zombies:        kproc.NewQueue[*kproc.PCB](),
		locks:          newObjTable[*ksync.Lock](defs.ObjLock),
		cvars:          newObjTable[*ksync.Cvar](defs.ObjCvar),
		pipes:          newObjTable[*kpipe.Pipe](defs.ObjPipe),
		procLimit:      kproc.NewProcLimit(maxProcs),
	}
}

// RegisterProc records p in the pid table, used by fork and by KernelStart
// for the boot-time idle/init PCBs.
func (c *Context) RegisterProc(p *kproc.PCB) {
	c.mu.Lock()
	c.procs[p.Pid] = p
	c.mu.Unlock()
}

// Proc looks up a live PCB by pid.
func (c *Context) Proc(pid int) (*kproc.PCB, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.procs[pid]
	return p, ok
}
