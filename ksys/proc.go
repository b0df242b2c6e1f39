package ksys

import (
	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/kvm"
)

// GetPid returns pcb's own pid (§4.6 getpid).
func (c *Context) GetPid(pcb *kproc.PCB) int {
	return pcb.Pid
}

// Delay blocks pcb for ticks clock ticks (§4.6 delay). ticks < 0 is a
// usage error; ticks == 0 returns immediately without blocking.
func (c *Context) Delay(pcb *kproc.PCB, ticks int) int {
	if ticks < 0 {
		return defs.ERROR
	}
	if ticks == 0 {
		return 0
	}
	wake := c.Sched.BlockDelay(pcb, ticks)
	<-wake
	return 0
}

// Brk grows or shrinks pcb's heap break to addr (§4.6 brk). On pcb's
// first Brk call, the break starts at the first unmapped Region 1 page
// (the conventional boundary just above loaded text/data). Growing maps
// frames R+W; shrinking unmaps and frees them, flushing each page. A
// partial grow rolls back every frame it allocated before returning
// defs.ERROR, matching kvm.KernelBrk's grow/shrink discipline.
func (c *Context) Brk(pcb *kproc.PCB, addr int) int {
	if addr < defs.Vmem1Base || addr >= defs.Vmem1Limit {
		return defs.ERROR
	}
	if pcb.Brk == 0 {
		pcb.Brk = pcb.Region1.AddrOf(pcb.Region1.FirstHole())
	}
	curPage := pcb.Region1.PageOf(pcb.Brk)
	newPage := pcb.Region1.PageOf(addr)
	if addr%defs.PageSize != 0 && addr > pcb.Brk {
		newPage++
	}

	switch {
	case newPage > curPage:
		var mapped []int
		for p := curPage; p < newPage; p++ {
			pfn := c.Frames.GetFree()
			if pfn == defs.ERROR {
				for _, mp := range mapped {
					if f, ok := pcb.Region1.Unmap(mp); ok {
						c.Frames.FreeFrame(f)
					}
				}
				return defs.ERROR
			}
			pcb.Region1.Map(p, pfn, defs.ProtRead|defs.ProtWrite)
			mapped = append(mapped, p)
		}
	case newPage < curPage:
		for p := newPage; p < curPage; p++ {
			if pfn, ok := pcb.Region1.Unmap(p); ok {
				c.Frames.FreeFrame(pfn)
				c.TLB.FlushPage(pcb.Region1.AddrOf(p))
			}
		}
	}
	pcb.Brk = addr
	return addr
}

// Fork duplicates pcb (§4.6 fork): a fresh Region 1 table with a
// frame-for-frame copy of every valid parent page, fresh kernel-stack
// frames, and a cloned kernel stack via KCCopy so the child resumes later
// from the same point the parent called Fork from. Returns the child's
// pid to the parent; Fork itself arranges that the child instead sees a
// return value of 0 when it is later dispatched, by setting
// child.UCtxt.Regs[0] below before the child ever runs.
func (c *Context) Fork(pcb *kproc.PCB) int {
	if !c.procLimit.Take() {
		return defs.ERROR
	}

	childPT := kvm.NewPageTable(defs.Vmem1Base, defs.Vmem1Size)
	var copiedFrames []int
	for vpn := 0; vpn < pcb.Region1.NumPages(); vpn++ {
		pte, ok := pcb.Region1.Lookup(vpn)
		if !ok || !pte.Valid {
			continue
		}
		pfn := c.Frames.GetFree()
		if pfn == defs.ERROR {
			c.rollbackFrames(copiedFrames)
			c.procLimit.Give()
			return defs.ERROR
		}
		c.Phys.CopyFrame(pfn, pte.Pfn)
		childPT.Map(vpn, pfn, pte.Prot)
		copiedFrames = append(copiedFrames, pfn)
	}

	nstack := defs.KernelStackMaxSize / defs.PageSize
	kstack := make([]int, 0, nstack)
	for i := 0; i < nstack; i++ {
		pfn := c.Frames.GetFree()
		if pfn == defs.ERROR {
			c.rollbackFrames(copiedFrames)
			c.rollbackFrames(kstack)
			c.procLimit.Give()
			return defs.ERROR
		}
		kstack = append(kstack, pfn)
	}

	childPid := c.Pids.Alloc()
	child := kproc.NewPCB(childPid, childPT)
	child.KStackPfn = kstack
	child.UCtxt = pcb.UCtxt
	child.UCtxt.Regs[0] = 0
	child.Brk = pcb.Brk
	child.Parent = pcb

	pcb.AddChild(child)
	c.RegisterProc(child)
	c.Sched.Enqueue(child)

	c.CS.KCCopy(pcb.KCtxt, pcb, child)

	return childPid
}

func (c *Context) rollbackFrames(pfns []int) {
	for _, pfn := range pfns {
		c.Frames.FreeFrame(pfn)
	}
}

// Exec replaces pcb's Region 1 contents in place (§4.6 exec): every valid
// frame is freed, the loader rebuilds text/data/stack, text is flipped
// from R+W to R+X, and the Region 1 TLB is flushed. On a loader failure
// the caller must kill the process (design requirement noted in spec.md
// §4.6); Exec reports the failure via the returned Errno rather than
// killing pcb itself, since "kill" is ktrap/ksys-dispatch-level policy.
func (c *Context) Exec(pcb *kproc.PCB, filename string, argv []string) defs.Errno {
	pcb.Region1.FreeAll(c.Frames)

	res, err := c.Loader.Load(filename, argv, pcb.Region1, c.Frames, c.Phys)
	if err != 0 {
		return err
	}

	for vpn := res.TextBase; vpn < res.TextBase+res.TextPages; vpn++ {
		if pte, ok := pcb.Region1.Lookup(vpn); ok && pte.Valid {
			pcb.Region1.Map(vpn, pte.Pfn, defs.ProtRead|defs.ProtExec)
		}
	}
	c.TLB.FlushRegion1()

	pcb.UCtxt.PC = uintptr(res.Entry)
	pcb.UCtxt.SP = uintptr(res.SP)
	pcb.Brk = 0
	return 0
}

// Wait blocks pcb until one of its children is a zombie, then reaps it
// and returns its pid and exit status (§4.6 wait). A process with no
// children gets defs.EINVAL immediately.
//
// The zombie-or-register decision and Exit's become-zombie-or-wake
// decision both run under c.mu, the same discipline kpipe.Pipe.Read uses
// for its own waiter queue (enqueue under the lock, release only once
// blocked): neither side can observe the other's queue mid-update, so a
// child that exits between pcb's zombie-check and its own registration
// can never leave the parent waiting on a wake that was never sent.
func (c *Context) Wait(pcb *kproc.PCB) (pid int, status int, errno defs.Errno) {
	c.mu.Lock()
	if len(pcb.Children()) == 0 {
		c.mu.Unlock()
		return 0, 0, defs.EINVAL
	}
	if z, ok := pcb.HasZombieChild(); ok {
		c.mu.Unlock()
		pid, status = z.Pid, z.ExitStatus
		c.reap(pcb, z)
		return pid, status, 0
	}

	wake := make(chan struct{})
	c.parentWake[pcb] = wake
	c.waitingParents.PushBack(pcb)
	c.Sched.Block(pcb)
	c.mu.Unlock()
	<-wake

	z, ok := pcb.HasZombieChild()
	if !ok {
		return 0, 0, defs.EINVAL
	}
	pid, status = z.Pid, z.ExitStatus
	c.reap(pcb, z)
	return pid, status, 0
}

// reap detaches child from parent's bookkeeping and returns its process
// slot to the limit — the metadata-only zombie PCB is dropped entirely
// once reaped, per §3's "zombies retain only metadata... released at exit
// time" (everything but pid/status was already freed in Exit).
func (c *Context) reap(parent, child *kproc.PCB) {
	parent.RemoveChild(child)
	parent.Acct.Add(&child.Acct)
	c.zombies.Remove(func(p *kproc.PCB) bool { return p == child })
	c.procLimit.Give()
}

// Exit terminates pcb (§4.6 exit). The init process (pid 1) exiting halts
// the machine. Otherwise pcb's Region 1 and kernel-stack frames are
// freed, its live children are orphaned (weak Parent reference cleared;
// any that are already zombies are garbage-collected immediately, since
// no parent will ever Wait for them), pcb becomes a zombie carrying only
// pid/status, and its parent is woken if blocked in Wait.
func (c *Context) Exit(pcb *kproc.PCB, status int) {
	if pcb.Pid == 1 {
		c.Halt.Halt()
		return
	}

	for _, child := range pcb.Children() {
		if child.GetState() == defs.Zombie {
			child.SetState(defs.Orphaned)
			c.zombies.Remove(func(p *kproc.PCB) bool { return p == child })
			c.procLimit.Give()
			continue
		}
		child.Parent = nil
	}

	pcb.Region1.FreeAll(c.Frames)
	for _, pfn := range pcb.KStackPfn {
		c.Frames.FreeFrame(pfn)
	}
	pcb.KStackPfn = nil

	pcb.ExitStatus = status
	parent := pcb.Parent

	// pcb's state flips to Zombie and the parentWake lookup happen under
	// one c.mu critical section, the same lock Wait's zombie-check-or-
	// register step holds: whichever of Wait/Exit gets there first, the
	// other sees a consistent view, so the wake this sends (if any) is
	// never lost.
	c.mu.Lock()
	pcb.SetState(defs.Zombie)
	c.zombies.PushBack(pcb)
	delete(c.procs, pcb.Pid)

	var wake chan struct{}
	waiting := false
	if parent != nil {
		wake, waiting = c.parentWake[parent]
		if waiting {
			delete(c.parentWake, parent)
		}
	}
	c.mu.Unlock()

	if !waiting {
		return
	}
	c.waitingParents.Remove(func(p *kproc.PCB) bool { return p == parent })
	c.Sched.Unblock(parent)
	close(wake)
}
