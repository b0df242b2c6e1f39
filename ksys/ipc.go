package ksys

import (
	"yalnix/defs"
	"yalnix/kpipe"
	"yalnix/kproc"
	"yalnix/ksync"
)

// PipeInit allocates a new pipe and returns its id (§4.8 PipeInit).
func (c *Context) PipeInit() (int, defs.Errno) {
	return c.pipes.alloc(func(id int) *kpipe.Pipe { return kpipe.New(id, c.Sched) })
}

// PipeRead reads from pipe id into buf, blocking pcb if the pipe is
// currently empty (§4.8 PipeRead).
func (c *Context) PipeRead(pcb *kproc.PCB, id int, buf []byte) (int, defs.Errno) {
	p, ok := c.pipes.get(id)
	if !ok {
		return 0, defs.ENOTFOUND
	}
	return p.Read(pcb, buf), 0
}

// PipeWrite writes buf into pipe id, queuing and blocking pcb for any
// remainder that doesn't fit (§4.8 PipeWrite).
func (c *Context) PipeWrite(pcb *kproc.PCB, id int, buf []byte) (int, defs.Errno) {
	p, ok := c.pipes.get(id)
	if !ok {
		return 0, defs.ENOTFOUND
	}
	return p.Write(pcb, buf), 0
}

// LockInit allocates a new FREE lock and returns its id.
func (c *Context) LockInit() (int, defs.Errno) {
	return c.locks.alloc(func(id int) *ksync.Lock { return ksync.NewLock(id, c.Sched) })
}

// LockAcquire blocks pcb until it owns lock id.
func (c *Context) LockAcquire(pcb *kproc.PCB, id int) defs.Errno {
	l, ok := c.locks.get(id)
	if !ok {
		return defs.ENOTFOUND
	}
	l.Acquire(pcb)
	return 0
}

// LockRelease releases lock id, which pcb must currently own.
func (c *Context) LockRelease(pcb *kproc.PCB, id int) defs.Errno {
	l, ok := c.locks.get(id)
	if !ok {
		return defs.ENOTFOUND
	}
	return l.Release(pcb)
}

// CvarInit allocates a new empty condition variable and returns its id.
func (c *Context) CvarInit() (int, defs.Errno) {
	return c.cvars.alloc(func(id int) *ksync.Cvar { return ksync.NewCvar(id, c.Sched) })
}

// CvarWait releases lockID, blocks pcb on cvarID, and reacquires lockID
// before returning (§4.9 CvarWait).
func (c *Context) CvarWait(pcb *kproc.PCB, cvarID, lockID int) defs.Errno {
	cv, ok := c.cvars.get(cvarID)
	if !ok {
		return defs.ENOTFOUND
	}
	l, ok := c.locks.get(lockID)
	if !ok {
		return defs.ENOTFOUND
	}
	return cv.Wait(pcb, l)
}

// CvarSignal wakes the head waiter on cvarID, if any.
func (c *Context) CvarSignal(id int) defs.Errno {
	cv, ok := c.cvars.get(id)
	if !ok {
		return defs.ENOTFOUND
	}
	cv.Signal()
	return 0
}

// CvarBroadcast wakes every waiter on cvarID.
func (c *Context) CvarBroadcast(id int) defs.Errno {
	cv, ok := c.cvars.get(id)
	if !ok {
		return defs.ENOTFOUND
	}
	cv.Broadcast()
	return 0
}

// Reclaim dispatches id to the correct object table purely from its
// numeric range (§3 ID space; §4.6 Reclaim), without the caller naming
// the object kind. An id outside every subspace, or already reclaimed,
// returns defs.ENOTFOUND.
func (c *Context) Reclaim(id int) defs.Errno {
	switch defs.KindOf(id) {
	case defs.ObjLock:
		return c.locks.reclaim(id)
	case defs.ObjCvar:
		return c.cvars.reclaim(id)
	case defs.ObjPipe:
		return c.pipes.reclaim(id)
	default:
		return defs.ENOTFOUND
	}
}
