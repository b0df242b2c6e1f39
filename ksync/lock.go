// Package ksync implements kernel locks and condition variables
// (component 4.9): FIFO acquire/release with direct ownership handoff
// (no spurious wakeups), and wait/signal/broadcast cvars layered on top.
package ksync

import (
	"sync"

	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/ksched"
)

type lockWaiter struct {
	pcb  *kproc.PCB
	wake chan struct{}
}

// Lock is a mutual-exclusion object identified by an id in the lock
// subspace (§3's ID space). Modeled on spec.md §4.9's FIFO
// acquire/release protocol: a released lock with waiters hands ownership
// directly to the head waiter rather than waking it to re-contend.
type Lock struct {
	mu sync.Mutex

	ID    int
	owner *kproc.PCB

	waiters *kproc.Queue[*lockWaiter]
	sched   *ksched.Scheduler
}

// NewLock returns a FREE lock with the given id.
func NewLock(id int, sched *ksched.Scheduler) *Lock {
	return &Lock{
		ID:      id,
		waiters: kproc.NewQueue[*lockWaiter](),
		sched:   sched,
	}
}

// Acquire blocks pcb until the lock is held by pcb. If the lock is FREE,
// ownership transfers immediately with no blocking.
func (l *Lock) Acquire(pcb *kproc.PCB) {
	l.mu.Lock()
	if l.owner == nil {
		l.owner = pcb
		l.mu.Unlock()
		return
	}
	w := &lockWaiter{pcb: pcb, wake: make(chan struct{})}
	l.waiters.PushBack(w)
	l.sched.Block(pcb)
	l.mu.Unlock()
	<-w.wake
}

// Release relinquishes the lock held by pcb. It fails with defs.EPERM if
// pcb does not currently own the lock. If a waiter is queued, ownership
// transfers directly to it (it is marked READY but never re-contends);
// otherwise the lock becomes FREE.
func (l *Lock) Release(pcb *kproc.PCB) defs.Errno {
	l.mu.Lock()
	w, err := l.release(pcb)
	l.mu.Unlock()
	if err != 0 {
		return err
	}
	if w != nil {
		l.sched.Unblock(w.pcb)
		close(w.wake)
	}
	return 0
}

// release performs Release's state transition only — the caller must
// already hold l.mu and must unlock it itself before waking the returned
// waiter (if any). Cvar.Wait calls this directly, keeping l.mu held from
// before the ownership check through its own cvar-waiter registration,
// so no concurrent Acquire can take the lock and Signal before the
// waiting process is actually enqueued on the cvar.
func (l *Lock) release(pcb *kproc.PCB) (*lockWaiter, defs.Errno) {
	if l.owner != pcb {
		return nil, defs.EPERM
	}
	w, ok := l.waiters.PopFront()
	if !ok {
		l.owner = nil
		return nil, 0
	}
	l.owner = w.pcb
	return w, 0
}

// Reclaim releases the lock's id back to the allocator, succeeding only
// when the lock is quiescent: FREE and with no waiters.
func (l *Lock) Reclaim() defs.Errno {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != nil || l.waiters.Len() != 0 {
		return defs.EBUSY
	}
	return 0
}

// Owner returns the PCB currently holding the lock, or nil if FREE.
func (l *Lock) Owner() *kproc.PCB {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}
