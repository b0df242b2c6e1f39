package ksync

import (
	"sync"

	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/ksched"
)

type cvarWaiter struct {
	pcb  *kproc.PCB
	wake chan struct{}
}

// Cvar is a condition variable identified by an id in the cvar subspace.
// Waking a cvar waiter does not grant it the associated lock — the woken
// process contends for the lock via Lock.Acquire like any other caller
// (§4.9), which is why Wait takes the lock explicitly rather than storing
// one at creation time.
type Cvar struct {
	mu sync.Mutex

	ID      int
	waiters *kproc.Queue[*cvarWaiter]
	sched   *ksched.Scheduler
}

// NewCvar returns an empty condition variable with the given id.
func NewCvar(id int, sched *ksched.Scheduler) *Cvar {
	return &Cvar{
		ID:      id,
		waiters: kproc.NewQueue[*cvarWaiter](),
		sched:   sched,
	}
}

// Wait releases lock, blocks pcb on the cvar, and on wake reacquires lock
// before returning. It fails with defs.EPERM if pcb does not hold lock.
//
// lock.mu stays held from the ownership check through the cvar-waiter
// registration below (release happens last, via lock's unexported
// release helper, not the public Release): otherwise a second goroutine
// could Acquire the instant lock.owner goes nil and call Signal before
// this waiter's entry exists on cv.waiters, losing the wakeup. Holding
// one lock across both steps is the same discipline kpipe.Pipe.Read uses
// for its own waiter queue.
func (cv *Cvar) Wait(pcb *kproc.PCB, lock *Lock) defs.Errno {
	lock.mu.Lock()
	if lock.owner != pcb {
		lock.mu.Unlock()
		return defs.EPERM
	}

	w := &cvarWaiter{pcb: pcb, wake: make(chan struct{})}
	cv.mu.Lock()
	cv.waiters.PushBack(w)
	cv.sched.Block(pcb)
	cv.mu.Unlock()

	handoff, _ := lock.release(pcb)
	lock.mu.Unlock()
	if handoff != nil {
		lock.sched.Unblock(handoff.pcb)
		close(handoff.wake)
	}

	<-w.wake
	lock.Acquire(pcb)
	return 0
}

// Signal wakes the head waiter, if any, moving it to READY. The woken
// process still has to win the lock via Acquire.
func (cv *Cvar) Signal() {
	cv.mu.Lock()
	w, ok := cv.waiters.PopFront()
	cv.mu.Unlock()
	if !ok {
		return
	}
	cv.sched.Unblock(w.pcb)
	close(w.wake)
}

// Broadcast wakes every waiter currently queued.
func (cv *Cvar) Broadcast() {
	for {
		cv.mu.Lock()
		w, ok := cv.waiters.PopFront()
		cv.mu.Unlock()
		if !ok {
			return
		}
		cv.sched.Unblock(w.pcb)
		close(w.wake)
	}
}

// Reclaim releases the cvar's id back to the allocator, succeeding only
// when no process is waiting on it.
func (cv *Cvar) Reclaim() defs.Errno {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if cv.waiters.Len() != 0 {
		return defs.EBUSY
	}
	return 0
}
