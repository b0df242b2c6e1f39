// Package ksched is the scheduler and context-switch primitive (component
// 4.5): strict round-robin over the ready queue, clock-driven preemption,
// and the KCSwitch/KCCopy kernel-stack handoff the simulator's
// KernelContextSwitch invokes.
package ksched

import (
	"sync"

	"yalnix/defs"
	"yalnix/kproc"
)

// Scheduler owns the ready and blocked queues and the currently running
// PCB. One Scheduler exists per (single-processor) kernel instance.
type Scheduler struct {
	mu sync.Mutex

	ready   *kproc.Queue[*kproc.PCB]
	blocked *kproc.Queue[*kproc.PCB]
	idle    *kproc.PCB
	running *kproc.PCB

	delayWake map[*kproc.PCB]chan struct{}
}

// New returns a Scheduler whose idle process runs whenever ready is empty.
func New(idle *kproc.PCB) *Scheduler {
	return &Scheduler{
		ready:     kproc.NewQueue[*kproc.PCB](),
		blocked:   kproc.NewQueue[*kproc.PCB](),
		idle:      idle,
		running:   idle,
		delayWake: map[*kproc.PCB]chan struct{}{},
	}
}

// BlockDelay moves p to blocked with a ticks-tick delay countdown and
// returns a channel that Tick closes once the countdown expires and p is
// moved back to ready — the wake primitive the Delay syscall blocks on.
func (s *Scheduler) BlockDelay(p *kproc.PCB, ticks int) <-chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.delayWake[p] = ch
	s.mu.Unlock()
	p.NumDelay = ticks
	s.Block(p)
	return ch
}

// Running returns the currently running PCB.
func (s *Scheduler) Running() *kproc.PCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Enqueue places p on the ready queue and marks it READY.
func (s *Scheduler) Enqueue(p *kproc.PCB) {
	p.SetState(defs.Ready)
	s.ready.PushBack(p)
}

// Block moves p onto the blocked set, tracked so the clock handler can
// tick its delay counter (if any); callers put p on the specific wait
// queue (pipe/lock/cvar/tty/wait) themselves before or after calling this.
func (s *Scheduler) Block(p *kproc.PCB) {
	p.SetState(defs.Blocked)
	s.blocked.PushBack(p)
}

// Unblock removes p from the blocked set and moves it to ready. It is a
// no-op (returns false) if p was not tracked as blocked.
func (s *Scheduler) Unblock(p *kproc.PCB) bool {
	if _, ok := s.blocked.Remove(func(x *kproc.PCB) bool { return x == p }); !ok {
		return false
	}
	s.Enqueue(p)
	return true
}

// Next pops the next process to run: the head of ready, or idle if ready
// is empty. The caller is responsible for appending the previously
// running process back to ready (unless it is idle, blocked, or a
// zombie) before calling Next, matching §4.5's round-robin policy.
func (s *Scheduler) Next() *kproc.PCB {
	if p, ok := s.ready.PopFront(); ok {
		return p
	}
	return s.idle
}

// Tick implements the clock handler's preemption half (§4.5): decrement
// NumDelay for every delay-blocked PCB, moving any that reach zero from
// blocked to ready and resetting their NumDelay to -1 (not delay-blocked).
func (s *Scheduler) Tick() {
	var expired []*kproc.PCB
	s.blocked.Each(func(p *kproc.PCB) {
		p.NumDelay = decrementDelay(p)
		if p.NumDelay == 0 {
			expired = append(expired, p)
		}
	})
	for _, p := range expired {
		p.NumDelay = -1
		s.Unblock(p)
		s.mu.Lock()
		ch, ok := s.delayWake[p]
		if ok {
			delete(s.delayWake, p)
		}
		s.mu.Unlock()
		if ok {
			close(ch)
		}
	}
}

func decrementDelay(p *kproc.PCB) int {
	if p.NumDelay <= 0 {
		return p.NumDelay
	}
	return p.NumDelay - 1
}

// SetRunning records p as the running process, used by KCSwitch once the
// kernel-stack and page-table handoff is complete.
func (s *Scheduler) SetRunning(p *kproc.PCB) {
	s.mu.Lock()
	s.running = p
	s.mu.Unlock()
	p.SetState(defs.Running)
}
