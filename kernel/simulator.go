package kernel

import (
	"sync"
	"time"

	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/ktrap"
)

// Simulator drives a built Kernel the way the simulated machine's hardware
// would (§1, §2): a free-running clock goroutine that calls Sched.Tick
// every period, plus the two event entry points an outer driver (a test, or
// cmd/yalnixsim) uses to deliver work into the kernel — Dispatch for a trap
// fired by the currently running process, and DeliverInput for bytes
// arriving on a terminal. Neither the machine package nor ksched import
// this type; it lives here because it wires ktrap, which only kernel knows
// how to drive (§6's "machine calls KernelStart once, then routes every
// subsequent trap/tick/receive through the kernel").
type Simulator struct {
	K      *Kernel
	Period time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
}

// NewSimulator returns a Simulator over k, ticking the clock every period.
func NewSimulator(k *Kernel, period time.Duration) *Simulator {
	return &Simulator{K: k, Period: period}
}

// Run starts the clock goroutine. It returns immediately; call Stop to shut
// the clock down.
func (s *Simulator) Run() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(s.Period)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.K.Sched.Tick()
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the clock goroutine. Safe to call more than once.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.stop == nil {
		return
	}
	close(s.stop)
	s.stopped = true
}

// Dispatch routes a trap raised while p was running to the kernel's trap
// vector (§6, §7) — the counterpart of machine.KernelContextSwitch for
// traps rather than voluntary kernel-stack handoffs.
func (s *Simulator) Dispatch(p *kproc.PCB, vector defs.Trap, code, addr int) {
	s.K.Trap.Dispatch(p, ktrap.Info{Vector: vector, Code: code, Addr: addr})
}

// DeliverInput feeds data into terminal termID's read queue, as if a
// TtyReceive interrupt had fired (§4.10). Unknown terminal numbers are
// silently dropped, matching a real receive interrupt naming a device that
// simply isn't wired up.
func (s *Simulator) DeliverInput(termID int, data []byte) {
	term := s.K.TTYs.Terminal(termID)
	if term == nil {
		return
	}
	term.Receive(data)
}
