package kproc

import (
	"sync"

	"yalnix/defs"
	"yalnix/kvm"
)

// UserContext is the saved user-mode register file plus the trap
// information that caused the last kernel entry (§3). The simulator
// reads/writes this struct across a KernelContextSwitch boundary.
type UserContext struct {
	Regs [8]int64
	PC   uintptr
	SP   uintptr

	TrapVector defs.Trap
	TrapCode   int
	TrapAddr   int
}

// KernelContext is the saved kernel-mode execution state for a blocked
// kernel stack, opaque to everything except the machine package's
// KernelContextSwitch implementation.
type KernelContext struct {
	SP uintptr
	PC uintptr
}

// PCB is a process control block (§3).
type PCB struct {
	mu sync.Mutex

	Pid  int
	Name string

	Region1 *kvm.PageTable
	KStackPfn []int

	UCtxt UserContext
	KCtxt KernelContext

	State defs.ProcState

	Brk int

	Parent   *PCB
	children *Queue[*PCB]

	NumDelay int

	ExitStatus int

	// Per-device transient fields (§3), used by the TTY driver to hand a
	// completed read transfer back through the trap epilogue.
	ReadBuffer      []byte
	ReadBufferSize  int
	WriteBuffer     []byte
	WriteBufferSize int
	KernelReadBuffer []byte

	Acct Accnt
}

// NewPCB returns a freshly allocated PCB with no parent and an empty
// children list. pid and region1 must be supplied by the caller (kproc
// itself has no pid allocator — that lives in the machine package per
// spec.md §1's "PID allocator" collaborator).
func NewPCB(pid int, region1 *kvm.PageTable) *PCB {
	return &PCB{
		Pid:      pid,
		Region1:  region1,
		State:    defs.Ready,
		NumDelay: -1,
		children: NewQueue[*PCB](),
	}
}

// AddChild appends c to p's children list.
func (p *PCB) AddChild(c *PCB) {
	p.children.PushBack(c)
}

// Children returns a snapshot slice of p's children in creation order.
func (p *PCB) Children() []*PCB {
	var out []*PCB
	p.children.Each(func(c *PCB) { out = append(out, c) })
	return out
}

// RemoveChild removes c from p's children list, used once c has been
// reaped or reparented.
func (p *PCB) RemoveChild(c *PCB) {
	p.children.Remove(func(x *PCB) bool { return x == c })
}

// HasZombieChild reports whether any of p's children is currently a
// zombie, and returns it if so.
func (p *PCB) HasZombieChild() (*PCB, bool) {
	var found *PCB
	p.children.Each(func(c *PCB) {
		if found == nil {
			c.mu.Lock()
			z := c.State == defs.Zombie
			c.mu.Unlock()
			if z {
				found = c
			}
		}
	})
	return found, found != nil
}

// SetState sets p's scheduling state under lock.
func (p *PCB) SetState(s defs.ProcState) {
	p.mu.Lock()
	p.State = s
	p.mu.Unlock()
}

// GetState reads p's scheduling state under lock.
func (p *PCB) GetState() defs.ProcState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State
}
