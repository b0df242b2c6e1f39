// Package ktrap is the trap-vector table and dispatcher (component 4.6's
// demultiplex point, §6): a fixed-length table indexed by defs.Trap.
// Dispatching a trap whose entry was never bound is fatal.
package ktrap

import (
	"yalnix/defs"
	"yalnix/klog"
	"yalnix/kproc"
)

// Info carries everything a trap handler needs to know about why it was
// invoked: the trap kind, and the vector-specific code/address fields
// (syscall number for TrapKernel, fault code/address for TrapMemory, the
// device number for the TTY traps).
type Info struct {
	Vector defs.Trap
	Code   int
	Addr   int
}

// Handler services one trap kind for the currently running process.
type Handler func(p *kproc.PCB, info Info)

// Vector is the trap dispatch table. The zero value is not usable; use
// New.
type Vector struct {
	handlers [defs.NumTraps]Handler
}

// New returns an empty trap vector; every entry must be Install'd before
// Dispatch is called on it.
func New() *Vector {
	return &Vector{}
}

// Install binds h as the handler for trap kind t, replacing any existing
// binding.
func (v *Vector) Install(t defs.Trap, h Handler) {
	v.handlers[t] = h
}

// Dispatch invokes the handler bound to info.Vector for process p. An
// unbound vector entry is a kernel configuration error, not a runtime
// condition a process can trigger — it is fatal rather than silently
// ignored or delivered as a process kill, per §6's control-flow
// description of the trap table as fixed at boot.
func (v *Vector) Dispatch(p *kproc.PCB, info Info) {
	h := v.handlers[info.Vector]
	if h == nil {
		klog.Fatalf("ktrap: no handler installed for vector %v", info.Vector)
	}
	h(p, info)
}
