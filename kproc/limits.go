package kproc

import "sync/atomic"

// ProcLimit is an atomically-adjustable cap on the number of live PCBs
// (the supplemented resource-limit feature: original_source's Yalnix
// caps NUM_PROCS; this kernel exposes that as a configurable counter
// rather than a compile-time constant). Modeled on the teacher's
// Sysatomic_t (limits/limits.go): a remaining-budget counter that Take
// decrements and refuses to go negative, Give restores.
type ProcLimit struct {
	remaining int64
}

// NewProcLimit returns a limit allowing at most max live processes.
func NewProcLimit(max int) *ProcLimit {
	return &ProcLimit{remaining: int64(max)}
}

// Take reserves one process slot, returning false (without reserving) if
// the limit is already exhausted — on which Fork fails with defs.ERROR.
func (p *ProcLimit) Take() bool {
	if atomic.AddInt64(&p.remaining, -1) >= 0 {
		return true
	}
	atomic.AddInt64(&p.remaining, 1)
	return false
}

// Give releases one process slot, called when a PCB is finally destroyed.
func (p *ProcLimit) Give() {
	atomic.AddInt64(&p.remaining, 1)
}

// Remaining returns the number of process slots still available.
func (p *ProcLimit) Remaining() int {
	return int(atomic.LoadInt64(&p.remaining))
}
