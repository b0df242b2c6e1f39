package kproc

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt is per-process CPU-time accounting, tracked in nanoseconds.
// Modeled on the teacher's Accnt_t (accnt/accnt.go): atomic counters for
// the hot add path, an embedded mutex only for the consistent-snapshot
// read path (Snapshot/Add).
type Accnt struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex
}

// Utadd adds delta nanoseconds of user-mode runtime.
func (a *Accnt) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// Systadd adds delta nanoseconds of kernel-mode runtime.
func (a *Accnt) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

// Now returns the current time in nanoseconds, the same clock Utadd/
// Systadd deltas are measured against.
func (a *Accnt) Now() int64 {
	return time.Now().UnixNano()
}

// Snapshot returns a consistent copy of the counters.
func (a *Accnt) Snapshot() (userns, sysns int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Userns, a.Sysns
}

// Add merges n's counters into a, used when a parent absorbs a reaped
// child's accounting (the Wait syscall's rusage semantics).
func (a *Accnt) Add(n *Accnt) {
	un, sn := n.Snapshot()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Userns += un
	a.Sysns += sn
}
