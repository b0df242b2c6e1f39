// Package ktty is the TTY driver (component 4.10): per-terminal read/write
// queues and a transmit engine, with each terminal's visible screen state
// backed by a real terminal emulator so TtyTransmit's bytes are interpreted
// the way a human terminal would (cursor motion, line wrap), not just
// accounted for as a byte count.
package ktty

import (
	"sync"

	"github.com/charmbracelet/x/vt"

	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/ksched"
)

type readReq struct {
	pcb  *kproc.PCB
	want int
	wake chan struct{}
}

type writeReq struct {
	pcb  *kproc.PCB
	buf  []byte
	wake chan int
}

// Terminal is one simulated terminal device (§3's TTY record).
type Terminal struct {
	mu sync.Mutex

	id int

	sched *ksched.Scheduler

	readBuffer [defs.TerminalMaxLine]byte
	readSize   int
	readQueue  *kproc.Queue[*readReq]

	using         bool
	currentWriter *kproc.PCB
	writeQueue    *kproc.Queue[*writeReq]

	screen *vt.SafeEmulator
}

// NewTerminal returns an idle terminal numbered id, with an 80x24 emulator
// backing its visible screen state (the conventional default grid size,
// matching tinyrange-cc's term.View).
func NewTerminal(id int, sched *ksched.Scheduler) *Terminal {
	return &Terminal{
		id:         id,
		sched:      sched,
		readQueue:  kproc.NewQueue[*readReq](),
		writeQueue: kproc.NewQueue[*writeReq](),
		screen:     vt.NewSafeEmulator(80, 24),
	}
}

// ID returns this terminal's device number.
func (t *Terminal) ID() int { return t.id }

// Screen exposes the backing emulator so a driving program (cmd/yalnixsim)
// can render what the terminal currently shows.
func (t *Terminal) Screen() *vt.SafeEmulator { return t.screen }

// Read services a TtyRead syscall for pcb requesting up to n bytes. If the
// terminal read buffer already holds data, it is delivered immediately;
// otherwise pcb blocks on the read queue until a receive interrupt hands it
// a transfer (§4.10). The delivered byte count is also the return value;
// the bytes themselves land in pcb.KernelReadBuffer for the syscall layer
// to copy out to user space.
func (t *Terminal) Read(pcb *kproc.PCB, n int) int {
	t.mu.Lock()
	if t.readSize == 0 {
		rr := &readReq{pcb: pcb, want: n, wake: make(chan struct{})}
		t.readQueue.PushBack(rr)
		t.sched.Block(pcb)
		t.mu.Unlock()
		<-rr.wake
		return pcb.ReadBufferSize
	}
	got := t.deliver(pcb, n)
	t.mu.Unlock()
	return got
}

// deliver copies min(n, readSize) bytes out of the read buffer into pcb's
// kernel-owned transient buffer and compacts the remainder. Must be called
// with t.mu held.
func (t *Terminal) deliver(pcb *kproc.PCB, n int) int {
	k := n
	if t.readSize < k {
		k = t.readSize
	}
	buf := make([]byte, k)
	copy(buf, t.readBuffer[:k])
	copy(t.readBuffer[:], t.readBuffer[k:t.readSize])
	t.readSize -= k
	pcb.KernelReadBuffer = buf
	pcb.ReadBufferSize = k
	return k
}

// Receive ingests bytes produced by the simulator's TtyReceive interrupt
// into the read buffer (truncated to TerminalMaxLine, matching the
// simulator's per-line receive granularity), then wakes the head reader, if
// any, handing it a transfer (§4.10).
func (t *Terminal) Receive(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room := len(t.readBuffer) - t.readSize
	n := len(data)
	if n > room {
		n = room
	}
	copy(t.readBuffer[t.readSize:], data[:n])
	t.readSize += n

	if t.readSize == 0 {
		return
	}
	rr, ok := t.readQueue.PopFront()
	if !ok {
		return
	}
	t.deliver(rr.pcb, rr.want)
	t.sched.Unblock(rr.pcb)
	close(rr.wake)
}

// Write services a TtyWrite syscall for pcb, carving buf into chunks of at
// most TerminalMaxLine bytes and driving them through the transmit engine
// (§4.10). If the terminal is currently busy with another writer, pcb
// queues and blocks until its turn; only one writer's bytes are ever in
// flight at a time. Returns the number of bytes transmitted, always
// len(buf) on success (the kernel is single-threaded, so once a writer has
// the terminal nothing can fail its transmission part-way).
func (t *Terminal) Write(pcb *kproc.PCB, buf []byte) int {
	t.mu.Lock()
	if t.using {
		wr := &writeReq{pcb: pcb, buf: buf, wake: make(chan int, 1)}
		t.writeQueue.PushBack(wr)
		t.sched.Block(pcb)
		t.mu.Unlock()
		return <-wr.wake
	}
	t.using = true
	t.currentWriter = pcb
	t.mu.Unlock()

	n := t.transmit(buf)
	t.finishWriter()
	return n
}

// finishWriter releases the terminal and, while another writer is queued,
// transmits each one's request in turn before handing its result back —
// the queued writer's own Write call is the one blocked on wr.wake, so
// finishWriter (running on the call stack of whichever writer currently
// holds the terminal) does the transmission on its behalf.
func (t *Terminal) finishWriter() {
	for {
		t.mu.Lock()
		t.using = false
		t.currentWriter = nil
		next, ok := t.writeQueue.PopFront()
		if !ok {
			t.mu.Unlock()
			return
		}
		t.using = true
		t.currentWriter = next.pcb
		t.mu.Unlock()

		t.sched.Unblock(next.pcb)
		n := t.transmit(next.buf)
		next.wake <- n
	}
}

// transmit feeds buf through the screen emulator in TerminalMaxLine-sized
// chunks, mirroring the simulator's per-interrupt transmit granularity.
func (t *Terminal) transmit(buf []byte) int {
	sent := 0
	for sent < len(buf) {
		end := sent + defs.TerminalMaxLine
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[sent:end]
		t.screen.Write(chunk)
		sent = end
	}
	return sent
}

// Array holds the fixed set of simulated terminals.
type Array struct {
	terms []*Terminal
}

// NewArray returns n idle terminals, numbered 0..n-1.
func NewArray(n int, sched *ksched.Scheduler) *Array {
	a := &Array{terms: make([]*Terminal, n)}
	for i := range a.terms {
		a.terms[i] = NewTerminal(i, sched)
	}
	return a
}

// Terminal returns the terminal numbered id, or nil if out of range.
func (a *Array) Terminal(id int) *Terminal {
	if id < 0 || id >= len(a.terms) {
		return nil
	}
	return a.terms[id]
}

// Len returns the number of terminals in the array.
func (a *Array) Len() int { return len(a.terms) }
