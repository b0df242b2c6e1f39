// Package kpipe implements kernel pipes (component 4.8): a fixed-capacity
// circular byte buffer with FIFO reader/writer blocking.
package kpipe

import (
	"sync"

	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/ksched"
)

// writeWaiter is a buffered writer blocked because the pipe had no room
// for its whole request (§3: "each buffered write-waiter carries
// {buf, len, pcb}").
type writeWaiter struct {
	buf  []byte
	pcb  *kproc.PCB
	done chan int
}

type readWaiter struct {
	pcb  *kproc.PCB
	wake chan struct{}
}

// Pipe is a single pipe object. Modeled on the teacher's Circbuf_t
// (circbuf/circbuf.go): a byte slice with independent head/tail cursors
// and wraparound-aware copy helpers, extended here with the reader/writer
// wait queues §4.8 requires (Circbuf_t itself has no blocking — biscuit
// layers that on top in its fd/pipe code, not present in the retrieved
// source, so the waiter-queue half is built directly from spec.md's
// description rather than adapted from a teacher file).
type Pipe struct {
	mu sync.Mutex

	ID int

	data               []byte
	readPos, writePos  int
	size               int

	readWaiters  *kproc.Queue[*readWaiter]
	writeWaiters *kproc.Queue[*writeWaiter]

	sched *ksched.Scheduler
}

// New returns an empty pipe with the given id, buffered by
// defs.PipeBufferLen bytes.
func New(id int, sched *ksched.Scheduler) *Pipe {
	return &Pipe{
		ID:           id,
		data:         make([]byte, defs.PipeBufferLen),
		readWaiters:  kproc.NewQueue[*readWaiter](),
		writeWaiters: kproc.NewQueue[*writeWaiter](),
		sched:        sched,
	}
}

// Idle reports whether the pipe has no blocked readers or writers, the
// quiescence condition Reclaim requires.
func (p *Pipe) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readWaiters.Len() == 0 && p.writeWaiters.Len() == 0
}

// Reclaim releases the pipe's id back to the allocator, succeeding only
// when no process is blocked reading or writing it.
func (p *Pipe) Reclaim() defs.Errno {
	if !p.Idle() {
		return defs.EBUSY
	}
	return 0
}

// Read copies up to len(buf) bytes out of the pipe into buf, blocking the
// calling PCB if the pipe is currently empty (§4.8 PipeRead). It returns
// the number of bytes copied.
func (p *Pipe) Read(pcb *kproc.PCB, buf []byte) int {
	p.mu.Lock()
	for p.size == 0 {
		rw := &readWaiter{pcb: pcb, wake: make(chan struct{})}
		p.readWaiters.PushBack(rw)
		p.sched.Block(pcb)
		p.mu.Unlock()
		<-rw.wake
		p.mu.Lock()
	}

	n := min(len(buf), p.size)
	p.copyOut(buf[:n], n)
	p.size -= n

	p.drainWriteWaiters()
	p.mu.Unlock()
	return n
}

// Write copies up to len(buf) bytes into the pipe, queuing and blocking
// for the remainder if it doesn't all fit (§4.8 PipeWrite). It returns
// the number of bytes copied into the buffer immediately, before any
// queuing. If the remainder had to be queued, Write does not return until
// a later Read has drained that remainder into the buffer and made the
// caller READY again.
func (p *Pipe) Write(pcb *kproc.PCB, buf []byte) int {
	p.mu.Lock()
	free := len(p.data) - p.size
	m := min(len(buf), free)
	p.copyIn(buf[:m])
	p.size += m

	p.wakeOneReader()

	if m == len(buf) {
		p.mu.Unlock()
		return m
	}

	remaining := make([]byte, len(buf)-m)
	copy(remaining, buf[m:])
	ww := &writeWaiter{buf: remaining, pcb: pcb, done: make(chan int, 1)}
	p.writeWaiters.PushBack(ww)
	p.sched.Block(pcb)
	p.mu.Unlock()

	<-ww.done
	return m
}

// copyOut reads n bytes from the circular buffer starting at readPos into
// dst, advancing readPos, handling wraparound.
func (p *Pipe) copyOut(dst []byte, n int) {
	cap := len(p.data)
	for i := 0; i < n; i++ {
		dst[i] = p.data[(p.readPos+i)%cap]
	}
	p.readPos = (p.readPos + n) % cap
}

// copyIn writes src into the circular buffer starting at writePos,
// advancing writePos, handling wraparound.
func (p *Pipe) copyIn(src []byte) {
	cap := len(p.data)
	for i, b := range src {
		p.data[(p.writePos+i)%cap] = b
	}
	p.writePos = (p.writePos + len(src)) % cap
}

// drainWriteWaiters serves queued write-waiters in FIFO order until the
// next one would overflow the now-freed space (§4.8: "Stop when the next
// waiter would overflow"). Must be called with p.mu held.
func (p *Pipe) drainWriteWaiters() {
	for {
		ww, ok := p.writeWaiters.Front()
		if !ok {
			return
		}
		free := len(p.data) - p.size
		if len(ww.buf) > free {
			return
		}
		p.writeWaiters.PopFront()
		p.copyIn(ww.buf)
		p.size += len(ww.buf)
		ww.done <- len(ww.buf)
		p.sched.Unblock(ww.pcb)
	}
}

// wakeOneReader wakes the head read-waiter, if any, so it retries its
// Read call now that data is available. Must be called with p.mu held.
func (p *Pipe) wakeOneReader() {
	rw, ok := p.readWaiters.PopFront()
	if !ok {
		return
	}
	p.sched.Unblock(rw.pcb)
	close(rw.wake)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
