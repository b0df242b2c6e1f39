package kpipe

import (
	"testing"
	"time"

	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/ksched"
)

func newTestPipe() (*Pipe, *ksched.Scheduler) {
	idle := kproc.NewPCB(0, nil)
	sched := ksched.New(idle)
	return New(1, sched), sched
}

func TestWriteThenReadRoundtrip(t *testing.T) {
	p, _ := newTestPipe()
	writer := kproc.NewPCB(1, nil)
	reader := kproc.NewPCB(2, nil)

	n := p.Write(writer, []byte("hello"))
	if n != 5 {
		t.Fatalf("Write() = %d, want 5", n)
	}
	buf := make([]byte, 5)
	got := p.Read(reader, buf)
	if got != 5 || string(buf) != "hello" {
		t.Fatalf("Read() = %d %q, want 5 hello", got, buf)
	}
}

func TestReadBlocksUntilWrite(t *testing.T) {
	p, sched := newTestPipe()
	reader := kproc.NewPCB(2, nil)
	writer := kproc.NewPCB(1, nil)

	resultCh := make(chan int, 1)
	go func() {
		buf := make([]byte, 3)
		resultCh <- p.Read(reader, buf)
	}()

	time.Sleep(20 * time.Millisecond)
	if reader.GetState() != defs.Blocked {
		t.Fatalf("expected reader blocked, got %v", reader.GetState())
	}
	_ = sched

	p.Write(writer, []byte("abc"))

	select {
	case n := <-resultCh:
		if n != 3 {
			t.Fatalf("Read() = %d, want 3", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for blocked reader to resume")
	}
	if reader.GetState() != defs.Ready {
		t.Fatalf("expected reader ready after wake, got %v", reader.GetState())
	}
}

func TestWriteQueuesRemainderWhenFull(t *testing.T) {
	p, _ := newTestPipe()
	writer1 := kproc.NewPCB(1, nil)
	reader := kproc.NewPCB(2, nil)

	big := make([]byte, defs.PipeBufferLen)
	for i := range big {
		big[i] = byte(i)
	}
	n := p.Write(writer1, big)
	if n != defs.PipeBufferLen {
		t.Fatalf("first Write() = %d, want %d", n, defs.PipeBufferLen)
	}

	writer2 := kproc.NewPCB(3, nil)
	doneCh := make(chan int, 1)
	go func() {
		doneCh <- p.Write(writer2, []byte("overflow"))
	}()
	time.Sleep(20 * time.Millisecond)
	if writer2.GetState() != defs.Blocked {
		t.Fatalf("expected second writer blocked, got %v", writer2.GetState())
	}

	buf := make([]byte, defs.PipeBufferLen)
	got := p.Read(reader, buf)
	if got != defs.PipeBufferLen {
		t.Fatalf("Read() = %d, want %d", got, defs.PipeBufferLen)
	}

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued writer to drain")
	}

	buf2 := make([]byte, len("overflow"))
	got2 := p.Read(reader, buf2)
	if got2 != len("overflow") || string(buf2) != "overflow" {
		t.Fatalf("Read() after drain = %d %q", got2, buf2)
	}
}

func TestIdleReportsNoWaiters(t *testing.T) {
	p, _ := newTestPipe()
	if !p.Idle() {
		t.Fatal("expected fresh pipe to be idle")
	}
}
