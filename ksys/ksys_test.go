package ksys

import (
	"testing"
	"time"

	"yalnix/defs"
	"yalnix/kmem"
	"yalnix/kproc"
	"yalnix/ksched"
	"yalnix/ktty"
	"yalnix/kvm"
	"yalnix/machine"
)

const testFrames = 64

func newTestContext(t *testing.T) (*Context, *ksched.Scheduler, *machine.Physical) {
	t.Helper()
	phys := machine.NewPhysical(testFrames)
	frames := kmem.New(testFrames)
	kernelPT := kvm.NewPageTable(0, defs.Vmem0Limit)
	tlb := &machine.SimTLB{}
	idle := kproc.NewPCB(0, nil)
	sched := ksched.New(idle)
	cs := ksched.NewContextSwitcher(kernelPT, tlb, phys, sched)
	pids := machine.NewPIDAllocator(100)
	halt := machine.HaltFunc(func() {})
	ttys := ktty.NewArray(defs.NumTerminals, sched)
	ctx := New(frames, kernelPT, tlb, phys, sched, cs, pids, halt, stubLoader{}, ttys, 16)
	return ctx, sched, phys
}

type stubLoader struct{}

func (stubLoader) Load(filename string, argv []string, pt *kvm.PageTable, frames *kmem.Frames, phys kvm.PhysMem) (LoadResult, defs.Errno) {
	textPfn := frames.GetFree()
	if textPfn == defs.ERROR {
		return LoadResult{}, defs.ENOMEM
	}
	pt.Map(0, textPfn, defs.ProtRead|defs.ProtWrite)
	stackVpn := pt.NumPages() - 1
	stackPfn := frames.GetFree()
	if stackPfn == defs.ERROR {
		return LoadResult{}, defs.ENOMEM
	}
	pt.Map(stackVpn, stackPfn, defs.ProtRead|defs.ProtWrite)
	return LoadResult{
		Entry:     pt.AddrOf(0),
		SP:        pt.AddrOf(stackVpn) + defs.PageSize,
		TextBase:  0,
		TextPages: 1,
	}, 0
}

func newTestProc(ctx *Context, pid int) *kproc.PCB {
	pt := kvm.NewPageTable(defs.Vmem1Base, defs.Vmem1Size)
	p := kproc.NewPCB(pid, pt)
	ctx.RegisterProc(p)
	return p
}

func TestGetPid(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 5)
	if got := ctx.GetPid(p); got != 5 {
		t.Fatalf("GetPid() = %d, want 5", got)
	}
}

func TestDelayRejectsNegative(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)
	if got := ctx.Delay(p, -1); got != defs.ERROR {
		t.Fatalf("Delay(-1) = %d, want ERROR", got)
	}
}

func TestDelayZeroReturnsImmediately(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)
	if got := ctx.Delay(p, 0); got != 0 {
		t.Fatalf("Delay(0) = %d, want 0", got)
	}
}

func TestDelayBlocksThenWakesOnTick(t *testing.T) {
	ctx, sched, _ := newTestContext(t)
	p := newTestProc(ctx, 2)

	doneCh := make(chan int, 1)
	go func() { doneCh <- ctx.Delay(p, 2) }()
	time.Sleep(20 * time.Millisecond)
	if p.GetState() != defs.Blocked {
		t.Fatalf("expected blocked, got %v", p.GetState())
	}
	sched.Tick()
	if p.GetState() != defs.Blocked {
		t.Fatalf("expected still blocked after 1 tick, got %v", p.GetState())
	}
	sched.Tick()
	select {
	case got := <-doneCh:
		if got != 0 {
			t.Fatalf("Delay() = %d, want 0", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delay to expire")
	}
}

func TestBrkFirstCallThenGrowShrinkSymmetry(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)

	before := ctx.Frames.Free()
	base := p.Region1.AddrOf(p.Region1.FirstHole())
	grown := ctx.Brk(p, base+3*defs.PageSize)
	if grown != base+3*defs.PageSize {
		t.Fatalf("Brk grow = %d, want %d", grown, base+3*defs.PageSize)
	}
	if ctx.Frames.Free() != before-3 {
		t.Fatalf("Free() = %d, want %d after growth", ctx.Frames.Free(), before-3)
	}
	shrunk := ctx.Brk(p, base)
	if shrunk != base {
		t.Fatalf("Brk shrink = %d, want %d", shrunk, base)
	}
	if ctx.Frames.Free() != before {
		t.Fatalf("Free() = %d, want %d after shrink back", ctx.Frames.Free(), before)
	}
}

func TestBrkRejectsOutOfRange(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)
	if got := ctx.Brk(p, defs.Vmem1Limit+1); got != defs.ERROR {
		t.Fatalf("Brk() out of range = %d, want ERROR", got)
	}
}

func TestForkSharesThenDivergesEagerCopy(t *testing.T) {
	ctx, _, phys := newTestContext(t)
	parent := newTestProc(ctx, 2)

	pfn := ctx.Frames.GetFree()
	parent.Region1.Map(0, pfn, defs.ProtRead|defs.ProtWrite)
	as := kvm.NewAddrSpace(parent.Region1, phys)
	as.WriteAt(defs.Vmem1Base, []byte{0x55})

	childPid := ctx.Fork(parent)
	if childPid == defs.ERROR {
		t.Fatal("Fork() failed")
	}
	child, ok := ctx.Proc(childPid)
	if !ok {
		t.Fatal("expected child registered")
	}

	childAS := kvm.NewAddrSpace(child.Region1, phys)
	buf := make([]byte, 1)
	childAS.ReadAt(defs.Vmem1Base, buf)
	if buf[0] != 0x55 {
		t.Fatalf("child initial byte = %#x, want 0x55", buf[0])
	}

	childAS.WriteAt(defs.Vmem1Base, []byte{0xAA})
	parentBuf := make([]byte, 1)
	as.ReadAt(defs.Vmem1Base, parentBuf)
	if parentBuf[0] != 0x55 {
		t.Fatalf("parent byte after child write = %#x, want unchanged 0x55", parentBuf[0])
	}
	childAS.ReadAt(defs.Vmem1Base, buf)
	if buf[0] != 0xAA {
		t.Fatalf("child byte = %#x, want 0xAA", buf[0])
	}

	if child.UCtxt.Regs[0] != 0 {
		t.Fatalf("expected child UCtxt.Regs[0] = 0, got %d", child.UCtxt.Regs[0])
	}
}

func TestWaitWithNoChildrenFails(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)
	_, _, err := ctx.Wait(p)
	if err != defs.EINVAL {
		t.Fatalf("Wait() err = %v, want EINVAL", err)
	}
}

func TestWaitReapsAlreadyZombieChild(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	parent := newTestProc(ctx, 2)
	child := newTestProc(ctx, 3)
	parent.AddChild(child)
	child.Parent = parent
	ctx.Exit(child, 7)

	pid, status, err := ctx.Wait(parent)
	if err != 0 || pid != 3 || status != 7 {
		t.Fatalf("Wait() = %d,%d,%v want 3,7,0", pid, status, err)
	}
	if len(parent.Children()) != 0 {
		t.Fatal("expected child removed from parent's children")
	}
}

func TestWaitBlocksThenWakesOnChildExit(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	parent := newTestProc(ctx, 2)
	child := newTestProc(ctx, 3)
	parent.AddChild(child)
	child.Parent = parent

	resultCh := make(chan int, 1)
	go func() {
		pid, _, _ := ctx.Wait(parent)
		resultCh <- pid
	}()
	time.Sleep(20 * time.Millisecond)
	if parent.GetState() != defs.Blocked {
		t.Fatalf("expected parent blocked, got %v", parent.GetState())
	}

	ctx.Exit(child, 0)

	select {
	case pid := <-resultCh:
		if pid != 3 {
			t.Fatalf("Wait() woke with pid %d, want 3", pid)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for parent to wake")
	}
}

// TestWaitExitRaceNeverLostWakeup hammers Wait/Exit with no sleep-based
// sequencing between them, so the parent's zombie-check-or-register step
// and the child's become-zombie-or-wake step are racing for real on every
// iteration. Before Wait/Exit shared c.mu across both steps, a child that
// finished Exit inside the gap between the parent's zombie check and its
// parentWake registration left the parent blocked forever; this iterates
// enough times that the old code would hang well within the timeout.
func TestWaitExitRaceNeverLostWakeup(t *testing.T) {
	ctx, _, _ := newTestContext(t)

	for i := 0; i < 500; i++ {
		parent := newTestProc(ctx, 1000+2*i)
		child := newTestProc(ctx, 1000+2*i+1)
		parent.AddChild(child)
		child.Parent = parent

		resultCh := make(chan int, 1)
		go func() {
			pid, _, _ := ctx.Wait(parent)
			resultCh <- pid
		}()
		go ctx.Exit(child, 0)

		select {
		case pid := <-resultCh:
			if pid != child.Pid {
				t.Fatalf("iteration %d: Wait() woke with pid %d, want %d", i, pid, child.Pid)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: timed out, parent never woke (lost wakeup)", i)
		}
	}
}

func TestExitOrphansLiveChildren(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	parent := newTestProc(ctx, 2)
	child := newTestProc(ctx, 3)
	parent.AddChild(child)
	child.Parent = parent

	ctx.Exit(parent, 0)
	if child.Parent != nil {
		t.Fatal("expected child's parent reference cleared")
	}
}

func TestReclaimDispatchesByIDRange(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	lockID, _ := ctx.LockInit()
	cvarID, _ := ctx.CvarInit()
	pipeID, _ := ctx.PipeInit()

	if err := ctx.Reclaim(lockID); err != 0 {
		t.Fatalf("Reclaim(lock) = %v, want 0", err)
	}
	if err := ctx.Reclaim(cvarID); err != 0 {
		t.Fatalf("Reclaim(cvar) = %v, want 0", err)
	}
	if err := ctx.Reclaim(pipeID); err != 0 {
		t.Fatalf("Reclaim(pipe) = %v, want 0", err)
	}
	if err := ctx.Reclaim(pipeID); err != defs.ENOTFOUND {
		t.Fatalf("Reclaim() of already-reclaimed id = %v, want ENOTFOUND", err)
	}
}

func TestReclaimBusyWhileHeld(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)
	id, _ := ctx.LockInit()
	ctx.LockAcquire(p, id)
	if err := ctx.Reclaim(id); err != defs.EBUSY {
		t.Fatalf("Reclaim(held lock) = %v, want EBUSY", err)
	}
}

func TestMemoryTrapGrowsStackOnMapErr(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)
	p.UCtxt.SP = uintptr(defs.Vmem1Limit - defs.PageSize)
	faultAddr := defs.Vmem1Limit - 2*defs.PageSize
	if err := ctx.MemoryTrap(p, faultAddr, defs.MapErr); err != 0 {
		t.Fatalf("MemoryTrap() = %v, want 0", err)
	}
	vpn := p.Region1.PageOf(faultAddr)
	if e, ok := p.Region1.Lookup(vpn); !ok || !e.Valid {
		t.Fatal("expected faulting page mapped after stack growth")
	}
}

func TestMemoryTrapAccErrKillsProcess(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	parent := newTestProc(ctx, 2)
	p := newTestProc(ctx, 3)
	parent.AddChild(p)
	p.Parent = parent
	if err := ctx.MemoryTrap(p, defs.Vmem1Base, defs.AccErr); err != defs.EPERM {
		t.Fatalf("MemoryTrap(ACCERR) = %v, want EPERM", err)
	}
	if p.GetState() != defs.Zombie {
		t.Fatalf("expected process killed (zombie), got %v", p.GetState())
	}
}

func TestPipeWriteThenReadRoundtrips(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	writer := newTestProc(ctx, 2)
	reader := newTestProc(ctx, 3)

	id, err := ctx.PipeInit()
	if err != 0 {
		t.Fatalf("PipeInit() err = %v", err)
	}
	n, err := ctx.PipeWrite(writer, id, []byte("hello"))
	if err != 0 || n != 5 {
		t.Fatalf("PipeWrite() = %d,%v want 5,0", n, err)
	}
	buf := make([]byte, 5)
	n, err = ctx.PipeRead(reader, id, buf)
	if err != 0 || n != 5 || string(buf) != "hello" {
		t.Fatalf("PipeRead() = %d,%q,%v want 5,hello,0", n, buf, err)
	}
}

func TestPipeOpUnknownIDReturnsNotFound(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)
	if _, err := ctx.PipeRead(p, 999999, make([]byte, 1)); err != defs.ENOTFOUND {
		t.Fatalf("PipeRead(bad id) err = %v, want ENOTFOUND", err)
	}
}

func TestCvarWaitSignalHandoff(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)

	lockID, _ := ctx.LockInit()
	cvarID, _ := ctx.CvarInit()
	if err := ctx.LockAcquire(p, lockID); err != 0 {
		t.Fatalf("LockAcquire() err = %v", err)
	}

	doneCh := make(chan defs.Errno, 1)
	go func() { doneCh <- ctx.CvarWait(p, cvarID, lockID) }()
	time.Sleep(20 * time.Millisecond)
	if p.GetState() != defs.Blocked {
		t.Fatalf("expected waiter blocked, got %v", p.GetState())
	}

	if err := ctx.CvarSignal(cvarID); err != 0 {
		t.Fatalf("CvarSignal() err = %v", err)
	}

	select {
	case err := <-doneCh:
		if err != 0 {
			t.Fatalf("CvarWait() returned %v, want 0", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for CvarWait to return")
	}
	if l, _ := ctx.locks.get(lockID); l.Owner() != p {
		t.Fatal("expected p to reacquire the lock after waking")
	}
}

func TestTtyWriteThenRead(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	writer := newTestProc(ctx, 2)
	reader := newTestProc(ctx, 3)

	n, err := ctx.TtyWrite(writer, 0, []byte("hi"))
	if err != 0 || n != 2 {
		t.Fatalf("TtyWrite() = %d,%v want 2,0", n, err)
	}

	term := ctx.TTYs.Terminal(0)
	term.Receive([]byte("hi"))

	n, err = ctx.TtyRead(reader, 0, 2)
	if err != 0 || n != 2 {
		t.Fatalf("TtyRead() = %d,%v want 2,0", n, err)
	}
	if string(reader.KernelReadBuffer) != "hi" {
		t.Fatalf("KernelReadBuffer = %q, want %q", reader.KernelReadBuffer, "hi")
	}
}

func TestTtyOpUnknownTerminalReturnsNotFound(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)
	if _, err := ctx.TtyRead(p, 99, 1); err != defs.ENOTFOUND {
		t.Fatalf("TtyRead(bad terminal) err = %v, want ENOTFOUND", err)
	}
}

func TestExecRebuildsRegion1(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	p := newTestProc(ctx, 2)
	if err := ctx.Exec(p, "init", nil); err != 0 {
		t.Fatalf("Exec() = %v, want 0", err)
	}
	if p.UCtxt.PC == 0 || p.UCtxt.SP == 0 {
		t.Fatalf("expected PC/SP set after Exec, got %+v", p.UCtxt)
	}
	e, ok := p.Region1.Lookup(0)
	if !ok || !e.Valid || e.Prot != defs.ProtRead|defs.ProtExec {
		t.Fatalf("expected text page flipped to R+X, got %+v", e)
	}
}
