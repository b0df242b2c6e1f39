package kernel

import (
	"io"
	"testing"

	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/ktrap"
	"yalnix/loader"
	"yalnix/machine"
)

func testConfig() Config {
	phys := machine.NewPhysical(256)
	return Config{
		Phys:         phys,
		NFrames:      256,
		TLB:          &machine.SimTLB{},
		Pids:         machine.NewPIDAllocator(2),
		Halt:         machine.HaltFunc(func() {}),
		NumTerminals: defs.NumTerminals,
		Loader:       loader.NewStaticLoader(loader.Program{Name: "init", Entry: defs.Vmem1Base}),
		Console:      io.Discard,
		MaxProcs:     16,
	}
}

func TestKernelStartBootsInitRunning(t *testing.T) {
	var uctxt kproc.UserContext
	k, err := KernelStart(testConfig(), []string{"init"}, &uctxt)
	if err != 0 {
		t.Fatalf("KernelStart() err = %v", err)
	}
	if k.Init.Pid != 1 {
		t.Fatalf("init pid = %d, want 1 (§4.6: the init process, pid 1, exiting halts the machine)", k.Init.Pid)
	}
	if k.Sched.Running() != k.Init {
		t.Fatal("expected init to be the running process after KernelStart")
	}
	if uctxt.PC == 0 {
		t.Fatal("expected KernelStart to set the returned user context's PC")
	}
}

func TestKernelStartThenForkThenWait(t *testing.T) {
	var uctxt kproc.UserContext
	k, err := KernelStart(testConfig(), []string{"init"}, &uctxt)
	if err != 0 {
		t.Fatalf("KernelStart() err = %v", err)
	}

	childPid := k.Sys.Fork(k.Init)
	if childPid == defs.ERROR {
		t.Fatal("Fork() from init failed")
	}
	child, ok := k.Sys.Proc(childPid)
	if !ok {
		t.Fatal("expected forked child registered")
	}

	k.Sys.Exit(child, 42)
	pid, status, werr := k.Sys.Wait(k.Init)
	if werr != 0 || pid != childPid || status != 42 {
		t.Fatalf("Wait() = %d,%d,%v want %d,42,0", pid, status, werr, childPid)
	}
}

func TestKernelStartInitExitHaltsMachine(t *testing.T) {
	halted := false
	cfg := testConfig()
	cfg.Halt = machine.HaltFunc(func() { halted = true })

	var uctxt kproc.UserContext
	k, err := KernelStart(cfg, []string{"init"}, &uctxt)
	if err != 0 {
		t.Fatalf("KernelStart() err = %v", err)
	}

	k.Sys.Exit(k.Init, 0)
	if !halted {
		t.Fatal("expected init (pid 1) exiting to halt the machine")
	}
}

func TestKernelStartTrapDispatchHandlesSyscall(t *testing.T) {
	var uctxt kproc.UserContext
	k, err := KernelStart(testConfig(), []string{"init"}, &uctxt)
	if err != 0 {
		t.Fatalf("KernelStart() err = %v", err)
	}

	k.Init.UCtxt.Regs[0] = 0
	k.Trap.Dispatch(k.Init, ktrap.Info{Vector: defs.TrapKernel, Code: int(defs.SysGetPid)})
	if got := k.Init.UCtxt.Regs[0]; got != int64(k.Init.Pid) {
		t.Fatalf("GetPid via trap dispatch = %d, want %d", got, k.Init.Pid)
	}
}
