// Package kernel wires every other package into the running whole
// (spec.md's Kernel_t) and implements KernelStart, the single entry point
// the simulator calls with physical-memory size, argv, and a pointer to
// the initial user context (§2, §6). Everything after KernelStart returns
// happens through ktrap dispatch: Tick for the clock, HandleSyscall for
// kernel traps, and the ksys trap handlers for memory/illegal/math/disk.
package kernel

import (
	"io"

	"yalnix/defs"
	"yalnix/klog"
	"yalnix/kmem"
	"yalnix/kproc"
	"yalnix/ksched"
	"yalnix/ksys"
	"yalnix/ktrap"
	"yalnix/ktty"
	"yalnix/kvm"
	"yalnix/machine"
)

// reservedKernelPages is the nominal size of the kernel's own text/data
// image, identity-mapped at boot. This kernel has no compiled image to
// size against (it runs as ordinary Go, not a loaded ELF binary), so this
// is a fixed stand-in reservation rather than a value read off a binary.
const reservedKernelPages = 16

// Kernel is every subsystem KernelStart builds and trap dispatch
// subsequently drives.
type Kernel struct {
	Frames   *kmem.Frames
	KernelPT *kvm.PageTable
	Brk      *kvm.KernelBrk
	TLB      kvm.TLB
	Phys     kvm.PhysMem
	Sched    *ksched.Scheduler
	CS       *ksched.ContextSwitcher
	Pids     *machine.PIDAllocator
	Halt     machine.Halter
	TTYs     *ktty.Array
	Sys      *ksys.Context
	Trap     *ktrap.Vector
	Log      *klog.Logger

	Idle *kproc.PCB
	Init *kproc.PCB
}

// Config bundles KernelStart's collaborators: the things only the
// harness around the kernel (kernel.Simulator, cmd/yalnixsim, or a test)
// can supply. NFrames and the loader stand in for "pmem_size" and the
// external program-loader collaborator (§1, §6).
type Config struct {
	Phys         kvm.PhysMem
	NFrames      int
	TLB          kvm.TLB
	Pids         *machine.PIDAllocator
	Halt         machine.Halter
	NumTerminals int
	Loader       ksys.Loader
	Console      io.Writer
	MaxProcs     int
}

// KernelStart builds the frame bitmap, the kernel page table (identity-
// mapping Region 0's reserved text/data range), brings up the kernel heap
// break, installs the trap vector, creates the named idle and init PCBs
// (§12's supplemented "named boot processes" feature), loads the init
// program, and sets uctxt to resume in the init process — the single call
// the simulator makes per spec.md §2/§6's "Boot entry."
func KernelStart(cfg Config, argv []string, uctxt *kproc.UserContext) (*Kernel, defs.Errno) {
	log := klog.New(cfg.Console, klog.Info)

	frames := kmem.New(cfg.NFrames)
	kernelPT := kvm.NewPageTable(defs.Vmem0Base, defs.Vmem0Size)
	for vpn := 0; vpn < reservedKernelPages; vpn++ {
		frames.Mark(vpn)
		kernelPT.Map(vpn, vpn, defs.ProtRead|defs.ProtWrite|defs.ProtExec)
	}

	kstackBasePage := kernelPT.PageOf(defs.KernelStackBase)
	brk := kvm.NewKernelBrk(kernelPT, frames, cfg.TLB, reservedKernelPages, kstackBasePage)
	if err := brk.EnableVM(); err != 0 {
		log.Fatalf("KernelStart: EnableVM: %v", err)
	}

	idle := kproc.NewPCB(0, nil)
	idle.Name = "idle"
	if err := allocKStack(frames, idle); err != 0 {
		log.Fatalf("KernelStart: idle kernel stack: %v", err)
	}

	sched := ksched.New(idle)
	cs := ksched.NewContextSwitcher(kernelPT, cfg.TLB, cfg.Phys, sched)

	numTerminals := cfg.NumTerminals
	if numTerminals <= 0 {
		numTerminals = defs.NumTerminals
	}
	ttys := ktty.NewArray(numTerminals, sched)

	sys := ksys.New(frames, kernelPT, cfg.TLB, cfg.Phys, sched, cs, cfg.Pids, cfg.Halt, cfg.Loader, ttys, cfg.MaxProcs)

	// init's pid is hardcoded to 1, exactly like idle's pid 0 above: §4.6's
	// "the init process (pid 1) exiting halts the system" is a hard
	// identity check in ksys.Exit, not a race against whatever the first
	// Pids.Alloc() call happens to return. cfg.Pids is reserved entirely
	// for Fork's children; the caller constructs it starting at 2.
	initPT := kvm.NewPageTable(defs.Vmem1Base, defs.Vmem1Size)
	init := kproc.NewPCB(1, initPT)
	init.Name = "init"
	if err := allocKStack(frames, init); err != 0 {
		log.Fatalf("KernelStart: init kernel stack: %v", err)
	}
	sys.RegisterProc(init)

	initArgv := argv
	if len(initArgv) == 0 {
		initArgv = []string{"init"}
	}
	if err := sys.Exec(init, initArgv[0], initArgv[1:]); err != 0 {
		log.Fatalf("KernelStart: loading %q: %v", initArgv[0], err)
	}

	trap := ktrap.New()
	k := &Kernel{
		Frames:   frames,
		KernelPT: kernelPT,
		Brk:      brk,
		TLB:      cfg.TLB,
		Phys:     cfg.Phys,
		Sched:    sched,
		CS:       cs,
		Pids:     cfg.Pids,
		Halt:     cfg.Halt,
		TTYs:     ttys,
		Sys:      sys,
		Trap:     trap,
		Log:      log,
		Idle:     idle,
		Init:     init,
	}
	k.installTraps()

	sched.SetRunning(init)
	*uctxt = init.UCtxt
	return k, 0
}

func allocKStack(frames *kmem.Frames, p *kproc.PCB) defs.Errno {
	n := defs.KernelStackMaxSize / defs.PageSize
	pfns := make([]int, 0, n)
	for i := 0; i < n; i++ {
		pfn := frames.GetFree()
		if pfn == defs.ERROR {
			for _, f := range pfns {
				frames.FreeFrame(f)
			}
			return defs.ENOMEM
		}
		pfns = append(pfns, pfn)
	}
	p.KStackPfn = pfns
	return 0
}

// installTraps binds the kernel, memory, illegal, math and disk trap
// vector slots to the ksys handlers (§6, §7). TrapClock, TrapTTYReceive and
// TrapTTYTransmit are left unbound, so dispatching them is fatal: the clock
// tick is driven by kernel.Simulator calling Sched.Tick directly, and
// terminal input arrives through Simulator.DeliverInput, neither routed
// through the kernel-trap dispatch table.
func (k *Kernel) installTraps() {
	k.Trap.Install(defs.TrapKernel, func(p *kproc.PCB, info ktrap.Info) {
		k.HandleSyscall(p, info)
	})
	k.Trap.Install(defs.TrapMemory, func(p *kproc.PCB, info ktrap.Info) {
		k.Sys.MemoryTrap(p, info.Addr, defs.MemCode(info.Code))
	})
	k.Trap.Install(defs.TrapIllegal, func(p *kproc.PCB, info ktrap.Info) {
		k.Sys.IllegalTrap(p, info.Code)
	})
	k.Trap.Install(defs.TrapMath, func(p *kproc.PCB, info ktrap.Info) {
		k.Sys.MathTrap(p, info.Code)
	})
	k.Trap.Install(defs.TrapDisk, func(p *kproc.PCB, info ktrap.Info) {
		k.Sys.DiskTrap(p, info.Code)
	})
}
