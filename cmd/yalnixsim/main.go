// Command yalnixsim is a small demo driver: it loads a boot scenario,
// boots a yalnix kernel against it, and puts the host terminal into raw
// mode so a person can interactively drive terminal 0 (§11's
// golang.org/x/term wiring) — the same role `cc`'s and `agents`'s raw-mode
// passthrough plays in tinyrange-cc, but pumping bytes through
// kernel.Simulator.DeliverInput and ksys.Context.TtyWrite instead of a
// real VM's console.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/term"

	"yalnix/config"
	"yalnix/defs"
	"yalnix/kernel"
	"yalnix/kproc"
	"yalnix/loader"
	"yalnix/machine"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a YAML boot scenario (defaults built in if omitted)")
	flag.Parse()

	scenario := config.Default()
	if *scenarioPath != "" {
		loaded, err := config.Load(*scenarioPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "yalnixsim:", err)
			os.Exit(1)
		}
		scenario = loaded
	}

	if err := run(scenario); err != nil {
		fmt.Fprintln(os.Stderr, "yalnixsim:", err)
		os.Exit(1)
	}
}

func run(scenario config.Scenario) error {
	halted := make(chan struct{})

	phys := machine.NewPhysical(scenario.MemFrames)
	cfg := kernel.Config{
		Phys:         phys,
		NFrames:      scenario.MemFrames,
		TLB:          &machine.SimTLB{},
		Pids:         machine.NewPIDAllocator(2),
		Halt:         machine.HaltFunc(func() { close(halted) }),
		NumTerminals: scenario.NumTerminals,
		Loader:       loader.NewStaticLoader(loader.Program{Name: scenario.InitProgram, Entry: defs.Vmem1Base}),
		Console:      os.Stderr,
		MaxProcs:     scenario.MaxProcs,
	}

	argv := scenario.InitArgs
	if len(argv) == 0 {
		argv = []string{scenario.InitProgram}
	}

	var uctxt kproc.UserContext
	k, err := kernel.KernelStart(cfg, argv, &uctxt)
	if err != 0 {
		return fmt.Errorf("KernelStart: %v", err)
	}

	sim := kernel.NewSimulator(k, scenario.Period())
	sim.Run()
	defer sim.Stop()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, rerr := term.MakeRaw(fd)
		if rerr != nil {
			return fmt.Errorf("enable raw mode: %w", rerr)
		}
		defer term.Restore(fd, oldState)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)

	go pumpStdin(sim)
	go echoLoop(k)

	select {
	case <-halted:
		fmt.Fprintln(os.Stderr, "\nyalnixsim: init exited, machine halted")
	case <-sigc:
		fmt.Fprintln(os.Stderr, "\nyalnixsim: interrupted")
	}
	return nil
}

// pumpStdin reads raw host keystrokes and feeds them into terminal 0's
// read queue as if a TtyReceive interrupt had fired (§4.10).
func pumpStdin(sim *kernel.Simulator) {
	r := bufio.NewReader(os.Stdin)
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sim.DeliverInput(0, buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				fmt.Fprintln(os.Stderr, "yalnixsim: stdin:", err)
			}
			return
		}
	}
}

// echoLoop drives terminal 0's read/write syscalls on behalf of the init
// process, mirroring what it reads straight back to the host screen — the
// "shell-like test program" a person interacts with (§11). There is no
// separate guest-program execution model in this kernel (spec.md §1 treats
// the initial user program's binary as an external collaborator specified
// only at the loader-ABI level), so the demo driver itself issues these
// TtyRead/TtyWrite calls on init's behalf.
func echoLoop(k *kernel.Kernel) {
	for {
		n, err := k.Sys.TtyRead(k.Init, 0, defs.TerminalMaxLine)
		if err != 0 {
			return
		}
		buf := k.Init.KernelReadBuffer[:n]
		os.Stdout.Write(buf)
		if _, werr := k.Sys.TtyWrite(k.Init, 0, buf); werr != 0 {
			return
		}
	}
}
