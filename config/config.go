// Package config loads the boot scenario a driving program (cmd/yalnixsim,
// or a test harness standing in for "the simulator") hands to
// kernel.KernelStart: how much physical memory to simulate, how many
// terminals to wire up, the clock period, and which program to boot as
// init. This is the harness around the kernel, not the kernel itself —
// KernelStart's own parameters (argv, pmem_size, uctxt) are fixed by
// spec.md §2/§6 and unaffected by this file's shape. Loaded the way
// tinyrange-cc loads its VM/workload scenario: a single YAML document via
// gopkg.in/yaml.v3, no custom flag parser.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so a scenario file can write "100ms"
// instead of a raw integer nanosecond count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Scenario is the top-level boot-scenario document.
type Scenario struct {
	// MemFrames is the number of physical frames the simulated machine
	// reports to KernelStart as pmem_size (in frames, not bytes).
	MemFrames int `yaml:"mem_frames"`
	// NumTerminals is how many simulated TTY devices to wire up (§4.10,
	// §14's NUM_TERMINALS default applies if zero).
	NumTerminals int `yaml:"num_terminals"`
	// ClockPeriod is the simulated clock's tick interval; the simulator
	// calls Sched.Tick once per period (§4.5 preemption).
	ClockPeriod Duration `yaml:"clock_period"`
	// MaxProcs bounds concurrently live PCBs (§12 supplemented resource
	// limit).
	MaxProcs int `yaml:"max_procs"`
	// InitProgram names the program Exec loads for the init PCB at boot
	// (§2 "loads the init program").
	InitProgram string `yaml:"init_program"`
	// InitArgs is the argument vector passed to the init program.
	InitArgs []string `yaml:"init_args"`
}

// Period returns the scenario's clock period as a time.Duration, for
// passing straight to kernel.NewSimulator.
func (s Scenario) Period() time.Duration {
	return time.Duration(s.ClockPeriod)
}

// Default returns the conventional scenario used when no file is given:
// enough frames for a handful of processes, the spec's default terminal
// count, a 100ms clock, and an init program named "init".
func Default() Scenario {
	return Scenario{
		MemFrames:    4096,
		NumTerminals: 4,
		ClockPeriod:  Duration(100 * time.Millisecond),
		MaxProcs:     256,
		InitProgram:  "init",
		InitArgs:     []string{"init"},
	}
}

// Load reads and parses a scenario file at path, filling any field left
// zero in the YAML document with Default()'s value.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if s.MemFrames <= 0 {
		s.MemFrames = Default().MemFrames
	}
	if s.NumTerminals <= 0 {
		s.NumTerminals = Default().NumTerminals
	}
	if s.ClockPeriod <= 0 {
		s.ClockPeriod = Default().ClockPeriod
	}
	if s.MaxProcs <= 0 {
		s.MaxProcs = Default().MaxProcs
	}
	if s.InitProgram == "" {
		s.InitProgram = Default().InitProgram
	}
	return s, nil
}
