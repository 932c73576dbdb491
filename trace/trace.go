// Package trace reads and writes register traces and replays them as an
// instruction engine.
//
// A trace of n instructions holds n+1 steps. Step i carries the registers
// before instruction i and the memory cells that instruction writes; the
// final step carries the registers after the last instruction.
package trace

import (
	"errors"
	"fmt"
	"os"

	"github.com/chazu/hintbridge/vm"
	"github.com/chazu/hintbridge/wire"
)

// Version is the trace file format version.
const Version = 1

var (
	ErrTraceDiverged  = errors.New("trace: registers diverged from trace")
	ErrTraceExhausted = errors.New("trace: no more steps")
	ErrVersion        = errors.New("trace: unsupported version")
)

// Cell is one memory write.
type Cell struct {
	Addr  vm.Relocatable      `cbor:"1,keyasint"`
	Value vm.MaybeRelocatable `cbor:"2,keyasint"`
}

// Step is the register state before one instruction and its writes.
type Step struct {
	Pc     vm.Relocatable `cbor:"1,keyasint"`
	Ap     vm.Relocatable `cbor:"2,keyasint"`
	Fp     vm.Relocatable `cbor:"3,keyasint"`
	Writes []Cell         `cbor:"4,keyasint,omitempty"`
}

// RunContext returns the step's registers.
func (s Step) RunContext() vm.RunContext {
	return vm.RunContext{Pc: s.Pc, Ap: s.Ap, Fp: s.Fp}
}

// File is the on-disk trace.
type File struct {
	Version int    `cbor:"1,keyasint"`
	Steps   []Step `cbor:"2,keyasint"`
}

// FromEntries converts a recorded machine trace into steps without writes.
func FromEntries(entries []vm.TraceEntry) []Step {
	steps := make([]Step, len(entries))
	for i, e := range entries {
		steps[i] = Step{Pc: e.Pc, Ap: e.Ap, Fp: e.Fp}
	}
	return steps
}

// Encode serializes steps as a trace file.
func Encode(steps []Step) ([]byte, error) {
	return wire.Marshal(&File{Version: Version, Steps: steps})
}

// Decode parses a trace file.
func Decode(data []byte) ([]Step, error) {
	var f File
	if err := wire.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, f.Version)
	}
	return f.Steps, nil
}

// WriteFile writes steps to path.
func WriteFile(path string, steps []Step) error {
	data, err := Encode(steps)
	if err != nil {
		return fmt.Errorf("trace: encode: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile reads a trace file.
func ReadFile(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	steps, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", path, err)
	}
	return steps, nil
}

// ReplayRunner replays a trace as the machine's instruction engine. Each
// instruction checks that the registers match the trace, performs the
// recorded writes and moves the registers to the next step.
type ReplayRunner struct {
	steps []Step
	next  int
}

// NewReplayRunner returns a runner positioned at the first step.
func NewReplayRunner(steps []Step) *ReplayRunner {
	return &ReplayRunner{steps: steps}
}

// Remaining returns the number of instructions left to replay.
func (r *ReplayRunner) Remaining() int {
	if n := len(r.steps) - 1 - r.next; n > 0 {
		return n
	}
	return 0
}

// Initial returns the registers of the first step.
func (r *ReplayRunner) Initial() (vm.RunContext, bool) {
	if len(r.steps) == 0 {
		return vm.RunContext{}, false
	}
	return r.steps[0].RunContext(), true
}

func (r *ReplayRunner) StepInstruction(machine *vm.VirtualMachine) error {
	if r.next+1 >= len(r.steps) {
		return ErrTraceExhausted
	}
	cur := r.steps[r.next]
	if machine.RunContext != cur.RunContext() {
		return fmt.Errorf("%w: step %d: pc %s ap %s fp %s, trace pc %s ap %s fp %s", ErrTraceDiverged, r.next,
			machine.Pc(), machine.Ap(), machine.Fp(), cur.Pc, cur.Ap, cur.Fp)
	}
	for _, c := range cur.Writes {
		if err := machine.InsertValue(c.Addr, c.Value); err != nil {
			return fmt.Errorf("trace step %d: %w", r.next, err)
		}
	}
	machine.RunContext = r.steps[r.next+1].RunContext()
	r.next++
	return nil
}
