package vm

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrNoInstructionRunner is returned by StepInstruction when no engine has
// been attached.
var ErrNoInstructionRunner = errors.New("vm: no instruction runner")

// RunContext holds the register values.
type RunContext struct {
	Pc Relocatable
	Ap Relocatable
	Fp Relocatable
}

// TraceEntry records the registers before one instruction.
type TraceEntry struct {
	Pc Relocatable `cbor:"1,keyasint"`
	Ap Relocatable `cbor:"2,keyasint"`
	Fp Relocatable `cbor:"3,keyasint"`
}

// InstructionRunner executes one instruction against the machine state,
// updating registers and memory.
type InstructionRunner interface {
	StepInstruction(vm *VirtualMachine) error
}

// VirtualMachine is the machine state shared between the instruction
// engine and hints: registers, memory, segments and builtins.
type VirtualMachine struct {
	RunContext RunContext
	Segments   *MemorySegmentManager
	Signature  *SignatureBuiltinRunner

	prime        *uint256.Int
	traceEnabled bool
	trace        []TraceEntry
	currentStep  int
	runner       InstructionRunner
}

// NewVirtualMachine creates a machine over an empty memory. A nil prime
// selects StarkPrime.
func NewVirtualMachine(prime *uint256.Int, traceEnabled bool) *VirtualMachine {
	if prime == nil {
		prime = StarkPrime
	}
	return &VirtualMachine{
		Segments:     NewMemorySegmentManager(NewMemory()),
		Signature:    NewSignatureBuiltinRunner(),
		prime:        prime,
		traceEnabled: traceEnabled,
	}
}

// SetInstructionRunner attaches the instruction engine.
func (vm *VirtualMachine) SetInstructionRunner(r InstructionRunner) {
	vm.runner = r
}

// Prime returns the field modulus.
func (vm *VirtualMachine) Prime() *uint256.Int { return vm.prime }

// Memory returns the machine memory.
func (vm *VirtualMachine) Memory() *Memory { return vm.Segments.Memory }

func (vm *VirtualMachine) Pc() Relocatable { return vm.RunContext.Pc }
func (vm *VirtualMachine) Ap() Relocatable { return vm.RunContext.Ap }
func (vm *VirtualMachine) Fp() Relocatable { return vm.RunContext.Fp }

// CurrentStep returns the number of executed instructions.
func (vm *VirtualMachine) CurrentStep() int { return vm.currentStep }

// Trace returns the recorded trace. It is empty unless tracing is enabled.
func (vm *VirtualMachine) Trace() []TraceEntry { return vm.trace }

// AddMemorySegment allocates a new segment.
func (vm *VirtualMachine) AddMemorySegment() Relocatable {
	return vm.Segments.Add()
}

// InsertValue writes a value into memory. Field elements must already be
// reduced modulo the machine's prime.
func (vm *VirtualMachine) InsertValue(addr Relocatable, v MaybeRelocatable) error {
	if f, ok := v.GetFelt(); ok && !f.InField(vm.prime) {
		return fmt.Errorf("memory[%s] = %s: %w", addr, f, ErrFeltOutOfField)
	}
	return vm.Segments.Memory.Insert(addr, v)
}

// GetMaybe reads a value from memory.
func (vm *VirtualMachine) GetMaybe(addr Relocatable) (MaybeRelocatable, bool) {
	return vm.Segments.Memory.Get(addr)
}

// StepInstruction executes exactly one instruction.
func (vm *VirtualMachine) StepInstruction() error {
	if vm.runner == nil {
		return ErrNoInstructionRunner
	}
	if vm.traceEnabled {
		vm.trace = append(vm.trace, TraceEntry{
			Pc: vm.RunContext.Pc,
			Ap: vm.RunContext.Ap,
			Fp: vm.RunContext.Fp,
		})
	}
	if err := vm.runner.StepInstruction(vm); err != nil {
		return err
	}
	vm.currentStep++
	return nil
}
