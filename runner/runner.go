// Package runner drives one run: it owns the machine, the scope stack and
// the hint locals, loads the program into memory and steps the machine
// through the hint bridge.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/tliron/commonlog"

	"github.com/chazu/hintbridge/hint"
	"github.com/chazu/hintbridge/program"
	"github.com/chazu/hintbridge/scope"
	"github.com/chazu/hintbridge/trace"
	"github.com/chazu/hintbridge/vm"
	"github.com/chazu/hintbridge/wire"
)

var log = commonlog.GetLogger("hintbridge.runner")

// ErrStepLimit is returned when a run exceeds its step budget.
var ErrStepLimit = errors.New("step limit reached")

// Recorder receives run history.
type Recorder interface {
	RecordStep(step int, regs vm.RunContext) error
	RecordHint(step int, ev hint.HintEvent) error
}

// Config configures a Session.
type Config struct {
	// Prime is the field modulus. Nil selects vm.StarkPrime.
	Prime        *uint256.Int
	TraceEnabled bool

	Program      *program.Program
	Instructions vm.InstructionRunner

	// Processor runs native hints. Nil selects the builtin processor.
	Processor hint.HintProcessor

	// Locals are the caller's hint locals. Nil starts an empty table.
	Locals hint.Locals

	Signatures *hint.Signatures
	Recorder   Recorder
}

// Session is one run.
type Session struct {
	vm        *vm.VirtualMachine
	bridge    *hint.Bridge
	scopes    *scope.ExecutionScopes
	locals    hint.Locals
	processor hint.HintProcessor
	program   *program.Program
	recorder  Recorder
	recErr    error
}

// New creates a session and initializes memory. Segment 0 holds the
// program, segment 1 is the execution segment, segments referenced by the
// initial memory follow, and the signature builtin takes the next one.
// Signatures are applied before any instruction runs.
func New(cfg Config) (*Session, error) {
	if cfg.Program == nil {
		return nil, errors.New("runner: no program")
	}
	s := &Session{
		vm:        vm.NewVirtualMachine(cfg.Prime, cfg.TraceEnabled),
		scopes:    scope.New(),
		locals:    cfg.Locals,
		processor: cfg.Processor,
		program:   cfg.Program,
		recorder:  cfg.Recorder,
	}
	if s.locals == nil {
		s.locals = hint.Locals{}
	}
	if s.processor == nil {
		s.processor = hint.NewBuiltinHintProcessor()
	}
	s.bridge = hint.NewBridge(s.vm,
		hint.WithStructs(cfg.Program.Structs),
		hint.WithObserver(s.observe),
	)
	if cfg.Instructions != nil {
		s.vm.SetInstructionRunner(cfg.Instructions)
	}

	if err := s.initialize(cfg.Signatures); err != nil {
		return nil, err
	}
	log.Infof("session ready: %d hint(s), %d segment(s)", cfg.Program.NumHints(), s.vm.Memory().NumSegments())
	return s, nil
}

func (s *Session) initialize(sigs *hint.Signatures) error {
	for i := 0; i <= s.program.MaxSegment(); i++ {
		s.vm.AddMemorySegment()
	}
	s.vm.Signature.InitializeSegments(s.vm.Segments)

	for _, c := range s.program.Cells {
		if err := s.vm.InsertValue(c.Addr, c.Value(s.vm.Prime())); err != nil {
			return fmt.Errorf("load program memory: %w", err)
		}
	}

	e := s.program.Entry
	s.vm.RunContext = vm.RunContext{
		Pc: vm.NewRelocatable(program.ProgramSegment, e.Pc),
		Ap: vm.NewRelocatable(program.ExecutionSegment, e.Ap),
		Fp: vm.NewRelocatable(program.ExecutionSegment, e.Fp),
	}

	if sigs != nil {
		if err := sigs.Apply(s.vm.Signature); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) observe(ev hint.HintEvent) {
	if s.recorder == nil || s.recErr != nil {
		return
	}
	if err := s.recorder.RecordHint(s.vm.CurrentStep(), ev); err != nil {
		s.recErr = err
	}
}

// VM returns the machine.
func (s *Session) VM() *vm.VirtualMachine { return s.vm }

// Scopes returns the scope stack.
func (s *Session) Scopes() *scope.ExecutionScopes { return s.scopes }

// Locals returns the hint locals.
func (s *Session) Locals() hint.Locals { return s.locals }

// Program returns the loaded program.
func (s *Session) Program() *program.Program { return s.program }

// Step runs the hints at the current pc and one instruction.
func (s *Session) Step() error {
	if s.recorder != nil {
		if err := s.recorder.RecordStep(s.vm.CurrentStep(), s.vm.RunContext); err != nil {
			return fmt.Errorf("record step: %w", err)
		}
	}
	if err := s.bridge.Step(s.processor, s.locals, s.scopes, s.program.Hints); err != nil {
		return fmt.Errorf("step %d at pc %s: %w", s.vm.CurrentStep(), s.vm.Pc(), err)
	}
	if s.recErr != nil {
		err := s.recErr
		s.recErr = nil
		return fmt.Errorf("record hint: %w", err)
	}
	return nil
}

// RunSteps executes up to n steps and returns how many completed.
func (s *Session) RunSteps(ctx context.Context, n int) (int, error) {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.Step(); err != nil {
			return i, err
		}
	}
	return n, nil
}

// RunUntilPC steps until pc reaches the given offset of the program
// segment. maxSteps bounds the run when positive.
func (s *Session) RunUntilPC(ctx context.Context, pc, maxSteps int) error {
	steps := 0
	for s.vm.Pc().Offset != pc {
		if maxSteps > 0 && steps >= maxSteps {
			return fmt.Errorf("%w: %d steps without reaching pc %d", ErrStepLimit, steps, pc)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(); err != nil {
			return err
		}
		steps++
	}
	log.Infof("reached pc %d after %d step(s)", pc, steps)
	return nil
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// Snapshot is the machine state after a run.
type Snapshot struct {
	Registers    vm.TraceEntry `cbor:"1,keyasint"`
	Steps        int           `cbor:"2,keyasint"`
	SegmentSizes []int         `cbor:"3,keyasint"`
	Cells        []trace.Cell  `cbor:"4,keyasint"`
	ScopeDepth   int           `cbor:"5,keyasint"`
}

// Snapshot captures registers, memory and scope depth.
func (s *Session) Snapshot() *Snapshot {
	snap := &Snapshot{
		Registers:    vm.TraceEntry{Pc: s.vm.Pc(), Ap: s.vm.Ap(), Fp: s.vm.Fp()},
		Steps:        s.vm.CurrentStep(),
		SegmentSizes: s.vm.Segments.UsedSizes(),
		ScopeDepth:   s.scopes.Depth(),
	}
	s.vm.Memory().Walk(func(addr vm.Relocatable, v vm.MaybeRelocatable) bool {
		snap.Cells = append(snap.Cells, trace.Cell{Addr: addr, Value: v})
		return true
	})
	return snap
}

// WriteSnapshot writes the session snapshot to path.
func (s *Session) WriteSnapshot(path string) error {
	data, err := wire.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot reads a snapshot file.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := wire.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
