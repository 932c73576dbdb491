package hint

import (
	"fmt"
	"strings"

	"github.com/chazu/hintbridge/scope"
	"github.com/chazu/hintbridge/vm"
)

// HintProcessor executes hints natively. It returns an error matching
// ErrUnknownHint for hints it does not implement.
type HintProcessor interface {
	ExecuteHint(machine *vm.VirtualMachine, scopes *scope.ExecutionScopes, data *HintData, ids *Ids) error
}

// HintFunc is a native hint implementation.
type HintFunc func(machine *vm.VirtualMachine, scopes *scope.ExecutionScopes, data *HintData, ids *Ids) error

// Hint codes with native implementations in every BuiltinHintProcessor.
const (
	AddSegmentCode = "memory[ap] = segments.add()"
	EnterScopeCode = "vm_enter_scope()"
	ExitScopeCode  = "vm_exit_scope()"
)

// BuiltinHintProcessor dispatches hints by their trimmed source text.
type BuiltinHintProcessor struct {
	hints map[string]HintFunc
}

// NewBuiltinHintProcessor returns a processor with the built-in hints.
func NewBuiltinHintProcessor() *BuiltinHintProcessor {
	p := NewEmptyHintProcessor()
	p.Register(AddSegmentCode, addSegment)
	p.Register(EnterScopeCode, func(_ *vm.VirtualMachine, scopes *scope.ExecutionScopes, _ *HintData, _ *Ids) error {
		scopes.Enter(nil)
		return nil
	})
	p.Register(ExitScopeCode, func(_ *vm.VirtualMachine, scopes *scope.ExecutionScopes, _ *HintData, _ *Ids) error {
		return scopes.Exit()
	})
	return p
}

// NewEmptyHintProcessor returns a processor that knows no hints, so every
// hint runs as a script.
func NewEmptyHintProcessor() *BuiltinHintProcessor {
	return &BuiltinHintProcessor{hints: make(map[string]HintFunc)}
}

// Register adds or replaces the implementation for code.
func (p *BuiltinHintProcessor) Register(code string, fn HintFunc) {
	p.hints[strings.TrimSpace(code)] = fn
}

// Len returns the number of registered hints.
func (p *BuiltinHintProcessor) Len() int { return len(p.hints) }

func (p *BuiltinHintProcessor) ExecuteHint(machine *vm.VirtualMachine, scopes *scope.ExecutionScopes, data *HintData, ids *Ids) error {
	fn, ok := p.hints[strings.TrimSpace(data.Code)]
	if !ok {
		return fmt.Errorf("pc %d: %w", data.Pc, ErrUnknownHint)
	}
	return fn(machine, scopes, data, ids)
}

func addSegment(machine *vm.VirtualMachine, _ *scope.ExecutionScopes, _ *HintData, _ *Ids) error {
	base := machine.AddMemorySegment()
	return machine.InsertValue(machine.Ap(), vm.AddrValue(base))
}
