package hint

import (
	"math/big"
	"testing"

	"github.com/chazu/hintbridge/scope"
	"github.com/chazu/hintbridge/vm"
)

// stepRunner advances pc by one per instruction.
type stepRunner struct {
	steps int
}

func (r *stepRunner) StepInstruction(machine *vm.VirtualMachine) error {
	r.steps++
	machine.RunContext.Pc.Offset++
	return nil
}

// newTestVM returns a machine with a program segment 0 and an execution
// segment 1, pc = (0, 0), fp = (1, 5), ap = (1, 7).
func newTestVM() *vm.VirtualMachine {
	machine := vm.NewVirtualMachine(nil, false)
	prog := machine.AddMemorySegment()
	exec := machine.AddMemorySegment()
	machine.RunContext = vm.RunContext{
		Pc: prog,
		Ap: vm.NewRelocatable(exec.SegmentIndex, 7),
		Fp: vm.NewRelocatable(exec.SegmentIndex, 5),
	}
	machine.SetInstructionRunner(&stepRunner{})
	return machine
}

func newTestBridge(t *testing.T, opts ...Option) (*Bridge, *scope.ExecutionScopes) {
	t.Helper()
	return NewBridge(newTestVM(), opts...), scope.New()
}

func code(src string, ids map[string]*HintReference) *HintData {
	return &HintData{Code: src, Ids: ids}
}

func mustInsert(t *testing.T, machine *vm.VirtualMachine, addr vm.Relocatable, v vm.MaybeRelocatable) {
	t.Helper()
	if err := machine.InsertValue(addr, v); err != nil {
		t.Fatalf("InsertValue(%v): %v", addr, err)
	}
}

func mustGet(t *testing.T, machine *vm.VirtualMachine, addr vm.Relocatable) vm.MaybeRelocatable {
	t.Helper()
	v, ok := machine.GetMaybe(addr)
	if !ok {
		t.Fatalf("memory[%v] unset", addr)
	}
	return v
}

func scopeVar(t *testing.T, scopes *scope.ExecutionScopes, name string) any {
	t.Helper()
	v, err := scopes.Get(name)
	if err != nil {
		t.Fatalf("scope %s: %v", name, err)
	}
	return v
}

func fpRef(offset int) *HintReference {
	return &HintReference{Register: RegFP, Offset: offset, CairoType: "felt"}
}

func immediateRef(n int64) *HintReference {
	return &HintReference{Register: RegNone, Immediate: big.NewInt(n), CairoType: "felt"}
}
