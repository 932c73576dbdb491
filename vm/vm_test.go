package vm

import (
	"errors"
	"testing"
)

// advanceRunner moves pc by one and writes pc's offset at ap.
type advanceRunner struct {
	fail error
}

func (r *advanceRunner) StepInstruction(vm *VirtualMachine) error {
	if r.fail != nil {
		return r.fail
	}
	if err := vm.InsertValue(vm.Ap(), IntValue(uint64(vm.Pc().Offset))); err != nil {
		return err
	}
	vm.RunContext.Pc.Offset++
	vm.RunContext.Ap.Offset++
	return nil
}

func newTestVM(trace bool) *VirtualMachine {
	vm := NewVirtualMachine(nil, trace)
	prog := vm.AddMemorySegment()
	exec := vm.AddMemorySegment()
	vm.RunContext = RunContext{Pc: prog, Ap: exec, Fp: exec}
	return vm
}

func TestStepInstructionRecordsTrace(t *testing.T) {
	vm := newTestVM(true)
	vm.SetInstructionRunner(&advanceRunner{})

	for i := 0; i < 3; i++ {
		if err := vm.StepInstruction(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if vm.CurrentStep() != 3 {
		t.Errorf("CurrentStep = %d, want 3", vm.CurrentStep())
	}
	tr := vm.Trace()
	if len(tr) != 3 {
		t.Fatalf("len(trace) = %d, want 3", len(tr))
	}
	if tr[2].Pc != NewRelocatable(0, 2) || tr[2].Ap != NewRelocatable(1, 2) {
		t.Errorf("trace[2] = %+v", tr[2])
	}
	if v, _ := vm.GetMaybe(NewRelocatable(1, 1)); v != IntValue(1) {
		t.Errorf("memory[(1, 1)] = %v, want 1", v)
	}
}

func TestStepInstructionWithoutTrace(t *testing.T) {
	vm := newTestVM(false)
	vm.SetInstructionRunner(&advanceRunner{})
	if err := vm.StepInstruction(); err != nil {
		t.Fatal(err)
	}
	if len(vm.Trace()) != 0 {
		t.Errorf("trace recorded with tracing disabled")
	}
}

func TestStepInstructionErrors(t *testing.T) {
	vm := newTestVM(false)
	if err := vm.StepInstruction(); !errors.Is(err, ErrNoInstructionRunner) {
		t.Errorf("err = %v, want ErrNoInstructionRunner", err)
	}

	boom := errors.New("boom")
	vm.SetInstructionRunner(&advanceRunner{fail: boom})
	if err := vm.StepInstruction(); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if vm.CurrentStep() != 0 {
		t.Errorf("CurrentStep = %d after failure, want 0", vm.CurrentStep())
	}
}

func TestDefaultPrime(t *testing.T) {
	if NewVirtualMachine(nil, false).Prime() != StarkPrime {
		t.Error("nil prime should select StarkPrime")
	}
}

func TestInsertValueRejectsUnreducedFelt(t *testing.T) {
	vm := newTestVM(false)
	var f Felt
	f.n.Set(StarkPrime)
	err := vm.InsertValue(vm.Ap(), FeltValue(f))
	if !errors.Is(err, ErrFeltOutOfField) {
		t.Errorf("err = %v, want ErrFeltOutOfField", err)
	}
	if !errors.Is(err, ErrMemory) {
		t.Errorf("err = %v, should match ErrMemory", err)
	}
	if _, ok := vm.GetMaybe(vm.Ap()); ok {
		t.Error("unreduced felt was written")
	}
}
