package hint

import (
	"errors"
	"testing"

	"github.com/chazu/hintbridge/vm"
)

func newSignatureBuiltin(segmentsBefore int) *vm.SignatureBuiltinRunner {
	segs := vm.NewMemorySegmentManager(vm.NewMemory())
	for i := 0; i < segmentsBefore; i++ {
		segs.Add()
	}
	b := vm.NewSignatureBuiltinRunner()
	b.InitializeSegments(segs)
	return b
}

func TestSignaturesApply(t *testing.T) {
	sigs := NewSignatures()
	sigs.Add(vm.NewRelocatable(2, 0), vm.Signature{R: vm.NewFelt(1), S: vm.NewFelt(2)})

	builtin := newSignatureBuiltin(2)
	if err := sigs.Apply(builtin); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got, ok := builtin.Signature(vm.NewRelocatable(2, 0)); !ok || got.S != vm.NewFelt(2) {
		t.Errorf("Signature = %v, %v", got, ok)
	}

	other := newSignatureBuiltin(3)
	if err := sigs.Apply(other); !errors.Is(err, vm.ErrSignature) {
		t.Errorf("err = %v, want ErrSignature", err)
	}
}

func TestSignaturesLastWriteWins(t *testing.T) {
	sigs := NewSignatures()
	addr := vm.NewRelocatable(2, 1)
	sigs.Add(addr, vm.Signature{R: vm.NewFelt(1)})
	sigs.Add(addr, vm.Signature{R: vm.NewFelt(9)})
	if sigs.Len() != 1 {
		t.Errorf("Len = %d, want 1", sigs.Len())
	}

	builtin := newSignatureBuiltin(2)
	if err := sigs.Apply(builtin); err != nil {
		t.Fatal(err)
	}
	if got, _ := builtin.Signature(addr); got.R != vm.NewFelt(9) {
		t.Errorf("R = %v, want 9", got.R)
	}
}

func TestSignaturesPartialApply(t *testing.T) {
	sigs := NewSignatures()
	sigs.Add(vm.NewRelocatable(2, 0), vm.Signature{})
	sigs.Add(vm.NewRelocatable(5, 0), vm.Signature{})

	builtin := newSignatureBuiltin(2)
	if err := sigs.Apply(builtin); !errors.Is(err, vm.ErrSignature) {
		t.Fatalf("err = %v, want ErrSignature", err)
	}
	if builtin.Len() != 1 {
		t.Errorf("applied %d signatures before failing, want 1", builtin.Len())
	}
}
