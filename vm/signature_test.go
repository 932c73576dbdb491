package vm

import (
	"errors"
	"testing"
)

func TestSignatureBuiltinSegment(t *testing.T) {
	segs := NewMemorySegmentManager(NewMemory())
	segs.Add()
	segs.Add()

	b := NewSignatureBuiltinRunner()
	if err := b.AddSignature(NewRelocatable(2, 0), Signature{}); !errors.Is(err, ErrSignature) {
		t.Errorf("uninitialized err = %v, want ErrSignature", err)
	}

	b.InitializeSegments(segs)
	if b.Base() != NewRelocatable(2, 0) {
		t.Fatalf("Base = %v, want (2, 0)", b.Base())
	}

	sig := Signature{R: NewFelt(1), S: NewFelt(2)}
	if err := b.AddSignature(NewRelocatable(2, 0), sig); err != nil {
		t.Fatalf("AddSignature: %v", err)
	}
	if got, ok := b.Signature(NewRelocatable(2, 0)); !ok || got != sig {
		t.Errorf("Signature = %v, %v", got, ok)
	}
	if err := b.AddSignature(NewRelocatable(3, 0), sig); !errors.Is(err, ErrSignature) {
		t.Errorf("foreign segment err = %v, want ErrSignature", err)
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
}
