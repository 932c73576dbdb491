package vm

import (
	"errors"
	"testing"
)

func TestRelocatableAddSub(t *testing.T) {
	a := NewRelocatable(1, 3)
	b := NewRelocatable(1, 10)

	d, err := b.Sub(a)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if d != 7 {
		t.Errorf("b - a = %d, want 7", d)
	}
	got, err := a.AddInt(d)
	if err != nil {
		t.Fatalf("AddInt: %v", err)
	}
	if got != b {
		t.Errorf("a + (b - a) = %v, want %v", got, b)
	}
}

func TestRelocatableSubDifferentSegments(t *testing.T) {
	_, err := NewRelocatable(1, 0).Sub(NewRelocatable(2, 0))
	if !errors.Is(err, ErrDiffSegments) {
		t.Fatalf("err = %v, want ErrDiffSegments", err)
	}
	if !errors.Is(err, ErrMemory) {
		t.Errorf("err = %v, should match ErrMemory", err)
	}
}

func TestRelocatableNegativeOffset(t *testing.T) {
	if _, err := NewRelocatable(0, 2).AddInt(-3); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("err = %v, want ErrNegativeOffset", err)
	}
	r, err := NewRelocatable(0, 5).AddFelt(FeltFromInt64(-2, StarkPrime), StarkPrime)
	if err != nil {
		t.Fatalf("AddFelt: %v", err)
	}
	if r != NewRelocatable(0, 3) {
		t.Errorf("(0, 5) + -2 = %v, want (0, 3)", r)
	}
}

func TestRelocatableCompare(t *testing.T) {
	tests := []struct {
		a, b Relocatable
		want int
	}{
		{NewRelocatable(0, 5), NewRelocatable(1, 0), -1},
		{NewRelocatable(1, 2), NewRelocatable(1, 1), 1},
		{NewRelocatable(3, 3), NewRelocatable(3, 3), 0},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%v.Compare(%v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMaybeRelocatableArithmetic(t *testing.T) {
	p := StarkPrime
	addr := AddrValue(NewRelocatable(2, 4))

	sum, err := addr.Add(IntValue(3), p)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum != AddrValue(NewRelocatable(2, 7)) {
		t.Errorf("(2, 4) + 3 = %v, want (2, 7)", sum)
	}

	diff, err := sum.Sub(addr, p)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if diff != IntValue(3) {
		t.Errorf("(2, 7) - (2, 4) = %v, want 3", diff)
	}

	back, err := sum.Sub(IntValue(7), p)
	if err != nil {
		t.Fatalf("Sub felt: %v", err)
	}
	if back != AddrValue(NewRelocatable(2, 0)) {
		t.Errorf("(2, 7) - 7 = %v, want (2, 0)", back)
	}

	if _, err := addr.Add(addr, p); err == nil {
		t.Error("address + address should fail")
	}
	if _, err := addr.Sub(AddrValue(NewRelocatable(3, 0)), p); !errors.Is(err, ErrDiffSegments) {
		t.Errorf("err = %v, want ErrDiffSegments", err)
	}
}
