package vm

import (
	"errors"
	"testing"
)

func newTestMemory(segments int) *Memory {
	m := NewMemory()
	for i := 0; i < segments; i++ {
		m.addSegment()
	}
	return m
}

func TestMemoryWriteOnce(t *testing.T) {
	m := newTestMemory(2)
	a := NewRelocatable(1, 4)

	if err := m.Insert(a, IntValue(7)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok := m.Get(a)
	if !ok || got != IntValue(7) {
		t.Errorf("Get = %v, %v, want 7, true", got, ok)
	}

	// Same value again is fine.
	if err := m.Insert(a, IntValue(7)); err != nil {
		t.Errorf("idempotent Insert: %v", err)
	}

	err := m.Insert(a, IntValue(8))
	if !errors.Is(err, ErrInconsistentMemory) {
		t.Errorf("err = %v, want ErrInconsistentMemory", err)
	}
	if !errors.Is(err, ErrMemory) {
		t.Errorf("err = %v, should match ErrMemory", err)
	}
	if got, _ := m.Get(a); got != IntValue(7) {
		t.Errorf("after rejected write Get = %v, want 7", got)
	}
}

func TestMemoryHoles(t *testing.T) {
	m := newTestMemory(1)
	if err := m.Insert(NewRelocatable(0, 3), IntValue(1)); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get(NewRelocatable(0, 1)); ok {
		t.Error("hole should be unset")
	}
	if err := m.Insert(NewRelocatable(0, 1), IntValue(2)); err != nil {
		t.Errorf("filling hole: %v", err)
	}
	if m.SegmentSize(0) != 4 {
		t.Errorf("SegmentSize = %d, want 4", m.SegmentSize(0))
	}
}

func TestMemoryErrors(t *testing.T) {
	m := newTestMemory(1)

	if err := m.Insert(NewRelocatable(5, 0), IntValue(1)); !errors.Is(err, ErrUnknownSegment) {
		t.Errorf("unknown segment err = %v", err)
	}
	if _, err := m.GetValue(NewRelocatable(0, 0)); !errors.Is(err, ErrUnknownValue) {
		t.Errorf("unset read err = %v", err)
	}

	_ = m.Insert(NewRelocatable(0, 0), IntValue(1))
	if _, err := m.GetRelocatable(NewRelocatable(0, 0)); !errors.Is(err, ErrExpectedRelocatable) {
		t.Errorf("GetRelocatable err = %v", err)
	}
	_ = m.Insert(NewRelocatable(0, 1), AddrValue(NewRelocatable(0, 0)))
	if _, err := m.GetFelt(NewRelocatable(0, 1)); !errors.Is(err, ErrExpectedFelt) {
		t.Errorf("GetFelt err = %v", err)
	}
}

func TestMemoryFreeze(t *testing.T) {
	m := newTestMemory(1)
	_ = m.Insert(NewRelocatable(0, 0), IntValue(1))

	if err := m.Freeze(0, 2); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if err := m.Insert(NewRelocatable(0, 1), IntValue(2)); err != nil {
		t.Errorf("write inside frozen size: %v", err)
	}
	if err := m.Insert(NewRelocatable(0, 2), IntValue(3)); !errors.Is(err, ErrFrozenSegment) {
		t.Errorf("write past frozen size err = %v", err)
	}
	if err := m.Freeze(0, 1); err == nil {
		t.Error("freezing below used size should fail")
	}
}

func TestMemoryWalkOrder(t *testing.T) {
	m := newTestMemory(2)
	_ = m.Insert(NewRelocatable(1, 0), IntValue(3))
	_ = m.Insert(NewRelocatable(0, 2), IntValue(2))
	_ = m.Insert(NewRelocatable(0, 0), IntValue(1))

	var got []Relocatable
	m.Walk(func(r Relocatable, _ MaybeRelocatable) bool {
		got = append(got, r)
		return true
	})
	want := []Relocatable{NewRelocatable(0, 0), NewRelocatable(0, 2), NewRelocatable(1, 0)}
	if len(got) != len(want) {
		t.Fatalf("Walk visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Walk[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
