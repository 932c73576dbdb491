package vm

import "fmt"

// MaxArgDepth bounds the nesting of sequences passed to WriteArg and GenArg.
const MaxArgDepth = 64

// Arg is a value written by WriteArg: either a single cell value or a
// sequence of args. Nested sequences are materialized as new segments.
type Arg struct {
	value MaybeRelocatable
	items []Arg
	seq   bool
}

// ScalarArg wraps a cell value.
func ScalarArg(v MaybeRelocatable) Arg {
	return Arg{value: v}
}

// SeqArg wraps a sequence.
func SeqArg(items ...Arg) Arg {
	return Arg{items: items, seq: true}
}

// IsSeq reports whether the arg is a sequence.
func (a Arg) IsSeq() bool { return a.seq }

// Items returns the elements of a sequence arg.
func (a Arg) Items() []Arg { return a.items }

// Value returns the cell value of a scalar arg.
func (a Arg) Value() MaybeRelocatable { return a.value }

// MemorySegmentManager allocates segments and performs structured writes
// into Memory.
type MemorySegmentManager struct {
	Memory *Memory
}

// NewMemorySegmentManager returns a manager over mem.
func NewMemorySegmentManager(mem *Memory) *MemorySegmentManager {
	return &MemorySegmentManager{Memory: mem}
}

// Add allocates a new segment and returns its base address.
func (s *MemorySegmentManager) Add() Relocatable {
	return Relocatable{SegmentIndex: s.Memory.addSegment()}
}

// WriteArg writes args sequentially from base and returns the address just
// past the last written cell. Each nested sequence is written into a fresh
// segment whose base is stored in place of the sequence.
func (s *MemorySegmentManager) WriteArg(base Relocatable, args []Arg) (Relocatable, error) {
	return s.writeArg(base, args, 1)
}

func (s *MemorySegmentManager) writeArg(base Relocatable, args []Arg, depth int) (Relocatable, error) {
	if depth > MaxArgDepth {
		return Relocatable{}, fmt.Errorf("write_arg at %s: depth %d: %w", base, depth, ErrArgTooDeep)
	}
	ptr := base
	for i, a := range args {
		v, err := s.genArg(a, depth)
		if err != nil {
			return Relocatable{}, err
		}
		if err := s.Memory.Insert(ptr, v); err != nil {
			return Relocatable{}, fmt.Errorf("write_arg element %d: %w", i, err)
		}
		ptr.Offset++
	}
	return ptr, nil
}

// GenArg returns the cell value for a: the value itself for a scalar, or
// the base of a newly allocated and filled segment for a sequence.
func (s *MemorySegmentManager) GenArg(a Arg) (MaybeRelocatable, error) {
	return s.genArg(a, 0)
}

func (s *MemorySegmentManager) genArg(a Arg, depth int) (MaybeRelocatable, error) {
	if !a.seq {
		return a.value, nil
	}
	base := s.Add()
	if _, err := s.writeArg(base, a.items, depth+1); err != nil {
		return MaybeRelocatable{}, err
	}
	return AddrValue(base), nil
}

// Finalize fixes the size of a segment.
func (s *MemorySegmentManager) Finalize(segment, size int) error {
	return s.Memory.Freeze(segment, size)
}

// UsedSizes returns the used size of every segment.
func (s *MemorySegmentManager) UsedSizes() []int {
	sizes := make([]int, s.Memory.NumSegments())
	for i := range sizes {
		sizes[i] = s.Memory.SegmentSize(i)
	}
	return sizes
}
