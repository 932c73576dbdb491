package vm

import "fmt"

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

type cell struct {
	value MaybeRelocatable
	set   bool
}

// Memory is a write-once segmented address space. A cell may be rewritten
// only with the value it already holds.
type Memory struct {
	segments [][]cell
	// finalized segments and their fixed sizes
	frozen map[int]int
}

// NewMemory returns an empty memory with no segments.
func NewMemory() *Memory {
	return &Memory{frozen: make(map[int]int)}
}

func (m *Memory) addSegment() int {
	m.segments = append(m.segments, nil)
	return len(m.segments) - 1
}

// NumSegments returns the number of allocated segments.
func (m *Memory) NumSegments() int {
	return len(m.segments)
}

// SegmentSize returns one past the highest written offset of a segment.
func (m *Memory) SegmentSize(segment int) int {
	if segment < 0 || segment >= len(m.segments) {
		return 0
	}
	return len(m.segments[segment])
}

// Insert writes value at addr.
func (m *Memory) Insert(addr Relocatable, value MaybeRelocatable) error {
	if addr.SegmentIndex < 0 || addr.SegmentIndex >= len(m.segments) {
		return fmt.Errorf("write %s: %w", addr, ErrUnknownSegment)
	}
	if addr.Offset < 0 {
		return fmt.Errorf("write %s: %w", addr, ErrNegativeOffset)
	}
	if size, ok := m.frozen[addr.SegmentIndex]; ok && addr.Offset >= size {
		return fmt.Errorf("write %s (size %d): %w", addr, size, ErrFrozenSegment)
	}
	seg := m.segments[addr.SegmentIndex]
	if addr.Offset < len(seg) {
		c := &seg[addr.Offset]
		if c.set {
			if c.value != value {
				return fmt.Errorf("write %s: holds %s, got %s: %w", addr, c.value, value, ErrInconsistentMemory)
			}
			return nil
		}
		c.value, c.set = value, true
		return nil
	}
	for len(seg) < addr.Offset {
		seg = append(seg, cell{})
	}
	m.segments[addr.SegmentIndex] = append(seg, cell{value: value, set: true})
	return nil
}

// Get returns the value at addr, if one has been written.
func (m *Memory) Get(addr Relocatable) (MaybeRelocatable, bool) {
	if addr.SegmentIndex < 0 || addr.SegmentIndex >= len(m.segments) || addr.Offset < 0 {
		return MaybeRelocatable{}, false
	}
	seg := m.segments[addr.SegmentIndex]
	if addr.Offset >= len(seg) || !seg[addr.Offset].set {
		return MaybeRelocatable{}, false
	}
	return seg[addr.Offset].value, true
}

// GetValue is Get with an error for unset cells.
func (m *Memory) GetValue(addr Relocatable) (MaybeRelocatable, error) {
	v, ok := m.Get(addr)
	if !ok {
		return MaybeRelocatable{}, fmt.Errorf("read %s: %w", addr, ErrUnknownValue)
	}
	return v, nil
}

// GetFelt reads a cell that must hold a field element.
func (m *Memory) GetFelt(addr Relocatable) (Felt, error) {
	v, err := m.GetValue(addr)
	if err != nil {
		return Felt{}, err
	}
	f, ok := v.GetFelt()
	if !ok {
		return Felt{}, fmt.Errorf("read %s: %w", addr, ErrExpectedFelt)
	}
	return f, nil
}

// GetRelocatable reads a cell that must hold an address.
func (m *Memory) GetRelocatable(addr Relocatable) (Relocatable, error) {
	v, err := m.GetValue(addr)
	if err != nil {
		return Relocatable{}, err
	}
	r, ok := v.GetRelocatable()
	if !ok {
		return Relocatable{}, fmt.Errorf("read %s: %w", addr, ErrExpectedRelocatable)
	}
	return r, nil
}

// Freeze fixes the size of a segment. Later writes at or past size fail.
func (m *Memory) Freeze(segment, size int) error {
	if segment < 0 || segment >= len(m.segments) {
		return fmt.Errorf("finalize segment %d: %w", segment, ErrUnknownSegment)
	}
	if used := len(m.segments[segment]); size < used {
		return fmt.Errorf("finalize segment %d: size %d below used size %d: %w", segment, size, used, ErrFrozenSegment)
	}
	m.frozen[segment] = size
	return nil
}

// Frozen reports the finalized size of a segment.
func (m *Memory) Frozen(segment int) (int, bool) {
	size, ok := m.frozen[segment]
	return size, ok
}

// Walk visits every written cell in address order until fn returns false.
func (m *Memory) Walk(fn func(Relocatable, MaybeRelocatable) bool) {
	for si, seg := range m.segments {
		for off, c := range seg {
			if !c.set {
				continue
			}
			if !fn(Relocatable{SegmentIndex: si, Offset: off}, c.value) {
				return
			}
		}
	}
}
