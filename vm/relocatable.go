package vm

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Relocatable is an address in segmented memory.
type Relocatable struct {
	SegmentIndex int `cbor:"1,keyasint"`
	Offset       int `cbor:"2,keyasint"`
}

// NewRelocatable returns the address (segment, offset).
func NewRelocatable(segment, offset int) Relocatable {
	return Relocatable{SegmentIndex: segment, Offset: offset}
}

// AddInt shifts the offset by n. The result may not have a negative offset.
func (r Relocatable) AddInt(n int) (Relocatable, error) {
	off := r.Offset + n
	if off < 0 {
		return Relocatable{}, fmt.Errorf("%s + %d: %w", r, n, ErrNegativeOffset)
	}
	return Relocatable{SegmentIndex: r.SegmentIndex, Offset: off}, nil
}

// AddFelt shifts the offset by a field element. Values above the prime's
// midpoint are read as negative numbers.
func (r Relocatable) AddFelt(f Felt, prime *uint256.Int) (Relocatable, error) {
	n := signedBig(f, prime)
	if !n.IsInt64() {
		return Relocatable{}, fmt.Errorf("%s + %s: %w", r, f, ErrNegativeOffset)
	}
	return r.AddInt(int(n.Int64()))
}

// Sub returns the offset difference of two addresses in the same segment.
func (r Relocatable) Sub(other Relocatable) (int, error) {
	if r.SegmentIndex != other.SegmentIndex {
		return 0, fmt.Errorf("%s - %s: %w", r, other, ErrDiffSegments)
	}
	return r.Offset - other.Offset, nil
}

// Compare orders by segment, then by offset.
func (r Relocatable) Compare(other Relocatable) int {
	switch {
	case r.SegmentIndex < other.SegmentIndex:
		return -1
	case r.SegmentIndex > other.SegmentIndex:
		return 1
	case r.Offset < other.Offset:
		return -1
	case r.Offset > other.Offset:
		return 1
	}
	return 0
}

func (r Relocatable) String() string {
	return fmt.Sprintf("(%d, %d)", r.SegmentIndex, r.Offset)
}

// signedBig maps a felt into (-prime/2, prime/2].
func signedBig(f Felt, prime *uint256.Int) *big.Int {
	n := f.Big()
	p := prime.ToBig()
	half := new(big.Int).Rsh(p, 1)
	if n.Cmp(half) > 0 {
		n.Sub(n, p)
	}
	return n
}
