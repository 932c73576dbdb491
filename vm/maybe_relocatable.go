package vm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// MaybeRelocatable is a memory cell value: either a field element or an
// address. The zero value is the felt 0. Values compare with ==.
type MaybeRelocatable struct {
	IsAddr bool        `cbor:"1,keyasint"`
	Felt   Felt        `cbor:"2,keyasint"`
	Addr   Relocatable `cbor:"3,keyasint"`
}

// FeltValue wraps a field element.
func FeltValue(f Felt) MaybeRelocatable {
	return MaybeRelocatable{Felt: f}
}

// IntValue wraps a small non-negative integer.
func IntValue(x uint64) MaybeRelocatable {
	return FeltValue(NewFelt(x))
}

// AddrValue wraps an address.
func AddrValue(r Relocatable) MaybeRelocatable {
	return MaybeRelocatable{IsAddr: true, Addr: r}
}

// GetRelocatable returns the address held by the cell.
func (m MaybeRelocatable) GetRelocatable() (Relocatable, bool) {
	return m.Addr, m.IsAddr
}

// GetFelt returns the field element held by the cell.
func (m MaybeRelocatable) GetFelt() (Felt, bool) {
	return m.Felt, !m.IsAddr
}

// Add implements address + felt, felt + address and felt + felt. Adding two
// addresses is an error.
func (m MaybeRelocatable) Add(other MaybeRelocatable, prime *uint256.Int) (MaybeRelocatable, error) {
	switch {
	case !m.IsAddr && !other.IsAddr:
		return FeltValue(m.Felt.Add(other.Felt, prime)), nil
	case m.IsAddr && !other.IsAddr:
		r, err := m.Addr.AddFelt(other.Felt, prime)
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return AddrValue(r), nil
	case !m.IsAddr && other.IsAddr:
		return other.Add(m, prime)
	}
	return MaybeRelocatable{}, fmt.Errorf("%s + %s: %w", m, other, ErrExpectedFelt)
}

// Sub implements felt - felt, address - felt and address - address (same
// segment only, yielding a felt).
func (m MaybeRelocatable) Sub(other MaybeRelocatable, prime *uint256.Int) (MaybeRelocatable, error) {
	switch {
	case !m.IsAddr && !other.IsAddr:
		return FeltValue(m.Felt.Sub(other.Felt, prime)), nil
	case m.IsAddr && other.IsAddr:
		d, err := m.Addr.Sub(other.Addr)
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return FeltValue(FeltFromInt64(int64(d), prime)), nil
	case m.IsAddr && !other.IsAddr:
		neg := NewFelt(0).Sub(other.Felt, prime)
		r, err := m.Addr.AddFelt(neg, prime)
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return AddrValue(r), nil
	}
	return MaybeRelocatable{}, fmt.Errorf("%s - %s: %w", m, other, ErrExpectedFelt)
}

func (m MaybeRelocatable) String() string {
	if m.IsAddr {
		return m.Addr.String()
	}
	return m.Felt.String()
}
