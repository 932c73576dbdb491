package vm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
)

// StarkPrime is the default field modulus, 2^251 + 17*2^192 + 1.
var StarkPrime = uint256.MustFromDecimal("3618502788666131213697322783095070105623107215331596699973092056135872020481")

// ErrInvalidPrime reports a field modulus that is not a usable prime
// candidate.
var ErrInvalidPrime = errors.New("invalid prime")

// ParsePrime parses a decimal field modulus. It must be odd, greater than 2
// and fit in 256 bits. Primality itself is not checked.
func ParsePrime(s string) (*uint256.Int, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a decimal integer", ErrInvalidPrime, s)
	}
	if b.Cmp(big.NewInt(2)) <= 0 || b.Bit(0) == 0 {
		return nil, fmt.Errorf("%w: %s must be odd and greater than 2", ErrInvalidPrime, s)
	}
	p, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds 256 bits", ErrInvalidPrime, s)
	}
	return p, nil
}

// Felt is a field element: an integer in [0, prime). The prime itself is
// owned by the VirtualMachine and passed to every arithmetic operation.
type Felt struct {
	n uint256.Int
}

// NewFelt returns the field element for a small non-negative integer.
func NewFelt(x uint64) Felt {
	var f Felt
	f.n.SetUint64(x)
	return f
}

// FeltFromInt64 reduces a signed integer into the field.
func FeltFromInt64(x int64, prime *uint256.Int) Felt {
	return FeltFromBig(big.NewInt(x), prime)
}

// FeltFromBig reduces an arbitrary integer into the field. Negative values
// wrap around to prime - |x|.
func FeltFromBig(x *big.Int, prime *uint256.Int) Felt {
	m := new(big.Int).Mod(x, prime.ToBig())
	var f Felt
	f.n.SetFromBig(m)
	return f
}

// Big returns the canonical representative as a big.Int.
func (f Felt) Big() *big.Int {
	return f.n.ToBig()
}

// Uint64 returns the value if it fits in 64 bits.
func (f Felt) Uint64() (uint64, bool) {
	if !f.n.IsUint64() {
		return 0, false
	}
	return f.n.Uint64(), true
}

// Int returns the value as a platform int if it fits.
func (f Felt) Int() (int, bool) {
	u, ok := f.Uint64()
	if !ok || u > uint64(maxInt) {
		return 0, false
	}
	return int(u), true
}

const maxInt = int(^uint(0) >> 1)

// IsZero reports whether f is the zero element.
func (f Felt) IsZero() bool {
	return f.n.IsZero()
}

// Cmp compares the canonical representatives of f and g.
func (f Felt) Cmp(g Felt) int {
	return f.n.Cmp(&g.n)
}

// InField reports whether f is a canonical element of the field of prime.
func (f Felt) InField(prime *uint256.Int) bool {
	return f.n.Lt(prime)
}

// Add returns f + g mod prime.
func (f Felt) Add(g Felt, prime *uint256.Int) Felt {
	var r Felt
	r.n.AddMod(&f.n, &g.n, prime)
	return r
}

// Sub returns f - g mod prime.
func (f Felt) Sub(g Felt, prime *uint256.Int) Felt {
	var r Felt
	if f.n.Cmp(&g.n) >= 0 {
		r.n.Sub(&f.n, &g.n)
		return r
	}
	// f < g: f + (prime - g), both operands already reduced.
	var neg uint256.Int
	neg.Sub(prime, &g.n)
	r.n.Add(&f.n, &neg)
	return r
}

// Mul returns f * g mod prime.
func (f Felt) Mul(g Felt, prime *uint256.Int) Felt {
	var r Felt
	r.n.MulMod(&f.n, &g.n, prime)
	return r
}

// String returns the decimal representation.
func (f Felt) String() string {
	return f.n.Dec()
}

// MarshalCBOR encodes the felt as a 32-byte big-endian byte string.
func (f Felt) MarshalCBOR() ([]byte, error) {
	b := f.n.Bytes32()
	return cbor.Marshal(b[:])
}

// UnmarshalCBOR decodes a big-endian byte string of at most 32 bytes. The
// prime is not known here; VirtualMachine.InsertValue rejects decoded
// values outside the machine's field.
func (f *Felt) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	if len(b) > 32 {
		return fmt.Errorf("felt: %d bytes exceeds 32", len(b))
	}
	f.n.SetBytes(b)
	return nil
}
