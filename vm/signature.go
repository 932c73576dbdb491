package vm

import "fmt"

// Signature is an ECDSA signature pair.
type Signature struct {
	R Felt `cbor:"1,keyasint"`
	S Felt `cbor:"2,keyasint"`
}

// SignatureBuiltinRunner holds the signatures checked by the signature
// builtin. Addresses must lie in the builtin's own segment.
type SignatureBuiltinRunner struct {
	base        Relocatable
	initialized bool
	signatures  map[Relocatable]Signature
}

// NewSignatureBuiltinRunner returns a runner with no segment yet.
func NewSignatureBuiltinRunner() *SignatureBuiltinRunner {
	return &SignatureBuiltinRunner{signatures: make(map[Relocatable]Signature)}
}

// InitializeSegments allocates the builtin's segment.
func (b *SignatureBuiltinRunner) InitializeSegments(segments *MemorySegmentManager) {
	b.base = segments.Add()
	b.initialized = true
}

// Base returns the base of the builtin's segment.
func (b *SignatureBuiltinRunner) Base() Relocatable { return b.base }

// AddSignature registers sig for addr.
func (b *SignatureBuiltinRunner) AddSignature(addr Relocatable, sig Signature) error {
	if !b.initialized {
		return fmt.Errorf("signature at %s: builtin has no segment: %w", addr, ErrSignature)
	}
	if addr.SegmentIndex != b.base.SegmentIndex {
		return fmt.Errorf("signature at %s: outside builtin segment %d: %w", addr, b.base.SegmentIndex, ErrSignature)
	}
	b.signatures[addr] = sig
	return nil
}

// Signature returns the signature registered for addr.
func (b *SignatureBuiltinRunner) Signature(addr Relocatable) (Signature, bool) {
	sig, ok := b.signatures[addr]
	return sig, ok
}

// Len returns the number of registered signatures.
func (b *SignatureBuiltinRunner) Len() int { return len(b.signatures) }
