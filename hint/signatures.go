package hint

import (
	"fmt"
	"sort"

	"github.com/chazu/hintbridge/vm"
)

// Signatures collects signatures supplied by the caller before a run and
// hands them to the signature builtin.
type Signatures struct {
	m map[vm.Relocatable]vm.Signature
}

// NewSignatures returns an empty table.
func NewSignatures() *Signatures {
	return &Signatures{m: make(map[vm.Relocatable]vm.Signature)}
}

// Add sets the signature for addr. The last call for an address wins.
func (s *Signatures) Add(addr vm.Relocatable, sig vm.Signature) {
	s.m[addr] = sig
}

// Len returns the number of addresses with a signature.
func (s *Signatures) Len() int { return len(s.m) }

// Apply registers every signature with builtin in address order. It stops
// at the first failure; signatures applied before it stay applied.
func (s *Signatures) Apply(builtin *vm.SignatureBuiltinRunner) error {
	addrs := make([]vm.Relocatable, 0, len(s.m))
	for addr := range s.m {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Compare(addrs[j]) < 0 })
	for _, addr := range addrs {
		if err := builtin.AddSignature(addr, s.m[addr]); err != nil {
			return fmt.Errorf("apply signatures: %w", err)
		}
	}
	return nil
}
