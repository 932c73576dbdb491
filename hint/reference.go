package hint

import (
	"math/big"
	"strings"
)

// Register names the base register of an identifier reference.
type Register int

const (
	// RegNone marks a reference with no base register, such as a constant.
	RegNone Register = iota
	RegAP
	RegFP
)

func (r Register) String() string {
	switch r {
	case RegAP:
		return "ap"
	case RegFP:
		return "fp"
	}
	return "none"
}

// ParseRegister maps "ap", "fp" and "" or "none".
func ParseRegister(s string) (Register, bool) {
	switch strings.ToLower(s) {
	case "ap":
		return RegAP, true
	case "fp":
		return RegFP, true
	case "", "none":
		return RegNone, true
	}
	return RegNone, false
}

// ApTracking locates ap relative to the start of a tracking group.
type ApTracking struct {
	Group  int
	Offset int
}

// HintReference describes how to compute an identifier's address.
type HintReference struct {
	Register    Register
	Offset      int
	Dereference bool

	// ValuePath selects nested struct members, outermost first.
	ValuePath []string

	// Immediate holds the value of a constant reference (Register ==
	// RegNone). Such references cannot be assigned.
	Immediate *big.Int

	ApTracking ApTracking

	// CairoType is the identifier's type: "felt", a struct name, or a
	// pointer type ending in "*".
	CairoType string
}

// HintData is one hint attached to a program counter offset.
type HintData struct {
	Pc         int
	Code       string
	Ids        map[string]*HintReference
	ApTracking ApTracking
}

// Member is a struct member layout.
type Member struct {
	Offset int
	Type   string
}

// StructDefinition is a struct layout.
type StructDefinition struct {
	Name    string
	Size    int
	Members map[string]Member
}

// Structs maps type names to layouts.
type Structs map[string]*StructDefinition

// lookup returns the layout of a non-pointer struct type.
func (s Structs) lookup(typ string) (*StructDefinition, bool) {
	if typ == "" || strings.HasSuffix(typ, "*") {
		return nil, false
	}
	def, ok := s[typ]
	return def, ok
}

func pointee(typ string) string {
	if strings.HasSuffix(typ, "*") {
		return strings.TrimSuffix(typ, "*")
	}
	return ""
}
