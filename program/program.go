// Package program loads hint programs: the hints attached to each pc,
// their identifier references, struct layouts, initial memory and entry
// registers. Programs are TOML files.
package program

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"

	"github.com/chazu/hintbridge/hint"
	"github.com/chazu/hintbridge/vm"
)

// Segments every run allocates before execution starts.
const (
	ProgramSegment   = 0
	ExecutionSegment = 1
)

// ErrInvalid reports a program file that parses but is not well formed.
var ErrInvalid = errors.New("invalid program")

// File is the TOML form of a program.
type File struct {
	Entry   Entry                `toml:"entry"`
	Memory  []CellDef            `toml:"memory"`
	Hints   []HintDef            `toml:"hints"`
	Structs map[string]StructDef `toml:"structs"`
}

// Entry holds the initial register offsets. pc is an offset into the
// program segment; ap and fp are offsets into the execution segment.
type Entry struct {
	Pc int `toml:"pc"`
	Ap int `toml:"ap"`
	Fp int `toml:"fp"`
}

// CellDef is an initial memory cell holding either a felt or an address.
type CellDef struct {
	Segment int    `toml:"segment"`
	Offset  int    `toml:"offset"`
	Value   string `toml:"value"`
	Addr    []int  `toml:"addr"`
}

// TrackingDef is the TOML form of hint.ApTracking.
type TrackingDef struct {
	Group  int `toml:"group"`
	Offset int `toml:"offset"`
}

// HintDef is one hint.
type HintDef struct {
	Pc         int               `toml:"pc"`
	Code       string            `toml:"code"`
	ApTracking TrackingDef       `toml:"ap-tracking"`
	Ids        map[string]RefDef `toml:"ids"`
}

// RefDef is an identifier reference.
type RefDef struct {
	Register    string      `toml:"register"`
	Offset      int         `toml:"offset"`
	Dereference bool        `toml:"dereference"`
	Path        []string    `toml:"path"`
	Type        string      `toml:"type"`
	Immediate   string      `toml:"immediate"`
	ApTracking  TrackingDef `toml:"ap-tracking"`
}

// StructDef is a struct layout.
type StructDef struct {
	Size    int                  `toml:"size"`
	Members map[string]MemberDef `toml:"members"`
}

// MemberDef is a struct member.
type MemberDef struct {
	Offset int    `toml:"offset"`
	Type   string `toml:"type"`
}

// Cell is a resolved initial memory cell.
type Cell struct {
	Addr vm.Relocatable
	Felt *big.Int
	Ptr  *vm.Relocatable
}

// Value reduces the cell into a memory value for prime.
func (c Cell) Value(prime *uint256.Int) vm.MaybeRelocatable {
	if c.Ptr != nil {
		return vm.AddrValue(*c.Ptr)
	}
	return vm.FeltValue(vm.FeltFromBig(c.Felt, prime))
}

// Program is a loaded program.
type Program struct {
	Entry   Entry
	Cells   []Cell
	Hints   map[int][]*hint.HintData
	Structs hint.Structs
}

// NumHints returns the number of hints across all pcs.
func (p *Program) NumHints() int {
	n := 0
	for _, list := range p.Hints {
		n += len(list)
	}
	return n
}

// MaxSegment returns the highest segment index referenced by the initial
// memory, or ExecutionSegment if none is higher.
func (p *Program) MaxSegment() int {
	hi := ExecutionSegment
	for _, c := range p.Cells {
		if c.Addr.SegmentIndex > hi {
			hi = c.Addr.SegmentIndex
		}
		if c.Ptr != nil && c.Ptr.SegmentIndex > hi {
			hi = c.Ptr.SegmentIndex
		}
	}
	return hi
}

// Load reads a program file.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a program from TOML text.
func Parse(data []byte) (*Program, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return f.Resolve()
}

// Resolve validates f and converts it to a Program.
func (f *File) Resolve() (*Program, error) {
	if f.Entry.Pc < 0 || f.Entry.Ap < 0 || f.Entry.Fp < 0 {
		return nil, fmt.Errorf("%w: negative entry register", ErrInvalid)
	}
	p := &Program{
		Entry:   f.Entry,
		Hints:   make(map[int][]*hint.HintData),
		Structs: make(hint.Structs, len(f.Structs)),
	}

	for i, c := range f.Memory {
		cell, err := c.resolve()
		if err != nil {
			return nil, fmt.Errorf("%w: memory[%d]: %v", ErrInvalid, i, err)
		}
		p.Cells = append(p.Cells, cell)
	}

	for name, s := range f.Structs {
		def := &hint.StructDefinition{Name: name, Size: s.Size, Members: make(map[string]hint.Member, len(s.Members))}
		for m, md := range s.Members {
			if md.Offset < 0 || (s.Size > 0 && md.Offset >= s.Size) {
				return nil, fmt.Errorf("%w: struct %s member %s offset %d out of range", ErrInvalid, name, m, md.Offset)
			}
			def.Members[m] = hint.Member{Offset: md.Offset, Type: md.Type}
		}
		p.Structs[name] = def
	}

	for i, h := range f.Hints {
		data, err := h.resolve()
		if err != nil {
			return nil, fmt.Errorf("%w: hint %d (pc %d): %v", ErrInvalid, i, h.Pc, err)
		}
		p.Hints[h.Pc] = append(p.Hints[h.Pc], data)
	}
	return p, nil
}

func (c CellDef) resolve() (Cell, error) {
	if c.Segment < 0 || c.Offset < 0 {
		return Cell{}, fmt.Errorf("negative address (%d, %d)", c.Segment, c.Offset)
	}
	cell := Cell{Addr: vm.NewRelocatable(c.Segment, c.Offset)}
	switch {
	case c.Value != "" && c.Addr != nil:
		return Cell{}, fmt.Errorf("both value and addr set")
	case c.Addr != nil:
		if len(c.Addr) != 2 || c.Addr[0] < 0 || c.Addr[1] < 0 {
			return Cell{}, fmt.Errorf("addr must be [segment, offset], got %v", c.Addr)
		}
		ptr := vm.NewRelocatable(c.Addr[0], c.Addr[1])
		cell.Ptr = &ptr
	default:
		n, err := parseInt(c.Value)
		if err != nil {
			return Cell{}, err
		}
		cell.Felt = n
	}
	return cell, nil
}

func (h HintDef) resolve() (*hint.HintData, error) {
	if h.Pc < 0 {
		return nil, fmt.Errorf("negative pc")
	}
	data := &hint.HintData{
		Pc:         h.Pc,
		Code:       h.Code,
		ApTracking: hint.ApTracking(h.ApTracking),
		Ids:        make(map[string]*hint.HintReference, len(h.Ids)),
	}
	// Sorted for stable error messages.
	names := make([]string, 0, len(h.Ids))
	for name := range h.Ids {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ref, err := h.Ids[name].resolve()
		if err != nil {
			return nil, fmt.Errorf("ids.%s: %v", name, err)
		}
		data.Ids[name] = ref
	}
	return data, nil
}

func (r RefDef) resolve() (*hint.HintReference, error) {
	reg, ok := hint.ParseRegister(r.Register)
	if !ok {
		return nil, fmt.Errorf("unknown register %q", r.Register)
	}
	ref := &hint.HintReference{
		Register:    reg,
		Offset:      r.Offset,
		Dereference: r.Dereference,
		ValuePath:   r.Path,
		ApTracking:  hint.ApTracking(r.ApTracking),
		CairoType:   r.Type,
	}
	if ref.CairoType == "" {
		ref.CairoType = "felt"
	}
	if r.Immediate != "" {
		if reg != hint.RegNone {
			return nil, fmt.Errorf("immediate with register %s", reg)
		}
		n, err := parseInt(r.Immediate)
		if err != nil {
			return nil, err
		}
		ref.Immediate = n
	} else if reg == hint.RegNone {
		return nil, fmt.Errorf("no register and no immediate")
	}
	return ref, nil
}

// parseInt accepts decimal and 0x-prefixed hex, with an optional sign.
func parseInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("bad integer %q", s)
	}
	return n, nil
}
