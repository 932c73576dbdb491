package hint

import (
	"fmt"
	"math/big"

	"github.com/chazu/hintbridge/vm"
)

// Location is a resolved identifier: either a memory address or, for a
// constant reference, an immediate value.
type Location struct {
	Address   vm.Relocatable
	Type      string
	Immediate *big.Int
}

// IsImmediate reports whether the location is a constant.
func (l Location) IsImmediate() bool { return l.Immediate != nil }

// Ids resolves the identifiers of one hint against the current registers.
type Ids struct {
	vm       *vm.VirtualMachine
	refs     map[string]*HintReference
	tracking ApTracking
	structs  Structs
}

// NewIds binds the references of data to machine.
func NewIds(machine *vm.VirtualMachine, data *HintData, structs Structs) *Ids {
	return &Ids{
		vm:       machine,
		refs:     data.Ids,
		tracking: data.ApTracking,
		structs:  structs,
	}
}

// Names returns the identifiers known to the hint.
func (ids *Ids) Names() []string {
	names := make([]string, 0, len(ids.refs))
	for name := range ids.refs {
		names = append(names, name)
	}
	return names
}

// Resolve computes the location of name.
func (ids *Ids) Resolve(name string) (Location, error) {
	ref, ok := ids.refs[name]
	if !ok {
		return Location{}, fmt.Errorf("ids.%s: %w", name, ErrUnknownIdentifier)
	}

	var base vm.Relocatable
	offset := ref.Offset
	switch ref.Register {
	case RegAP:
		if ref.ApTracking.Group != ids.tracking.Group {
			return Location{}, fmt.Errorf("ids.%s: reference group %d, hint group %d: %w",
				name, ref.ApTracking.Group, ids.tracking.Group, ErrApTracking)
		}
		// ap has moved by the difference in tracking offsets since the
		// reference was created.
		offset -= ids.tracking.Offset - ref.ApTracking.Offset
		base = ids.vm.Ap()
	case RegFP:
		base = ids.vm.Fp()
	default:
		if ref.Immediate == nil {
			return Location{}, fmt.Errorf("ids.%s: no base register: %w", name, ErrUnknownIdentifier)
		}
		return Location{Type: ref.CairoType, Immediate: ref.Immediate}, nil
	}

	addr, err := base.AddInt(offset)
	if err != nil {
		return Location{}, fmt.Errorf("ids.%s: %w", name, err)
	}
	if ref.Dereference {
		addr, err = ids.vm.Memory().GetRelocatable(addr)
		if err != nil {
			return Location{}, fmt.Errorf("ids.%s: %w", name, err)
		}
	}

	loc := Location{Address: addr, Type: ref.CairoType}
	for _, field := range ref.ValuePath {
		loc, err = ids.member(loc, field)
		if err != nil {
			return Location{}, fmt.Errorf("ids.%s: %w", name, err)
		}
	}
	return loc, nil
}

// member steps from a struct (or pointer to struct) location into one of
// its members.
func (ids *Ids) member(loc Location, field string) (Location, error) {
	typ := loc.Type
	addr := loc.Address
	if p := pointee(typ); p != "" {
		target, err := ids.vm.Memory().GetRelocatable(addr)
		if err != nil {
			return Location{}, err
		}
		typ, addr = p, target
	}
	def, ok := ids.structs.lookup(typ)
	if !ok {
		return Location{}, fmt.Errorf("%s has no member %q: %w", describeType(typ), field, ErrUnknownMember)
	}
	m, ok := def.Members[field]
	if !ok {
		return Location{}, fmt.Errorf("%s has no member %q: %w", def.Name, field, ErrUnknownMember)
	}
	addr, err := addr.AddInt(m.Offset)
	if err != nil {
		return Location{}, err
	}
	return Location{Address: addr, Type: m.Type}, nil
}

// Get reads the value of name.
func (ids *Ids) Get(name string) (vm.MaybeRelocatable, error) {
	loc, err := ids.Resolve(name)
	if err != nil {
		return vm.MaybeRelocatable{}, err
	}
	if loc.IsImmediate() {
		return vm.FeltValue(vm.FeltFromBig(loc.Immediate, ids.vm.Prime())), nil
	}
	v, err := ids.vm.Memory().GetValue(loc.Address)
	if err != nil {
		return vm.MaybeRelocatable{}, fmt.Errorf("ids.%s: %w", name, err)
	}
	return v, nil
}

// GetFelt reads name as a field element.
func (ids *Ids) GetFelt(name string) (vm.Felt, error) {
	v, err := ids.Get(name)
	if err != nil {
		return vm.Felt{}, err
	}
	f, ok := v.GetFelt()
	if !ok {
		return vm.Felt{}, fmt.Errorf("ids.%s: %w", name, vm.ErrExpectedFelt)
	}
	return f, nil
}

// GetRelocatable reads name as an address.
func (ids *Ids) GetRelocatable(name string) (vm.Relocatable, error) {
	v, err := ids.Get(name)
	if err != nil {
		return vm.Relocatable{}, err
	}
	r, ok := v.GetRelocatable()
	if !ok {
		return vm.Relocatable{}, fmt.Errorf("ids.%s: %w", name, vm.ErrExpectedRelocatable)
	}
	return r, nil
}

// Set writes value to name.
func (ids *Ids) Set(name string, value vm.MaybeRelocatable) error {
	loc, err := ids.Resolve(name)
	if err != nil {
		return err
	}
	if loc.IsImmediate() {
		return fmt.Errorf("ids.%s is a constant: %w", name, ErrCannotAssign)
	}
	if _, ok := ids.structs.lookup(loc.Type); ok {
		return fmt.Errorf("ids.%s is a struct: %w", name, ErrCannotAssign)
	}
	if err := ids.vm.InsertValue(loc.Address, value); err != nil {
		return fmt.Errorf("ids.%s: %w", name, err)
	}
	return nil
}

func describeType(typ string) string {
	if typ == "" {
		return "untyped value"
	}
	return typ
}
