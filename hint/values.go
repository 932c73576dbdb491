package hint

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/chazu/hintbridge/vm"
)

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

type scopeOp struct {
	enter  bool
	locals map[string]any
}

// invocation is the state shared by the namespace objects of one hint run.
// Every object checks it before touching the machine, so objects that
// escape the run stop working once it is closed.
type invocation struct {
	vm      *vm.VirtualMachine
	ids     *Ids
	structs Structs
	ops     []scopeOp
	closed  bool
}

func (inv *invocation) check() error {
	if inv == nil || inv.closed {
		return ErrExpiredCapability
	}
	return nil
}

// load reads addr as a value of type typ. Struct types yield a proxy
// instead of a memory read.
func (inv *invocation) load(addr vm.Relocatable, typ string) (starlark.Value, error) {
	if def, ok := inv.structs.lookup(typ); ok {
		return &structValue{addr: addr, def: def, inv: inv}, nil
	}
	v, err := inv.vm.Memory().GetValue(addr)
	if err != nil {
		return nil, err
	}
	if r, ok := v.GetRelocatable(); ok {
		return relocatableValue{rel: r, typ: pointee(typ), inv: inv}, nil
	}
	return starlark.MakeBigInt(v.Felt.Big()), nil
}

func (inv *invocation) store(addr vm.Relocatable, typ string, v starlark.Value) error {
	if _, ok := inv.structs.lookup(typ); ok {
		return fmt.Errorf("struct %s at %s: %w", typ, addr, ErrCannotAssign)
	}
	m, err := toMaybe(v, inv.vm)
	if err != nil {
		return err
	}
	return inv.vm.InsertValue(addr, m)
}

// namespace returns the objects injected into every hint.
func (inv *invocation) namespace() starlark.StringDict {
	return starlark.StringDict{
		"memory":         &memoryValue{inv: inv},
		"segments":       &segmentsValue{inv: inv},
		"ids":            &idsValue{inv: inv},
		"ap":             relocatableValue{rel: inv.vm.Ap(), inv: inv},
		"fp":             relocatableValue{rel: inv.vm.Fp(), inv: inv},
		"vm_enter_scope": starlark.NewBuiltin("vm_enter_scope", inv.enterScope),
		"vm_exit_scope":  starlark.NewBuiltin("vm_exit_scope", inv.exitScope),
		"assert":         starlark.NewBuiltin("assert", assertBuiltin),
	}
}

func (inv *invocation) enterScope(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := inv.check(); err != nil {
		return nil, err
	}
	var seed starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "new_scope_locals?", &seed); err != nil {
		return nil, err
	}
	op := scopeOp{enter: true}
	switch d := seed.(type) {
	case starlark.NoneType:
	case *starlark.Dict:
		op.locals = make(map[string]any, d.Len())
		for _, item := range d.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("%s: scope variable names must be strings, got %s", b.Name(), item[0].Type())
			}
			op.locals[k] = fromStarlark(item[1])
		}
	default:
		return nil, fmt.Errorf("%s: new_scope_locals must be a dict, got %s", b.Name(), seed.Type())
	}
	inv.ops = append(inv.ops, op)
	return starlark.None, nil
}

func (inv *invocation) exitScope(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := inv.check(); err != nil {
		return nil, err
	}
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	inv.ops = append(inv.ops, scopeOp{})
	return starlark.None, nil
}

func assertBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cond starlark.Value
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cond", &cond, "msg?", &msg); err != nil {
		return nil, err
	}
	if !cond.Truth() {
		if msg == "" {
			msg = "assertion failed"
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return starlark.None, nil
}

// ---------------------------------------------------------------------------
// Relocatable
// ---------------------------------------------------------------------------

// relocatableValue is an address in hint code. A non-empty typ names the
// struct it points to, which enables member access through the pointer.
type relocatableValue struct {
	rel vm.Relocatable
	typ string
	inv *invocation
}

var (
	_ starlark.HasBinary      = relocatableValue{}
	_ starlark.TotallyOrdered = relocatableValue{}
	_ starlark.HasSetField    = relocatableValue{}
)

func (r relocatableValue) String() string       { return r.rel.String() }
func (r relocatableValue) Type() string         { return "relocatable" }
func (r relocatableValue) Freeze()              {}
func (r relocatableValue) Truth() starlark.Bool { return starlark.True }

func (r relocatableValue) Hash() (uint32, error) {
	return uint32(r.rel.SegmentIndex)*2654435761 ^ uint32(r.rel.Offset), nil
}

func (r relocatableValue) Cmp(y starlark.Value, _ int) (int, error) {
	return r.rel.Compare(y.(relocatableValue).rel), nil
}

func (r relocatableValue) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	switch op {
	case syntax.PLUS:
		n, ok, err := toOffset(y)
		if !ok || err != nil {
			return nil, err
		}
		rel, err := r.rel.AddInt(n)
		if err != nil {
			return nil, err
		}
		return relocatableValue{rel: rel, inv: r.inv}, nil
	case syntax.MINUS:
		if side == starlark.Right {
			return nil, nil
		}
		if other, ok := y.(relocatableValue); ok {
			d, err := r.rel.Sub(other.rel)
			if err != nil {
				return nil, err
			}
			return starlark.MakeInt(d), nil
		}
		n, ok, err := toOffset(y)
		if !ok || err != nil {
			return nil, err
		}
		rel, err := r.rel.AddInt(-n)
		if err != nil {
			return nil, err
		}
		return relocatableValue{rel: rel, inv: r.inv}, nil
	}
	return nil, nil
}

func (r relocatableValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "segment_index":
		return starlark.MakeInt(r.rel.SegmentIndex), nil
	case "offset":
		return starlark.MakeInt(r.rel.Offset), nil
	}
	def, ok := r.inv.structsLookup(r.typ)
	if !ok {
		return nil, nil
	}
	if err := r.inv.check(); err != nil {
		return nil, err
	}
	return (&structValue{addr: r.rel, def: def, inv: r.inv}).Attr(name)
}

func (r relocatableValue) AttrNames() []string {
	names := []string{"offset", "segment_index"}
	if def, ok := r.inv.structsLookup(r.typ); ok {
		names = append(names, memberNames(def)...)
	}
	return names
}

func (r relocatableValue) SetField(name string, v starlark.Value) error {
	def, ok := r.inv.structsLookup(r.typ)
	if !ok {
		return fmt.Errorf("cannot assign to .%s of an untyped relocatable: %w", name, ErrCannotAssign)
	}
	if err := r.inv.check(); err != nil {
		return err
	}
	return (&structValue{addr: r.rel, def: def, inv: r.inv}).SetField(name, v)
}

func (inv *invocation) structsLookup(typ string) (*StructDefinition, bool) {
	if inv == nil {
		return nil, false
	}
	return inv.structs.lookup(typ)
}

// ---------------------------------------------------------------------------
// Memory and segments
// ---------------------------------------------------------------------------

type memoryValue struct {
	inv *invocation
}

var _ starlark.HasSetKey = (*memoryValue)(nil)

func (m *memoryValue) String() string        { return "<memory>" }
func (m *memoryValue) Type() string          { return "memory" }
func (m *memoryValue) Freeze()               {}
func (m *memoryValue) Truth() starlark.Bool  { return starlark.True }
func (m *memoryValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: memory") }

func addressArg(v starlark.Value) (vm.Relocatable, error) {
	r, ok := v.(relocatableValue)
	if !ok {
		return vm.Relocatable{}, fmt.Errorf("memory address must be a relocatable, got %s: %w", v.Type(), vm.ErrExpectedRelocatable)
	}
	return r.rel, nil
}

// Get implements memory[addr] and addr in memory.
func (m *memoryValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	if err := m.inv.check(); err != nil {
		return nil, false, err
	}
	addr, err := addressArg(k)
	if err != nil {
		return nil, false, err
	}
	v, ok := m.inv.vm.GetMaybe(addr)
	if !ok {
		return nil, false, fmt.Errorf("memory[%s]: %w", addr, vm.ErrUnknownValue)
	}
	return toStarlark(v, m.inv), true, nil
}

// SetKey implements memory[addr] = v.
func (m *memoryValue) SetKey(k, v starlark.Value) error {
	if err := m.inv.check(); err != nil {
		return err
	}
	addr, err := addressArg(k)
	if err != nil {
		return err
	}
	val, err := toMaybe(v, m.inv.vm)
	if err != nil {
		return err
	}
	return m.inv.vm.InsertValue(addr, val)
}

func (m *memoryValue) Attr(name string) (starlark.Value, error) {
	if name != "get" {
		return nil, nil
	}
	return starlark.NewBuiltin("get", m.get), nil
}

func (m *memoryValue) AttrNames() []string { return []string{"get"} }

func (m *memoryValue) get(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key starlark.Value
	var dflt starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "addr", &key, "default?", &dflt); err != nil {
		return nil, err
	}
	if err := m.inv.check(); err != nil {
		return nil, err
	}
	addr, err := addressArg(key)
	if err != nil {
		return nil, err
	}
	v, ok := m.inv.vm.GetMaybe(addr)
	if !ok {
		return dflt, nil
	}
	return toStarlark(v, m.inv), nil
}

type segmentsValue struct {
	inv *invocation
}

var _ starlark.HasAttrs = (*segmentsValue)(nil)

func (s *segmentsValue) String() string        { return "<segments>" }
func (s *segmentsValue) Type() string          { return "segments" }
func (s *segmentsValue) Freeze()               {}
func (s *segmentsValue) Truth() starlark.Bool  { return starlark.True }
func (s *segmentsValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: segments") }

func (s *segmentsValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "add":
		return starlark.NewBuiltin("add", s.add), nil
	case "write_arg":
		return starlark.NewBuiltin("write_arg", s.writeArg), nil
	case "gen_arg":
		return starlark.NewBuiltin("gen_arg", s.genArg), nil
	}
	return nil, nil
}

func (s *segmentsValue) AttrNames() []string { return []string{"add", "gen_arg", "write_arg"} }

func (s *segmentsValue) add(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	if err := s.inv.check(); err != nil {
		return nil, err
	}
	return relocatableValue{rel: s.inv.vm.AddMemorySegment(), inv: s.inv}, nil
}

func (s *segmentsValue) writeArg(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var base, arg starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "ptr", &base, "arg", &arg); err != nil {
		return nil, err
	}
	if err := s.inv.check(); err != nil {
		return nil, err
	}
	addr, err := addressArg(base)
	if err != nil {
		return nil, err
	}
	a, err := toArg(arg, s.inv.vm, 0)
	if err != nil {
		return nil, err
	}
	if !a.IsSeq() {
		return nil, fmt.Errorf("%s: arg must be a list or tuple, got %s: %w", b.Name(), arg.Type(), vm.ErrUnsupportedArg)
	}
	end, err := s.inv.vm.Segments.WriteArg(addr, a.Items())
	if err != nil {
		return nil, err
	}
	return relocatableValue{rel: end, inv: s.inv}, nil
}

func (s *segmentsValue) genArg(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var arg starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "arg", &arg); err != nil {
		return nil, err
	}
	if err := s.inv.check(); err != nil {
		return nil, err
	}
	a, err := toArg(arg, s.inv.vm, 0)
	if err != nil {
		return nil, err
	}
	v, err := s.inv.vm.Segments.GenArg(a)
	if err != nil {
		return nil, err
	}
	return toStarlark(v, s.inv), nil
}

// ---------------------------------------------------------------------------
// Identifiers
// ---------------------------------------------------------------------------

type idsValue struct {
	inv *invocation
}

var _ starlark.HasSetField = (*idsValue)(nil)

func (i *idsValue) String() string        { return "<ids>" }
func (i *idsValue) Type() string          { return "ids" }
func (i *idsValue) Freeze()               {}
func (i *idsValue) Truth() starlark.Bool  { return starlark.True }
func (i *idsValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: ids") }

func (i *idsValue) Attr(name string) (starlark.Value, error) {
	if err := i.inv.check(); err != nil {
		return nil, err
	}
	loc, err := i.inv.ids.Resolve(name)
	if err != nil {
		return nil, err
	}
	if loc.IsImmediate() {
		return starlark.MakeBigInt(loc.Immediate), nil
	}
	v, err := i.inv.load(loc.Address, loc.Type)
	if err != nil {
		return nil, fmt.Errorf("ids.%s: %w", name, err)
	}
	return v, nil
}

func (i *idsValue) AttrNames() []string {
	if i.inv == nil || i.inv.ids == nil {
		return nil
	}
	names := i.inv.ids.Names()
	sort.Strings(names)
	return names
}

func (i *idsValue) SetField(name string, v starlark.Value) error {
	if err := i.inv.check(); err != nil {
		return err
	}
	loc, err := i.inv.ids.Resolve(name)
	if err != nil {
		return err
	}
	if loc.IsImmediate() {
		return fmt.Errorf("ids.%s is a constant: %w", name, ErrCannotAssign)
	}
	if err := i.inv.store(loc.Address, loc.Type, v); err != nil {
		return fmt.Errorf("ids.%s: %w", name, err)
	}
	return nil
}

// structValue is a struct-typed identifier laid out at addr.
type structValue struct {
	addr vm.Relocatable
	def  *StructDefinition
	inv  *invocation
}

var _ starlark.HasSetField = (*structValue)(nil)

func (s *structValue) String() string        { return fmt.Sprintf("<%s at %s>", s.def.Name, s.addr) }
func (s *structValue) Type() string          { return "struct" }
func (s *structValue) Freeze()               {}
func (s *structValue) Truth() starlark.Bool  { return starlark.True }
func (s *structValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: struct") }

func (s *structValue) Attr(name string) (starlark.Value, error) {
	if err := s.inv.check(); err != nil {
		return nil, err
	}
	if name == "address_" {
		return relocatableValue{rel: s.addr, typ: s.def.Name, inv: s.inv}, nil
	}
	addr, m, err := s.member(name)
	if err != nil {
		return nil, err
	}
	return s.inv.load(addr, m.Type)
}

func (s *structValue) AttrNames() []string {
	return append([]string{"address_"}, memberNames(s.def)...)
}

func (s *structValue) SetField(name string, v starlark.Value) error {
	if err := s.inv.check(); err != nil {
		return err
	}
	addr, m, err := s.member(name)
	if err != nil {
		return err
	}
	return s.inv.store(addr, m.Type, v)
}

func (s *structValue) member(name string) (vm.Relocatable, Member, error) {
	m, ok := s.def.Members[name]
	if !ok {
		return vm.Relocatable{}, Member{}, fmt.Errorf("%s has no member %q: %w", s.def.Name, name, ErrUnknownMember)
	}
	addr, err := s.addr.AddInt(m.Offset)
	if err != nil {
		return vm.Relocatable{}, Member{}, err
	}
	return addr, m, nil
}

func memberNames(def *StructDefinition) []string {
	names := make([]string, 0, len(def.Members))
	for name := range def.Members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Opaque host values
// ---------------------------------------------------------------------------

// hostValue carries a Go value with no script equivalent through a hint.
type hostValue struct {
	v any
}

func (h *hostValue) String() string        { return fmt.Sprintf("<host %T>", h.v) }
func (h *hostValue) Type() string          { return "host_value" }
func (h *hostValue) Freeze()               {}
func (h *hostValue) Truth() starlark.Bool  { return starlark.True }
func (h *hostValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: host_value") }
