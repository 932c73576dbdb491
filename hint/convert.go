package hint

import (
	"fmt"
	"math/big"
	"reflect"

	"go.starlark.net/starlark"

	"github.com/chazu/hintbridge/vm"
)

// TypedRelocatable is an address that remembers its pointee type. Typed
// pointers stored in a scope or in hint locals come back as this type.
type TypedRelocatable struct {
	Addr vm.Relocatable
	Type string
}

// toStarlark converts a scope or hint-local value for use in a hint.
// Values with no script equivalent are wrapped and passed through opaque.
func toStarlark(x any, inv *invocation) starlark.Value {
	switch x := x.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return x
	case bool:
		return starlark.Bool(x)
	case int:
		return starlark.MakeInt(x)
	case int64:
		return starlark.MakeInt64(x)
	case int32:
		return starlark.MakeInt64(int64(x))
	case uint:
		return starlark.MakeUint(x)
	case uint64:
		return starlark.MakeUint64(x)
	case uint32:
		return starlark.MakeUint64(uint64(x))
	case *big.Int:
		return starlark.MakeBigInt(x)
	case float64:
		return starlark.Float(x)
	case string:
		return starlark.String(x)
	case vm.Felt:
		return starlark.MakeBigInt(x.Big())
	case vm.Relocatable:
		return relocatableValue{rel: x, inv: inv}
	case TypedRelocatable:
		return relocatableValue{rel: x.Addr, typ: x.Type, inv: inv}
	case vm.MaybeRelocatable:
		if r, ok := x.GetRelocatable(); ok {
			return relocatableValue{rel: r, inv: inv}
		}
		return starlark.MakeBigInt(x.Felt.Big())
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			elems[i] = toStarlark(e, inv)
		}
		return starlark.NewList(elems)
	case map[string]any:
		d := starlark.NewDict(len(x))
		for k, v := range x {
			_ = d.SetKey(starlark.String(k), toStarlark(v, inv))
		}
		return d
	}
	return &hostValue{v: x}
}

// fromStarlark converts a value bound by a hint for storage in a scope or
// in hint locals. Lists and tuples become []any and string-keyed dicts
// become map[string]any, so addresses inside them outlive the hint.
// Functions and other script-only values are kept as script values.
func fromStarlark(v starlark.Value) any {
	return fromStarlarkDepth(v, 0)
}

func fromStarlarkDepth(v starlark.Value, depth int) any {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(v)
	case starlark.Int:
		if n, ok := v.Int64(); ok && int64(int(n)) == n {
			return int(n)
		}
		return v.BigInt()
	case starlark.String:
		return string(v)
	case starlark.Float:
		return float64(v)
	case relocatableValue:
		if v.typ != "" {
			return TypedRelocatable{Addr: v.rel, Type: v.typ}
		}
		return v.rel
	case *hostValue:
		return v.v
	case *starlark.List:
		if depth >= vm.MaxArgDepth {
			return v
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = fromStarlarkDepth(v.Index(i), depth+1)
		}
		return out
	case starlark.Tuple:
		if depth >= vm.MaxArgDepth {
			return v
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = fromStarlarkDepth(e, depth+1)
		}
		return out
	case *starlark.Dict:
		if depth >= vm.MaxArgDepth {
			return v
		}
		out := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return v
			}
			out[string(k)] = fromStarlarkDepth(item[1], depth+1)
		}
		return out
	}
	return v
}

// unchanged reports whether a name seeded into a hint still holds the
// value it was seeded with and writing it back would change nothing.
func unchanged(orig any, seeded, final starlark.Value) bool {
	if reflect.TypeOf(seeded) != reflect.TypeOf(final) || !reflect.TypeOf(seeded).Comparable() {
		return false
	}
	if seeded != final {
		return false
	}
	if _, ok := orig.(starlark.Value); ok {
		return true
	}
	// Containers built from host slices and maps may have been mutated in
	// place, so only immutable values are skipped.
	_, err := seeded.Hash()
	return err == nil
}

// toMaybe converts a script value to a memory cell value.
func toMaybe(v starlark.Value, machine *vm.VirtualMachine) (vm.MaybeRelocatable, error) {
	switch v := v.(type) {
	case starlark.Int:
		return vm.FeltValue(vm.FeltFromBig(v.BigInt(), machine.Prime())), nil
	case relocatableValue:
		return vm.AddrValue(v.rel), nil
	}
	return vm.MaybeRelocatable{}, fmt.Errorf("cannot store %s in memory: %w", v.Type(), vm.ErrUnsupportedArg)
}

// toArg converts a script value to a write_arg argument. Lists and tuples
// become sequences.
func toArg(v starlark.Value, machine *vm.VirtualMachine, depth int) (vm.Arg, error) {
	if depth > vm.MaxArgDepth {
		return vm.Arg{}, fmt.Errorf("argument depth %d: %w", depth, vm.ErrArgTooDeep)
	}
	var elems []starlark.Value
	switch v := v.(type) {
	case *starlark.List:
		elems = make([]starlark.Value, v.Len())
		for i := range elems {
			elems[i] = v.Index(i)
		}
	case starlark.Tuple:
		elems = v
	default:
		m, err := toMaybe(v, machine)
		if err != nil {
			return vm.Arg{}, err
		}
		return vm.ScalarArg(m), nil
	}
	items := make([]vm.Arg, len(elems))
	for i, e := range elems {
		a, err := toArg(e, machine, depth+1)
		if err != nil {
			return vm.Arg{}, err
		}
		items[i] = a
	}
	return vm.SeqArg(items...), nil
}

func toOffset(v starlark.Value) (int, bool, error) {
	i, ok := v.(starlark.Int)
	if !ok {
		return 0, false, nil
	}
	n, ok := i.Int64()
	if !ok || int64(int(n)) != n {
		return 0, true, fmt.Errorf("offset %s out of range", i)
	}
	return int(n), true, nil
}
