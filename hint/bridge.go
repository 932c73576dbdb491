package hint

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/chazu/hintbridge/scope"
	"github.com/chazu/hintbridge/vm"
)

var (
	log      = commonlog.GetLogger("hintbridge.hint")
	printLog = commonlog.GetLogger("hintbridge.hint.print")
)

// Locals is the caller-owned table of hint variables that lives for a
// whole run. Names already present here are updated in place after each
// hint; every other name a hint binds goes to the current scope frame.
type Locals map[string]any

// HintEvent describes one executed hint.
type HintEvent struct {
	Pc       int
	Code     string
	Native   bool
	Duration time.Duration
	Err      error
}

// Bridge runs hints against one VirtualMachine. A Bridge is not safe for
// concurrent use; entering it while it is already executing fails with
// ErrReentrant.
type Bridge struct {
	vm       *vm.VirtualMachine
	structs  Structs
	options  *syntax.FileOptions
	observer func(HintEvent)
	busy     atomic.Bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithStructs sets the struct layouts used for struct-typed identifiers.
func WithStructs(structs Structs) Option {
	return func(b *Bridge) { b.structs = structs }
}

// WithObserver registers a function called after every hint.
func WithObserver(fn func(HintEvent)) Option {
	return func(b *Bridge) { b.observer = fn }
}

// NewBridge creates a bridge for machine.
func NewBridge(machine *vm.VirtualMachine, opts ...Option) *Bridge {
	b := &Bridge{
		vm:      machine,
		structs: Structs{},
		options: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// VM returns the machine the bridge drives.
func (b *Bridge) VM() *vm.VirtualMachine { return b.vm }

// Structs returns the struct layouts.
func (b *Bridge) Structs() Structs { return b.structs }

func (b *Bridge) acquire() error {
	if !b.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	return nil
}

func (b *Bridge) release() { b.busy.Store(false) }

// ExecuteHint runs data as a script. Variables from the current scope
// frame and from locals are visible to the hint. Afterwards every name the
// hint bound is written back to locals if present there, or to the current
// scope frame otherwise, and the hint's scope enters and exits are applied
// in call order. A failing hint skips both steps. Memory writes made
// before the failure are kept.
func (b *Bridge) ExecuteHint(data *HintData, locals Locals, scopes *scope.ExecutionScopes) error {
	if err := b.acquire(); err != nil {
		return err
	}
	defer b.release()
	return b.executeHint(data, locals, scopes)
}

func (b *Bridge) executeHint(data *HintData, locals Locals, scopes *scope.ExecutionScopes) error {
	inv := &invocation{
		vm:      b.vm,
		ids:     NewIds(b.vm, data, b.structs),
		structs: b.structs,
	}
	defer func() { inv.closed = true }()

	ns := inv.namespace()
	globals := make(starlark.StringDict, len(ns))
	for name, v := range ns {
		globals[name] = v
	}

	origin := make(map[string]any)
	seeded := make(map[string]starlark.Value)
	seed := func(vars map[string]any) {
		for name, v := range vars {
			sv := toStarlark(v, inv)
			origin[name], seeded[name], globals[name] = v, sv, sv
		}
	}
	seed(scopes.LocalVariables())
	seed(locals)

	if err := b.run(data, globals); err != nil {
		return err
	}

	for name, v := range globals {
		if injected, ok := ns[name]; ok && v == injected {
			continue
		}
		if sv, ok := seeded[name]; ok && unchanged(origin[name], sv, v) {
			continue
		}
		val := fromStarlark(v)
		if _, ok := locals[name]; ok {
			locals[name] = val
		} else {
			scopes.AssignOrUpdate(name, val)
		}
	}

	for _, op := range inv.ops {
		if op.enter {
			scopes.Enter(op.locals)
			continue
		}
		if err := scopes.Exit(); err != nil {
			return fmt.Errorf("hint at pc %d: %w", data.Pc, err)
		}
	}
	return nil
}

func (b *Bridge) run(data *HintData, globals starlark.StringDict) error {
	file := fmt.Sprintf("hint@%d", data.Pc)
	f, err := b.options.Parse(file, data.Code, 0)
	if err != nil {
		return newHintError(data, file, err)
	}
	thread := &starlark.Thread{
		Name: file,
		Print: func(_ *starlark.Thread, msg string) {
			printLog.Notice(msg, "pc", data.Pc)
		},
	}
	log.Debugf("pc %d: running hint script", data.Pc)
	if err := starlark.ExecREPLChunk(f, thread, globals); err != nil {
		return newHintError(data, file, err)
	}
	return nil
}

func newHintError(data *HintData, file string, err error) *HintError {
	he := &HintError{Code: data.Code, Pc: data.Pc, Message: err.Error(), Err: err}

	var syntaxErr syntax.Error
	var resolveErrs resolve.ErrorList
	var evalErr *starlark.EvalError
	switch {
	case errors.As(err, &syntaxErr):
		he.Message = syntaxErr.Msg
		he.Line, he.Column = int(syntaxErr.Pos.Line), int(syntaxErr.Pos.Col)
	case errors.As(err, &resolveErrs):
		he.Message = resolveErrs[0].Msg
		he.Line, he.Column = int(resolveErrs[0].Pos.Line), int(resolveErrs[0].Pos.Col)
	case errors.As(err, &evalErr):
		he.Message = evalErr.Msg
		for i := 0; i < len(evalErr.CallStack); i++ {
			fr := evalErr.CallStack.At(i)
			if fr.Pos.Filename() == file {
				he.Line, he.Column = int(fr.Pos.Line), int(fr.Pos.Col)
				break
			}
		}
	}
	return he
}
