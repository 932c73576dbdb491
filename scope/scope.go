// Package scope holds the stack of variable frames that hints enter and
// exit. The stack lives for a whole run and always keeps its main frame.
package scope

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hintbridge.scope")

// ErrScope is the root of every scope error.
var ErrScope = errors.New("scope error")

var (
	ErrExitMainScope      error = &scopeError{"cannot exit main scope"}
	ErrVariableNotInScope error = &scopeError{"variable not in scope"}
)

type scopeError struct {
	msg string
}

func (e *scopeError) Error() string { return e.msg }

func (e *scopeError) Is(target error) bool { return target == ErrScope }

// ExecutionScopes is a stack of name to value frames.
type ExecutionScopes struct {
	data []map[string]any
}

// New returns a stack holding only the main frame.
func New() *ExecutionScopes {
	return &ExecutionScopes{data: []map[string]any{{}}}
}

// Enter pushes a frame seeded with a copy of locals, which may be nil.
func (s *ExecutionScopes) Enter(locals map[string]any) {
	frame := make(map[string]any, len(locals))
	for k, v := range locals {
		frame[k] = v
	}
	s.data = append(s.data, frame)
	log.Debugf("enter scope (depth %d)", len(s.data))
}

// Exit pops the current frame. The main frame cannot be popped.
func (s *ExecutionScopes) Exit() error {
	if len(s.data) == 1 {
		return ErrExitMainScope
	}
	s.data = s.data[:len(s.data)-1]
	log.Debugf("exit scope (depth %d)", len(s.data))
	return nil
}

// Depth returns the number of frames, main frame included.
func (s *ExecutionScopes) Depth() int {
	return len(s.data)
}

// LocalVariables returns a copy of the current frame.
func (s *ExecutionScopes) LocalVariables() map[string]any {
	cur := s.current()
	out := make(map[string]any, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// AssignOrUpdate binds name in the current frame.
func (s *ExecutionScopes) AssignOrUpdate(name string, value any) {
	s.current()[name] = value
}

// Get looks up name in the current frame.
func (s *ExecutionScopes) Get(name string) (any, error) {
	v, ok := s.current()[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrVariableNotInScope)
	}
	return v, nil
}

// Delete removes name from the current frame.
func (s *ExecutionScopes) Delete(name string) {
	delete(s.current(), name)
}

// Frame returns a copy of frame i, where 0 is the main frame.
func (s *ExecutionScopes) Frame(i int) (map[string]any, bool) {
	if i < 0 || i >= len(s.data) {
		return nil, false
	}
	out := make(map[string]any, len(s.data[i]))
	for k, v := range s.data[i] {
		out[k] = v
	}
	return out, true
}

func (s *ExecutionScopes) current() map[string]any {
	return s.data[len(s.data)-1]
}
