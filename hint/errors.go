package hint

import (
	"errors"
	"fmt"
)

// ErrIdentifier is the root of every identifier resolution error.
var ErrIdentifier = errors.New("identifier error")

var (
	ErrUnknownIdentifier error = &identifierError{"unknown identifier"}
	ErrUnknownMember     error = &identifierError{"unknown struct member"}
	ErrCannotAssign      error = &identifierError{"cannot assign to expression"}
	ErrApTracking        error = &identifierError{"ap tracking group mismatch"}
)

type identifierError struct {
	msg string
}

func (e *identifierError) Error() string { return e.msg }

func (e *identifierError) Is(target error) bool { return target == ErrIdentifier }

var (
	// ErrHintExecution matches every *HintError.
	ErrHintExecution = errors.New("hint execution error")

	// ErrUnknownHint is returned by a HintProcessor that does not recognize
	// a hint. The stepper then runs the hint as a script.
	ErrUnknownHint = errors.New("unknown hint")

	// ErrReentrant is returned when the bridge is entered while a step or
	// hint is already running on it.
	ErrReentrant = errors.New("bridge already executing")

	// ErrExpiredCapability is returned when a namespace object is used
	// after the hint that received it has finished.
	ErrExpiredCapability = errors.New("capability used outside its hint")
)

// HintError reports a hint that failed to parse or raised an error while
// running. Errors raised by the memory, ids or scope objects stay reachable
// through Unwrap.
type HintError struct {
	// Code is the hint source.
	Code string

	// Pc is the program counter offset the hint is attached to.
	Pc int

	// Message describes the failure.
	Message string

	// Line and Column locate the failure in Code, 1-based. Zero is unknown.
	Line   int
	Column int

	Err error
}

func (e *HintError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("hint at pc %d, line %d: %s", e.Pc, e.Line, e.Message)
	}
	return fmt.Sprintf("hint at pc %d: %s", e.Pc, e.Message)
}

func (e *HintError) Unwrap() error {
	return e.Err
}

// Is matches ErrHintExecution.
func (e *HintError) Is(target error) bool {
	return target == ErrHintExecution
}
