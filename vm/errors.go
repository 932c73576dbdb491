package vm

import "errors"

// ErrMemory is the root of every memory error. All memory sentinels below
// match it through errors.Is.
var ErrMemory = errors.New("memory error")

var (
	ErrInconsistentMemory  error = &memoryError{"inconsistent memory write"}
	ErrUnknownValue        error = &memoryError{"unknown memory value"}
	ErrDiffSegments        error = &memoryError{"cannot subtract addresses from different segments"}
	ErrExpectedRelocatable error = &memoryError{"expected relocatable"}
	ErrExpectedFelt        error = &memoryError{"expected field element"}
	ErrUnknownSegment      error = &memoryError{"unknown segment"}
	ErrFrozenSegment       error = &memoryError{"write past finalized segment"}
	ErrNegativeOffset      error = &memoryError{"negative offset"}
	ErrUnsupportedArg      error = &memoryError{"unsupported argument type"}
	ErrArgTooDeep          error = &memoryError{"argument nesting too deep"}
	ErrFeltOutOfField      error = &memoryError{"field element not below prime"}
)

// ErrSignature reports a signature that cannot be registered with the
// signature builtin.
var ErrSignature = errors.New("signature error")

type memoryError struct {
	msg string
}

func (e *memoryError) Error() string { return e.msg }

func (e *memoryError) Is(target error) bool {
	return target == ErrMemory
}
