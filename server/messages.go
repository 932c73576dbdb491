package server

import (
	"github.com/chazu/hintbridge/trace"
	"github.com/chazu/hintbridge/vm"
)

// RunService procedure names.
const (
	RunServiceName = "hintbridge.v1.RunService"

	CreateSessionProcedure  = "/" + RunServiceName + "/CreateSession"
	StepProcedure           = "/" + RunServiceName + "/Step"
	RunProcedure            = "/" + RunServiceName + "/Run"
	ReadMemoryProcedure     = "/" + RunServiceName + "/ReadMemory"
	StatusProcedure         = "/" + RunServiceName + "/Status"
	AddSignatureProcedure   = "/" + RunServiceName + "/AddSignature"
	DestroySessionProcedure = "/" + RunServiceName + "/DestroySession"
)

// MaxReadCells bounds a single ReadMemory request.
const MaxReadCells = 4096

// SignatureSpec is a signature given as decimal or 0x-prefixed integers.
type SignatureSpec struct {
	Segment int    `cbor:"1,keyasint"`
	Offset  int    `cbor:"2,keyasint"`
	R       string `cbor:"3,keyasint"`
	S       string `cbor:"4,keyasint"`
}

type CreateSessionRequest struct {
	Name string `cbor:"1,keyasint,omitempty"`
	// Program is a program description in TOML.
	Program string `cbor:"2,keyasint"`
	// Trace is an encoded trace file replayed as the instruction engine.
	Trace        []byte          `cbor:"3,keyasint,omitempty"`
	Prime        string          `cbor:"4,keyasint,omitempty"`
	TraceEnabled bool            `cbor:"5,keyasint,omitempty"`
	Signatures   []SignatureSpec `cbor:"6,keyasint,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string        `cbor:"1,keyasint"`
	Registers vm.TraceEntry `cbor:"2,keyasint"`
}

type StepRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

type StepResponse struct {
	Registers vm.TraceEntry `cbor:"1,keyasint"`
	Step      int           `cbor:"2,keyasint"`
}

// RunRequest runs Steps instructions, or until EndPC when set. With EndPC
// set, a positive Steps bounds the run.
type RunRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Steps     int    `cbor:"2,keyasint,omitempty"`
	EndPC     *int   `cbor:"3,keyasint,omitempty"`
}

type RunResponse struct {
	Registers vm.TraceEntry `cbor:"1,keyasint"`
	Executed  int           `cbor:"2,keyasint"`
}

type ReadMemoryRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Segment   int    `cbor:"2,keyasint"`
	Offset    int    `cbor:"3,keyasint"`
	Count     int    `cbor:"4,keyasint"`
}

// ReadMemoryResponse lists the written cells in the requested range.
type ReadMemoryResponse struct {
	Cells []trace.Cell `cbor:"1,keyasint"`
}

type StatusRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

type StatusResponse struct {
	Name         string        `cbor:"1,keyasint"`
	Registers    vm.TraceEntry `cbor:"2,keyasint"`
	Step         int           `cbor:"3,keyasint"`
	ScopeDepth   int           `cbor:"4,keyasint"`
	SegmentSizes []int         `cbor:"5,keyasint"`
	Remaining    int           `cbor:"6,keyasint"`
}

type AddSignatureRequest struct {
	SessionID string        `cbor:"1,keyasint"`
	Signature SignatureSpec `cbor:"2,keyasint"`
}

type AddSignatureResponse struct {
	Count int `cbor:"1,keyasint"`
}

type DestroySessionRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

type DestroySessionResponse struct{}
