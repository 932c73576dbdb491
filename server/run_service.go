package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"connectrpc.com/connect"
	"github.com/holiman/uint256"

	"github.com/chazu/hintbridge/hint"
	"github.com/chazu/hintbridge/program"
	"github.com/chazu/hintbridge/runner"
	"github.com/chazu/hintbridge/scope"
	"github.com/chazu/hintbridge/store"
	"github.com/chazu/hintbridge/trace"
	"github.com/chazu/hintbridge/vm"
)

// RunService implements the RunService Connect/gRPC handlers.
type RunService struct {
	sessions *SessionStore
	history  *store.Store
}

// NewRunService creates a RunService. history may be nil.
func NewRunService(sessions *SessionStore, history *store.Store) *RunService {
	return &RunService{sessions: sessions, history: history}
}

// CreateSession loads a program and starts a run session.
func (s *RunService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	msg := req.Msg
	prog, err := program.Parse([]byte(msg.Program))
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	var prime *uint256.Int
	if msg.Prime != "" {
		if prime, err = vm.ParsePrime(msg.Prime); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}

	cfg := runner.Config{
		Prime:        prime,
		TraceEnabled: msg.TraceEnabled,
		Program:      prog,
	}

	var replay *trace.ReplayRunner
	if len(msg.Trace) > 0 {
		steps, err := trace.Decode(msg.Trace)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		replay = trace.NewReplayRunner(steps)
		cfg.Instructions = replay
	}

	if len(msg.Signatures) > 0 {
		p := prime
		if p == nil {
			p = vm.StarkPrime
		}
		sigs := hint.NewSignatures()
		for _, spec := range msg.Signatures {
			addr, sig, err := spec.resolve(p)
			if err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}
			sigs.Add(addr, sig)
		}
		cfg.Signatures = sigs
	}

	var run *store.Run
	if s.history != nil {
		if run, err = s.history.BeginRun(msg.Name); err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		cfg.Recorder = run
	}

	rs, err := runner.New(cfg)
	if err != nil {
		if run != nil {
			if ferr := run.Finish(0, err); ferr != nil {
				log.Errorf("finishing history: %s", ferr)
			}
		}
		if errors.Is(err, vm.ErrSignature) || errors.Is(err, vm.ErrMemory) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	session := s.sessions.Add(msg.Name, rs, replay, run)
	return connect.NewResponse(&CreateSessionResponse{
		SessionID: session.ID,
		Registers: registers(rs.VM()),
	}), nil
}

// Step runs the hints at the current pc and one instruction.
func (s *RunService) Step(
	ctx context.Context,
	req *connect.Request[StepRequest],
) (*connect.Response[StepResponse], error) {
	session, err := s.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	result, err := session.Worker.Do(func(rs *runner.Session) (any, error) {
		if err := rs.Step(); err != nil {
			return nil, err
		}
		return &StepResponse{Registers: registers(rs.VM()), Step: rs.VM().CurrentStep()}, nil
	})
	if err != nil {
		return nil, runError(err)
	}
	return connect.NewResponse(result.(*StepResponse)), nil
}

// Run executes several steps.
func (s *RunService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[RunResponse], error) {
	msg := req.Msg
	if msg.EndPC == nil && msg.Steps <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("steps or end_pc is required"))
	}
	session, err := s.lookup(msg.SessionID)
	if err != nil {
		return nil, err
	}
	result, err := session.Worker.Do(func(rs *runner.Session) (any, error) {
		start := rs.VM().CurrentStep()
		var err error
		if msg.EndPC != nil {
			err = rs.RunUntilPC(ctx, *msg.EndPC, msg.Steps)
		} else {
			_, err = rs.RunSteps(ctx, msg.Steps)
		}
		if err != nil {
			return nil, err
		}
		return &RunResponse{Registers: registers(rs.VM()), Executed: rs.VM().CurrentStep() - start}, nil
	})
	if err != nil {
		return nil, runError(err)
	}
	return connect.NewResponse(result.(*RunResponse)), nil
}

// ReadMemory returns the written cells of a segment range.
func (s *RunService) ReadMemory(
	ctx context.Context,
	req *connect.Request[ReadMemoryRequest],
) (*connect.Response[ReadMemoryResponse], error) {
	msg := req.Msg
	if msg.Count <= 0 || msg.Count > MaxReadCells {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("count must be in 1..%d", MaxReadCells))
	}
	if msg.Segment < 0 || msg.Offset < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("negative address"))
	}
	session, err := s.lookup(msg.SessionID)
	if err != nil {
		return nil, err
	}
	result, err := session.Worker.Do(func(rs *runner.Session) (any, error) {
		resp := &ReadMemoryResponse{}
		for i := 0; i < msg.Count; i++ {
			addr := vm.NewRelocatable(msg.Segment, msg.Offset+i)
			if v, ok := rs.VM().GetMaybe(addr); ok {
				resp.Cells = append(resp.Cells, trace.Cell{Addr: addr, Value: v})
			}
		}
		return resp, nil
	})
	if err != nil {
		return nil, runError(err)
	}
	return connect.NewResponse(result.(*ReadMemoryResponse)), nil
}

// Status reports the session's registers and progress.
func (s *RunService) Status(
	ctx context.Context,
	req *connect.Request[StatusRequest],
) (*connect.Response[StatusResponse], error) {
	session, err := s.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	result, err := session.Worker.Do(func(rs *runner.Session) (any, error) {
		return &StatusResponse{
			Name:         session.Name,
			Registers:    registers(rs.VM()),
			Step:         rs.VM().CurrentStep(),
			ScopeDepth:   rs.Scopes().Depth(),
			SegmentSizes: rs.VM().Segments.UsedSizes(),
			Remaining:    session.Remaining(),
		}, nil
	})
	if err != nil {
		return nil, runError(err)
	}
	return connect.NewResponse(result.(*StatusResponse)), nil
}

// ErrRunStarted is returned by AddSignature once the session has executed
// an instruction.
var ErrRunStarted = errors.New("run already started")

// AddSignature registers a signature with the session's signature builtin.
// Signatures are only accepted before the first instruction runs.
func (s *RunService) AddSignature(
	ctx context.Context,
	req *connect.Request[AddSignatureRequest],
) (*connect.Response[AddSignatureResponse], error) {
	session, err := s.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	result, err := session.Worker.Do(func(rs *runner.Session) (any, error) {
		if step := rs.VM().CurrentStep(); step > 0 {
			return nil, fmt.Errorf("%w: %d step(s) executed", ErrRunStarted, step)
		}
		addr, sig, err := req.Msg.Signature.resolve(rs.VM().Prime())
		if err != nil {
			return nil, err
		}
		if err := rs.VM().Signature.AddSignature(addr, sig); err != nil {
			return nil, err
		}
		return &AddSignatureResponse{Count: rs.VM().Signature.Len()}, nil
	})
	if err != nil {
		return nil, runError(err)
	}
	return connect.NewResponse(result.(*AddSignatureResponse)), nil
}

// DestroySession ends a session.
func (s *RunService) DestroySession(
	ctx context.Context,
	req *connect.Request[DestroySessionRequest],
) (*connect.Response[DestroySessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	if !s.sessions.Destroy(req.Msg.SessionID) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	return connect.NewResponse(&DestroySessionResponse{}), nil
}

func (s *RunService) lookup(id string) (*Session, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

func (spec SignatureSpec) resolve(prime *uint256.Int) (vm.Relocatable, vm.Signature, error) {
	r, ok := new(big.Int).SetString(spec.R, 0)
	if !ok {
		return vm.Relocatable{}, vm.Signature{}, fmt.Errorf("%w: invalid r %q", vm.ErrSignature, spec.R)
	}
	sv, ok := new(big.Int).SetString(spec.S, 0)
	if !ok {
		return vm.Relocatable{}, vm.Signature{}, fmt.Errorf("%w: invalid s %q", vm.ErrSignature, spec.S)
	}
	return vm.NewRelocatable(spec.Segment, spec.Offset),
		vm.Signature{R: vm.FeltFromBig(r, prime), S: vm.FeltFromBig(sv, prime)}, nil
}

func registers(m *vm.VirtualMachine) vm.TraceEntry {
	return vm.TraceEntry{Pc: m.Pc(), Ap: m.Ap(), Fp: m.Fp()}
}

// runError maps run failures to Connect codes.
func runError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, ErrWorkerStopped):
		code = connect.CodeUnavailable
	case errors.Is(err, trace.ErrTraceExhausted), errors.Is(err, runner.ErrStepLimit):
		code = connect.CodeOutOfRange
	case errors.Is(err, vm.ErrSignature):
		code = connect.CodeInvalidArgument
	case errors.Is(err, hint.ErrHintExecution),
		errors.Is(err, hint.ErrIdentifier),
		errors.Is(err, scope.ErrScope),
		errors.Is(err, vm.ErrMemory),
		errors.Is(err, trace.ErrTraceDiverged),
		errors.Is(err, vm.ErrNoInstructionRunner),
		errors.Is(err, ErrRunStarted):
		code = connect.CodeFailedPrecondition
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
