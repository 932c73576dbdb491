package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/hintbridge/trace"
	"github.com/chazu/hintbridge/vm"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

const testProgram = `
[entry]
pc = 0
ap = 2
fp = 2

[[hints]]
pc = 0
code = "memory[ap] = 5"

[[hints]]
pc = 1
code = "y = memory[ap - 1] * 2"
`

// testTrace replays pc 0..3 with ap advancing by one per step.
func testTrace(t *testing.T) []byte {
	t.Helper()
	var steps []trace.Step
	for i := 0; i < 4; i++ {
		steps = append(steps, trace.Step{
			Pc: vm.NewRelocatable(0, i),
			Ap: vm.NewRelocatable(1, 2+i),
			Fp: vm.NewRelocatable(1, 2),
		})
	}
	data, err := trace.Encode(steps)
	if err != nil {
		t.Fatalf("encode trace: %v", err)
	}
	return data
}

// newTestService creates a RunService over a fresh session store. The
// store is emptied when the test ends.
func newTestService(t *testing.T) (*RunService, *SessionStore) {
	t.Helper()
	sessions := NewSessionStore()
	t.Cleanup(sessions.DestroyAll)
	return NewRunService(sessions, nil), sessions
}

// newTestSession creates a session running testProgram over testTrace.
func newTestSession(t *testing.T, svc *RunService) string {
	t.Helper()
	resp, err := svc.CreateSession(bg(), connectReq(&CreateSessionRequest{
		Name:    "test",
		Program: testProgram,
		Trace:   testTrace(t),
	}))
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	return resp.Msg.SessionID
}

// newTestServer serves a RunServer over httptest and returns a Connect
// client for it.
func newTestServer(t *testing.T, opts ...ServerOption) (*RunServer, *Client) {
	t.Helper()
	srv := New(opts...)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		srv.Stop(context.Background())
	})
	return srv, NewClient(hs.Client(), hs.URL)
}

// ---------------------------------------------------------------------------
// Request builder helpers — reduce boilerplate in tests.
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Fatalf("code = %v, want %v (err: %v)", got, code, err)
	}
}
