// Package server exposes run sessions over Connect and gRPC. Messages are
// CBOR encoded; every session is driven by its own worker goroutine.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/hintbridge/store"
)

var log = commonlog.GetLogger("hintbridge.server")

// RunServer serves the RunService. It serves both gRPC and Connect on the
// same port.
type RunServer struct {
	sessions *SessionStore
	mux      *http.ServeMux

	mu   sync.Mutex
	http *http.Server

	stopSweeper func()
}

// ServerOption configures a RunServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	sessionTTL    time.Duration
	sweepInterval time.Duration
	history       *store.Store
}

// WithSessionTTL sets how long an idle session lives.
func WithSessionTTL(ttl time.Duration) ServerOption {
	return func(c *serverConfig) { c.sessionTTL = ttl }
}

// WithSweepInterval sets how often idle sessions are swept.
func WithSweepInterval(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.sweepInterval = d }
}

// WithHistory records every session's run in history.
func WithHistory(history *store.Store) ServerOption {
	return func(c *serverConfig) { c.history = history }
}

// New creates a RunServer.
func New(opts ...ServerOption) *RunServer {
	cfg := &serverConfig{
		sessionTTL:    10 * time.Minute,
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sessions := NewSessionStore()
	s := &RunServer{
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	path, handler := NewRunServiceHandler(NewRunService(sessions, cfg.history))
	s.mux.Handle(path, handler)

	s.stopSweeper = sessions.StartSweeper(cfg.sweepInterval, cfg.sessionTTL)
	return s
}

// NewRunServiceHandler builds an HTTP handler for svc and returns the path
// to mount it on.
func NewRunServiceHandler(svc *RunService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, opts...))
	mux.Handle(StepProcedure, connect.NewUnaryHandler(StepProcedure, svc.Step, opts...))
	mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, svc.Run, opts...))
	mux.Handle(ReadMemoryProcedure, connect.NewUnaryHandler(ReadMemoryProcedure, svc.ReadMemory, opts...))
	mux.Handle(StatusProcedure, connect.NewUnaryHandler(StatusProcedure, svc.Status, opts...))
	mux.Handle(AddSignatureProcedure, connect.NewUnaryHandler(AddSignatureProcedure, svc.AddSignature, opts...))
	mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, svc.DestroySession, opts...))
	return "/" + RunServiceName + "/", mux
}

// Handler returns the server's HTTP handler.
func (s *RunServer) Handler() http.Handler { return s.mux }

// Sessions returns the session store.
func (s *RunServer) Sessions() *SessionStore { return s.sessions }

// Serve accepts connections on ln. Plaintext HTTP/2 is enabled so gRPC
// clients can connect without TLS.
func (s *RunServer) Serve(ln net.Listener) error {
	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	hs := &http.Server{
		Handler:           s.mux,
		Protocols:         protocols,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = hs
	s.mu.Unlock()

	log.Noticef("RunService listening on %s", ln.Addr())
	return hs.Serve(ln)
}

// ListenAndServe starts the server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *RunServer) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Stop shuts down the server and destroys every session.
func (s *RunServer) Stop(ctx context.Context) error {
	if s.stopSweeper != nil {
		s.stopSweeper()
		s.stopSweeper = nil
	}
	s.mu.Lock()
	hs := s.http
	s.mu.Unlock()

	var err error
	if hs != nil {
		err = hs.Shutdown(ctx)
	}
	s.sessions.DestroyAll()
	return err
}
