package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/hintbridge/runner"
	"github.com/chazu/hintbridge/store"
	"github.com/chazu/hintbridge/trace"
)

// Session is a remote run: a runner session behind its own worker.
type Session struct {
	ID     string
	Name   string
	Worker *VMWorker

	replay   *trace.ReplayRunner
	history  *store.Run
	created  time.Time
	lastUsed time.Time
}

// Remaining returns how many instructions the session's trace still holds.
func (s *Session) Remaining() int {
	if s.replay == nil {
		return 0
	}
	return s.replay.Remaining()
}

// SessionStore manages run sessions.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	nextID   atomic.Uint64
}

// NewSessionStore creates a new session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Add registers a runner session and starts its worker.
func (s *SessionStore) Add(name string, rs *runner.Session, replay *trace.ReplayRunner, history *store.Run) *Session {
	id := fmt.Sprintf("s-%d", s.nextID.Add(1))
	now := time.Now()
	session := &Session{
		ID:       id,
		Name:     name,
		Worker:   NewVMWorker(rs),
		replay:   replay,
		history:  history,
		created:  now,
		lastUsed: now,
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	log.Infof("session %s created (%s)", id, name)
	return session
}

// Get retrieves a session by ID and marks it used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if ok {
		session.lastUsed = time.Now()
	}
	return session, ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Destroy removes a session, finishes its history and stops its worker.
// It reports whether the session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		s.release(session)
		log.Infof("session %s destroyed", id)
	}
	return ok
}

// DestroyAll removes every session.
func (s *SessionStore) DestroyAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range all {
		s.release(session)
	}
}

func (s *SessionStore) release(session *Session) {
	if session.history != nil {
		_, err := session.Worker.Do(func(rs *runner.Session) (any, error) {
			return nil, session.history.Finish(rs.VM().CurrentStep(), nil)
		})
		if err != nil {
			log.Errorf("session %s: finishing history: %s", session.ID, err)
		}
	}
	session.Worker.Stop()
}

// Sweep removes sessions that haven't been accessed within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	var expired []*Session
	for id, session := range s.sessions {
		if session.lastUsed.Before(cutoff) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		s.release(session)
	}
	if len(expired) > 0 {
		log.Infof("swept %d idle session(s)", len(expired))
	}
	return len(expired)
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
