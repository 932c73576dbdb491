package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/hintbridge/runner"
)

// ErrWorkerStopped is returned by Do once the worker has been stopped.
var ErrWorkerStopped = errors.New("worker stopped")

// vmRequest represents a unit of work to be executed on the session goroutine.
type vmRequest struct {
	fn   func(*runner.Session) (any, error)
	done chan vmResult
}

// vmResult holds the return value from a session operation.
type vmResult struct {
	value any
	err   error
}

// VMWorker serializes all access to one run session through a single
// goroutine. A hint bridge rejects re-entrant use, so every handler
// touching the session must go through the worker.
type VMWorker struct {
	session  *runner.Session
	requests chan vmRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker(s *runner.Session) *VMWorker {
	w := &VMWorker{
		session:  s,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			select {
			case <-w.quit:
				req.done <- vmResult{err: ErrWorkerStopped}
				return
			default:
			}
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the session, recovering from panics.
func (w *VMWorker) execute(fn func(*runner.Session) (any, error)) (result vmResult) {
	defer func() {
		if r := recover(); r != nil {
			result = vmResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err := fn(w.session)
	return vmResult{value: v, err: err}
}

// Do submits a function for execution on the session goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *VMWorker) Do(fn func(*runner.Session) (any, error)) (any, error) {
	select {
	case <-w.quit:
		return nil, ErrWorkerStopped
	default:
	}
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
