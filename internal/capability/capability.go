// Package capability gates the pipeline on the one-time, asynchronous
// acquisition of the external pose estimation capability. A Gate starts in
// the loading state and makes exactly one transition, to ready or to error;
// it never goes back and never retries.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/stepup.report/internal/monitoring"
)

// Status is the coarse readiness of a Gate.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// DefaultTimeout bounds how long a loader may take before the gate fails.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNotReady is returned by Wait when the gate failed.
	ErrNotReady = errors.New("pose capability not ready")
	// ErrLoadTimeout is the failure reason when a loader overruns its timeout.
	ErrLoadTimeout = errors.New("pose capability load timeout")
	// ErrAlreadyStarted is returned when Load is called twice on one gate.
	ErrAlreadyStarted = errors.New("pose capability load already started")
)

// State is the sum type {NotReady, Ready(handle), Failed(reason)}. Handle
// is only set when Status is StatusReady, Err only when StatusError.
type State[T any] struct {
	Status  Status
	Handle  T
	Err     error
	Message string
}

// Ready reports whether the handle may be used.
func (s State[T]) Ready() bool { return s.Status == StatusReady }

// LoaderFunc acquires the capability. Progress may be called to update the
// human readable loading message.
type LoaderFunc[T any] func(ctx context.Context, progress func(msg string)) (T, error)

// Gate holds the capability handle and its readiness.
type Gate[T any] struct {
	mu      sync.Mutex
	status  Status
	handle  T
	err     error
	message string
	started bool
	done    chan struct{}
}

// NewGate returns a gate in the loading state.
func NewGate[T any]() *Gate[T] {
	return &Gate[T]{
		status:  StatusLoading,
		message: "Initialising…",
		done:    make(chan struct{}),
	}
}

// ReadyGate returns a gate that is already ready with handle h.
func ReadyGate[T any](h T) *Gate[T] {
	g := NewGate[T]()
	g.started = true
	g.resolve(h, nil)
	return g
}

// FailedGate returns a gate that has already failed with err.
func FailedGate[T any](err error) *Gate[T] {
	g := NewGate[T]()
	g.started = true
	var zero T
	g.resolve(zero, err)
	return g
}

// Load runs loader in a new goroutine, bounded by timeout (DefaultTimeout
// when zero). It returns immediately; observe the outcome via Done, Wait
// or Current.
func (g *Gate[T]) Load(ctx context.Context, timeout time.Duration, loader LoaderFunc[T]) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	g.started = true
	g.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	go func() {
		lctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type outcome struct {
			h   T
			err error
		}
		res := make(chan outcome, 1)
		go func() {
			h, err := loader(lctx, g.setMessage)
			res <- outcome{h, err}
		}()

		select {
		case o := <-res:
			g.resolve(o.h, o.err)
		case <-lctx.Done():
			var zero T
			err := lctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrLoadTimeout
			}
			g.resolve(zero, err)
		}
	}()
	return nil
}

func (g *Gate[T]) setMessage(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == StatusLoading {
		g.message = msg
	}
}

// resolve performs the single terminal transition. Later calls are ignored.
func (g *Gate[T]) resolve(h T, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status != StatusLoading {
		return
	}
	if err != nil {
		g.status = StatusError
		g.err = err
		g.message = "Error: " + err.Error()
		monitoring.Logf("pose capability failed: %v", err)
	} else {
		g.status = StatusReady
		g.handle = h
		g.message = ""
		monitoring.Logf("pose capability ready")
	}
	close(g.done)
}

// Current returns the gate state.
func (g *Gate[T]) Current() State[T] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State[T]{Status: g.status, Handle: g.handle, Err: g.err, Message: g.message}
}

// Done is closed once the gate leaves the loading state.
func (g *Gate[T]) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the gate resolves or ctx ends and returns the handle.
func (g *Gate[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-g.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	st := g.Current()
	if !st.Ready() {
		return zero, fmt.Errorf("%w: %v", ErrNotReady, st.Err)
	}
	return st.Handle, nil
}
