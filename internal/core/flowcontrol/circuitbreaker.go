// Package flowcontrol provides a process-local circuit breaker for calls to
// flaky upstreams.
package flowcontrol

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrCircuitOpen is returned without calling the upstream while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrCallTimeout is returned when the upstream did not answer within CallTimeout.
	ErrCallTimeout = errors.New("circuit breaker call timed out")
)

// State represents the circuit breaker state.
type State int32

const (
	// StateClosed means the circuit is closed and requests are allowed.
	StateClosed State = iota
	// StateOpen means the circuit is open and requests are blocked.
	StateOpen
	// StateHalfOpen means a single probe request is in flight.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerOptions configures the circuit breaker.
type CircuitBreakerOptions struct {
	// WindowSize is the number of most recent outcomes considered. Default 10.
	WindowSize int
	// MinRequests is how many outcomes the window needs before it can trip. Default 2.
	MinRequests int
	// FailureRatio trips the breaker when failures/outcomes reaches it. Default 0.5.
	FailureRatio float64
	// CallTimeout bounds each call made through Execute. Default 3s.
	CallTimeout time.Duration
	// ResetTimeout is how long the breaker stays open before probing. Default 30s.
	ResetTimeout time.Duration

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(from, to State)
	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultCircuitBreakerOptions returns the default thresholds.
func DefaultCircuitBreakerOptions() CircuitBreakerOptions {
	return CircuitBreakerOptions{
		WindowSize:   10,
		MinRequests:  2,
		FailureRatio: 0.5,
		CallTimeout:  3 * time.Second,
		ResetTimeout: 30 * time.Second,
	}
}

// CircuitBreaker trips on a rolling failure ratio and recovers through a
// single half-open probe.
//
// The state is readable without the lock; transitions happen under mu. In
// HalfOpen only the caller that won the Open->HalfOpen transition runs; every
// other caller is short-circuited until the probe reports back.
type CircuitBreaker struct {
	opts CircuitBreakerOptions

	state atomic.Int32

	mu       sync.Mutex
	window   []bool // true = failure
	next     int
	filled   int
	failures int
	openedAt time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(opts CircuitBreakerOptions) *CircuitBreaker {
	defaults := DefaultCircuitBreakerOptions()
	if opts.WindowSize <= 0 {
		opts.WindowSize = defaults.WindowSize
	}
	if opts.MinRequests <= 0 {
		opts.MinRequests = defaults.MinRequests
	}
	if opts.MinRequests > opts.WindowSize {
		opts.MinRequests = opts.WindowSize
	}
	if opts.FailureRatio <= 0 || opts.FailureRatio > 1 {
		opts.FailureRatio = defaults.FailureRatio
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaults.CallTimeout
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = defaults.ResetTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &CircuitBreaker{
		opts:   opts,
		window: make([]bool, opts.WindowSize),
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

// Allow reports whether a call may proceed. A true result from an open
// breaker whose reset timeout has elapsed makes the caller the probe; it must
// report back through RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	switch cb.State() {
	case StateClosed:
		return true
	case StateHalfOpen:
		return false
	}

	cb.mu.Lock()
	if cb.State() != StateOpen || cb.opts.Now().Sub(cb.openedAt) < cb.opts.ResetTimeout {
		cb.mu.Unlock()
		return false
	}
	// Only one caller can win this swap.
	won := cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen))
	cb.mu.Unlock()
	if won {
		cb.notify(StateOpen, StateHalfOpen)
	}
	return won
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.record(false)
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.record(true)
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	from := cb.State()
	to := from

	switch from {
	case StateHalfOpen:
		if failed {
			to = StateOpen
			cb.openedAt = cb.opts.Now()
		} else {
			to = StateClosed
			cb.resetWindow()
		}
	case StateClosed:
		cb.push(failed)
		if cb.filled >= cb.opts.MinRequests &&
			float64(cb.failures)/float64(cb.filled) >= cb.opts.FailureRatio {
			to = StateOpen
			cb.openedAt = cb.opts.Now()
			cb.resetWindow()
		}
	case StateOpen:
		// late result from a call admitted before the trip
	}

	cb.state.Store(int32(to))
	cb.mu.Unlock()

	if to != from {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) push(failed bool) {
	if cb.filled == len(cb.window) {
		if cb.window[cb.next] {
			cb.failures--
		}
	} else {
		cb.filled++
	}
	cb.window[cb.next] = failed
	if failed {
		cb.failures++
	}
	cb.next = (cb.next + 1) % len(cb.window)
}

func (cb *CircuitBreaker) resetWindow() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.next, cb.filled, cb.failures = 0, 0, 0
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.opts.OnStateChange != nil {
		cb.opts.OnStateChange(from, to)
	}
}

// Execute runs fn through the breaker with CallTimeout applied.
//
// fn runs in its own goroutine. When the timeout fires first, Execute returns
// ErrCallTimeout and whatever fn eventually returns is discarded. Cancellation
// of the caller's ctx is returned as is and does not count against the upstream.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is Execute for functions that return a value.
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !cb.Allow() {
		return zero, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.opts.CallTimeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if ctx.Err() != nil {
				cb.release()
				return zero, ctx.Err()
			}
			cb.RecordFailure()
			return zero, r.err
		}
		cb.RecordSuccess()
		return r.val, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			cb.release()
			return zero, ctx.Err()
		}
		cb.RecordFailure()
		return zero, ErrCallTimeout
	}
}

// release hands back a probe slot taken by a call that the caller abandoned,
// so the breaker does not stay half-open forever.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	released := cb.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen))
	cb.mu.Unlock()
	if released {
		cb.notify(StateHalfOpen, StateOpen)
	}
}
