package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lorekeep/lorekeep/pkg/logger"
)

// ErrOpen is returned when the breaker is tripped and a call was
// short-circuited without touching the wrapped service.
var ErrOpen = errors.New("circuit breaker open")

const (
	// DefaultMaxTimeouts is the run of consecutive timeouts that trips
	// the breaker.
	DefaultMaxTimeouts = 15
	// DefaultCallTimeout bounds every wrapped call.
	DefaultCallTimeout = 60 * time.Second
	// DefaultResetSuccessCount is the run of consecutive successes that
	// fully resets a partially degraded breaker.
	DefaultResetSuccessCount = 3
)

// Options configures a Breaker. Zero values fall back to the defaults.
type Options struct {
	MaxTimeouts       int
	CallTimeout       time.Duration
	ResetSuccessCount int
}

// Breaker trips after a run of consecutive timeouts against an external
// service. A non-timeout failure is treated as evidence the service is
// alive: it decrements the timeout run instead of extending it.
type Breaker struct {
	maxTimeouts       int
	callTimeout       time.Duration
	resetSuccessCount int

	mu                   sync.Mutex
	consecutiveTimeouts  int
	consecutiveSuccesses int
}

// New creates a Breaker with the given options.
func New(opts Options) *Breaker {
	if opts.MaxTimeouts <= 0 {
		opts.MaxTimeouts = DefaultMaxTimeouts
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.ResetSuccessCount <= 0 {
		opts.ResetSuccessCount = DefaultResetSuccessCount
	}
	return &Breaker{
		maxTimeouts:       opts.MaxTimeouts,
		callTimeout:       opts.CallTimeout,
		resetSuccessCount: opts.ResetSuccessCount,
	}
}

// Open reports whether the breaker is currently tripped.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveTimeouts >= b.maxTimeouts
}

// Timeouts returns the current consecutive timeout count.
func (b *Breaker) Timeouts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveTimeouts
}

// Do runs fn under the breaker's call timeout. When the breaker is open
// it returns ErrOpen without invoking fn; callers fall back to their
// deterministic path on that error.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.Open() {
		return ErrOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	err := fn(callCtx)

	switch {
	case err == nil:
		b.recordSuccess()
	case errors.Is(err, context.DeadlineExceeded):
		b.recordTimeout()
	case errors.Is(err, context.Canceled):
		// Caller cancellation says nothing about service health.
	default:
		b.recordFailure()
	}

	return err
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveSuccesses++
	if b.consecutiveSuccesses >= b.resetSuccessCount {
		if b.consecutiveTimeouts > 0 {
			logger.Info("[Breaker] Reset after consecutive successes", "successes", b.consecutiveSuccesses)
		}
		b.consecutiveTimeouts = 0
		b.consecutiveSuccesses = 0
	}
}

func (b *Breaker) recordTimeout() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveSuccesses = 0
	b.consecutiveTimeouts++
	if b.consecutiveTimeouts == b.maxTimeouts {
		logger.Warn("[Breaker] Tripped, switching to fallback", "timeouts", b.consecutiveTimeouts)
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveSuccesses = 0
	b.consecutiveTimeouts = max(0, b.consecutiveTimeouts-1)
}
