package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the breaker's position.
type CircuitState int

const (
	// CircuitClosed is normal operation.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls immediately after repeated failures.
	CircuitOpen
	// CircuitHalfOpen lets one probe through to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected without reaching
// the backend.
var ErrCircuitOpen = eris.New("search backend circuit is open")

// Breaker is a circuit breaker for the ranked-search backend. After
// FailureThreshold consecutive recoverable failures, calls fail fast
// for ResetTimeout before a probe is allowed through.
type Breaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(failureThreshold int, resetTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            CircuitClosed,
		nowFunc:          time.Now,
	}
}

// Allow reports whether a call may proceed, returning ErrCircuitOpen
// when the breaker is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.nowFunc().Sub(b.lastFailure) >= b.resetTimeout {
			b.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// Record feeds the outcome of a call back into the breaker. Only
// recoverable failures count toward tripping; malformed input does not
// indicate backend trouble.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !Recoverable(err) {
		if b.state != CircuitClosed {
			b.transition(CircuitClosed)
		}
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.nowFunc()

	switch b.state {
	case CircuitClosed:
		if b.failures >= b.failureThreshold {
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.transition(CircuitOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.nowFunc().Sub(b.lastFailure) >= b.resetTimeout {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	zap.L().Info("search circuit state change",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}
