package resilience

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnReset = syscall.ECONNRESET

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := NewBreaker(3, time.Second)

	b.Record(errConnReset)
	b.Record(errConnReset)

	assert.Equal(t, CircuitClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		b.Record(errConnReset)
	}

	assert.Equal(t, CircuitOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	b.Record(errConnReset)
	b.Record(errConnReset)
	b.Record(nil)
	b.Record(errConnReset)
	b.Record(errConnReset)

	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_NonRecoverableDoesNotTrip(t *testing.T) {
	b := NewBreaker(2, time.Second)

	b.Record(errors.New("syntax error in tsquery"))
	b.Record(errors.New("syntax error in tsquery"))

	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, 30*time.Second)
	b.nowFunc = func() time.Time { return now }

	b.Record(errConnReset)
	require.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(31 * time.Second)
	assert.NoError(t, b.Allow(), "probe allowed after reset timeout")

	// Probe failure reopens immediately.
	b.Record(errConnReset)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, 30*time.Second)
	b.nowFunc = func() time.Time { return now }

	b.Record(errConnReset)
	now = now.Add(time.Minute)
	require.NoError(t, b.Allow())

	b.Record(nil)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"conn reset message", errors.New("read tcp: connection reset by peer"), true},
		{"rate limit message", errors.New("429 too many requests"), true},
		{"overloaded", errors.New("anthropic: overloaded_error"), true},
		{"io timeout", errors.New("dial tcp: i/o timeout"), true},
		{"syntax error", errors.New("pq: syntax error at or near"), false},
		{"auth", errors.New("invalid api key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recoverable(tt.err))
		})
	}
}
