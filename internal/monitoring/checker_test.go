package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.uber.org/zap"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(ctx context.Context) error { return s.err }

func TestChecker_InitiallyOptimistic(t *testing.T) {
	c := NewChecker(&stubPinger{}, nil, time.Minute)
	assert.True(t, c.Health().Healthy)
}

func TestChecker_HealthyProbe(t *testing.T) {
	c := NewChecker(&stubPinger{}, NewCollector(), time.Minute)

	c.check(context.Background(), zap.NewNop())

	health := c.Health()
	assert.True(t, health.Healthy)
	assert.Equal(t, "up", health.SearchBackend)
	assert.Empty(t, health.Error)
	assert.False(t, health.LastChecked.IsZero())
}

func TestChecker_UnhealthyProbe(t *testing.T) {
	c := NewChecker(&stubPinger{err: errors.New("connection refused")}, nil, time.Minute)

	c.check(context.Background(), zap.NewNop())

	health := c.Health()
	assert.False(t, health.Healthy)
	assert.Equal(t, "down", health.SearchBackend)
	assert.Contains(t, health.Error, "connection refused")
}

func TestChecker_RecoversAfterBackendReturns(t *testing.T) {
	pinger := &stubPinger{err: errors.New("down")}
	c := NewChecker(pinger, nil, time.Minute)

	c.check(context.Background(), zap.NewNop())
	assert.False(t, c.Health().Healthy)

	pinger.err = nil
	c.check(context.Background(), zap.NewNop())
	assert.True(t, c.Health().Healthy)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := NewChecker(&stubPinger{}, nil, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("checker did not stop after cancel")
	}
	assert.True(t, c.Health().Healthy)
}
