package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the point-in-time health of the process and its
// backends, served at /health.
type HealthStatus struct {
	Healthy       bool      `json:"healthy"`
	SearchBackend string    `json:"search_backend"`
	LastChecked   time.Time `json:"last_checked"`
	Error         string    `json:"error,omitempty"`
}

// Checker probes the search backend in the background and keeps the
// latest result for the health endpoint. Sessions never wait on a
// probe.
type Checker struct {
	backend   Pinger
	collector *Collector
	interval  time.Duration

	mu     sync.Mutex
	status HealthStatus
}

// NewChecker creates a background health checker. interval <= 0 falls
// back to one minute.
func NewChecker(backend Pinger, collector *Collector, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Checker{
		backend:   backend,
		collector: collector,
		interval:  interval,
		// Optimistic until the first probe completes.
		status: HealthStatus{Healthy: true, SearchBackend: "unknown"},
	}
}

// Run starts the periodic probe loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker", zap.Duration("interval", c.interval))

	c.check(ctx, log)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// Health returns the most recent probe result.
func (c *Checker) Health() HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status := HealthStatus{
		Healthy:       true,
		SearchBackend: "up",
		LastChecked:   time.Now().UTC(),
	}
	if err := c.backend.Ping(probeCtx); err != nil {
		status.Healthy = false
		status.SearchBackend = "down"
		status.Error = err.Error()
		log.Warn("search backend unreachable", zap.Error(err))
	}

	if c.collector != nil {
		snap := c.collector.Snapshot()
		if finished := snap.SessionsCompleted + snap.SessionsFailed + snap.SessionsStopped; finished >= 5 && snap.FailRate > 0.5 {
			log.Warn("session failure rate above 50%",
				zap.Float64("fail_rate", snap.FailRate),
				zap.Int("finished", finished),
			)
		}
	}

	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}
