// Package monitoring tracks session outcomes and backend health for
// the /health and /metrics endpoints.
package monitoring

import (
	"sync"
	"time"

	"github.com/civicsignal/legisearch/internal/model"
)

// MetricsSnapshot holds a point-in-time view of orchestrator activity
// since process start.
type MetricsSnapshot struct {
	SessionsStarted   int     `json:"sessions_started"`
	SessionsCompleted int     `json:"sessions_completed"`
	SessionsFailed    int     `json:"sessions_failed"`
	SessionsStopped   int     `json:"sessions_stopped"`
	FailRate          float64 `json:"fail_rate"`

	SearchCalls    int `json:"search_calls"`
	SearchFailures int `json:"search_failures"`

	TotalIterations int     `json:"total_iterations"`
	TotalCitations  int     `json:"total_citations"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCostUSD    float64 `json:"total_cost_usd"`

	AvgDurationMS int64     `json:"avg_duration_ms"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SessionOutcome is what the orchestrator reports when a session ends.
type SessionOutcome struct {
	Status     model.EndStatus
	Iterations int
	Citations  int
	Tokens     int64
	CostUSD    float64
	Duration   time.Duration
}

// Collector accumulates counters across sessions. Safe for concurrent
// use.
type Collector struct {
	mu sync.Mutex

	started   int
	completed int
	failed    int
	stopped   int

	searchCalls    int
	searchFailures int

	iterations int
	citations  int
	tokens     int64
	costUSD    float64
	duration   time.Duration
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SessionStarted records a new session opening.
func (c *Collector) SessionStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

// SessionEnded records a terminal session outcome.
func (c *Collector) SessionEnded(o SessionOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch o.Status {
	case model.EndCompleted:
		c.completed++
	case model.EndError:
		c.failed++
	case model.EndStopped:
		c.stopped++
	}
	c.iterations += o.Iterations
	c.citations += o.Citations
	c.tokens += o.Tokens
	c.costUSD += o.CostUSD
	c.duration += o.Duration
}

// SearchObserved records one backend search call.
func (c *Collector) SearchObserved(failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchCalls++
	if failed {
		c.searchFailures++
	}
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := MetricsSnapshot{
		SessionsStarted:   c.started,
		SessionsCompleted: c.completed,
		SessionsFailed:    c.failed,
		SessionsStopped:   c.stopped,
		SearchCalls:       c.searchCalls,
		SearchFailures:    c.searchFailures,
		TotalIterations:   c.iterations,
		TotalCitations:    c.citations,
		TotalTokens:       c.tokens,
		TotalCostUSD:      c.costUSD,
		CollectedAt:       time.Now().UTC(),
	}
	finished := c.completed + c.failed + c.stopped
	if finished > 0 {
		snap.FailRate = float64(c.failed) / float64(finished)
		snap.AvgDurationMS = c.duration.Milliseconds() / int64(finished)
	}
	return snap
}
