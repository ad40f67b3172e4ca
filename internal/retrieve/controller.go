package retrieve

import (
	"go.uber.org/zap"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/rank"
)

// State is the controller's position in the loop lifecycle.
type State int

const (
	StateRunning State = iota
	StateRefining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateRefining:
		return "refining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Decision is the controller's verdict after one merge step.
type Decision struct {
	State    State
	Reason   model.CompletionReason // set when State == StateDone
	Strategy model.RefinementStrategy
}

// Controller is the per-session state machine that decides, after each
// round, whether to continue, refine, or stop. Not safe for concurrent
// use; each session owns one Controller.
type Controller struct {
	cfg       *rank.Config
	iteration int
	state     State
	reason    model.CompletionReason
	attempts  map[model.RefinementStrategy]int
}

// NewController creates a controller in the Running state.
func NewController(cfg *rank.Config) *Controller {
	return &Controller{
		cfg:      cfg,
		state:    StateRunning,
		attempts: make(map[model.RefinementStrategy]int),
	}
}

// Iteration returns the index of the most recently evaluated round
// (1-based; 0 before the first Evaluate).
func (c *Controller) Iteration() int {
	return c.iteration
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Reason returns the completion reason once Done.
func (c *Controller) Reason() model.CompletionReason {
	return c.reason
}

// Evaluate records one completed round and applies the transition rule.
// newCount is the round's strictly-new result count; accumulated is the
// full ordered set after the merge.
func (c *Controller) Evaluate(newCount int, accumulated []model.RankedResult) Decision {
	if c.state == StateDone {
		return Decision{State: StateDone, Reason: c.reason}
	}
	c.iteration++

	switch {
	case newCount == 0 && c.iteration >= 2:
		return c.done(model.ReasonNoNewResults)
	case c.sufficient(accumulated):
		return c.done(model.ReasonSufficientResults)
	case c.iteration >= c.cfg.Stopping.MaxIterations:
		return c.done(model.ReasonMaxIterations)
	}

	strategy := c.nextStrategy()
	c.state = StateRefining
	zap.L().Debug("iteration continues",
		zap.Int("iteration", c.iteration),
		zap.Int("new_results", newCount),
		zap.Int("accumulated", len(accumulated)),
		zap.String("strategy", string(strategy)),
	)
	return Decision{State: StateRefining, Strategy: strategy}
}

// Fail transitions directly to Done with reason error. The caller is
// responsible for emitting the error to the stream first.
func (c *Controller) Fail() Decision {
	return c.done(model.ReasonError)
}

// Cancel forces Done with reason user_abort, skipping further backend
// calls. Idempotent once the controller is Done.
func (c *Controller) Cancel() Decision {
	if c.state == StateDone {
		return Decision{State: StateDone, Reason: c.reason}
	}
	return c.done(model.ReasonUserAbort)
}

// sufficient reports whether the accumulated set meets the stop rule:
// the count target is met AND the top-K composite scores all exceed the
// sufficiency threshold.
func (c *Controller) sufficient(accumulated []model.RankedResult) bool {
	if len(accumulated) < c.cfg.Stopping.TargetResults {
		return false
	}
	k := c.cfg.Stopping.TopK
	if k > len(accumulated) {
		k = len(accumulated)
	}
	for _, r := range accumulated[:k] {
		if r.Composite < c.cfg.Stopping.SufficientThreshold {
			return false
		}
	}
	return true
}

// nextStrategy picks the next refinement deterministically: the first
// strategy in the configured order not yet attempted the maximum number
// of times this session. When every strategy is exhausted the last one
// in the order is reused, so the loop can still run out its iteration
// budget rather than stall.
func (c *Controller) nextStrategy() model.RefinementStrategy {
	for _, s := range c.cfg.Strategies {
		if c.attempts[s] < c.cfg.MaxStrategyAttempts {
			c.attempts[s]++
			return s
		}
	}
	last := c.cfg.Strategies[len(c.cfg.Strategies)-1]
	c.attempts[last]++
	return last
}

func (c *Controller) done(reason model.CompletionReason) Decision {
	c.state = StateDone
	c.reason = reason
	zap.L().Info("iteration loop done",
		zap.Int("iterations", c.iteration),
		zap.String("reason", string(reason)),
	)
	return Decision{State: StateDone, Reason: reason}
}
