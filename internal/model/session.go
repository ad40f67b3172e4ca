package model

import "time"

// CompletionReason records why a search session stopped iterating.
type CompletionReason string

const (
	ReasonMaxIterations     CompletionReason = "max_iterations"
	ReasonSufficientResults CompletionReason = "sufficient_results"
	ReasonNoNewResults      CompletionReason = "no_new_results"
	ReasonError             CompletionReason = "error"
	ReasonUserAbort         CompletionReason = "user_abort"
)

// RefinementStrategy is the adjustment applied to the next search request
// when a round's results are insufficient.
type RefinementStrategy string

const (
	StrategyInitial         RefinementStrategy = "initial"
	StrategyExpandTerms     RefinementStrategy = "expand_terms"
	StrategyNarrowFocus     RefinementStrategy = "narrow_focus"
	StrategyChangeTimeframe RefinementStrategy = "change_timeframe"
	StrategyAdjustFilters   RefinementStrategy = "adjust_filters"
	StrategyBroadenScope    RefinementStrategy = "broaden_scope"
	StrategyDeepenSearch    RefinementStrategy = "deepen_search"
)

// SearchIteration is one round of the retrieval loop. Immutable once
// appended to its session.
type SearchIteration struct {
	Index       int                `json:"index"` // 1-based
	Query       string             `json:"query"`
	Strategy    RefinementStrategy `json:"strategy"`
	ResultCount int                `json:"result_count"`
	NewCount    int                `json:"new_count"`
	Cumulative  int                `json:"cumulative"`
	Duration    time.Duration      `json:"duration"`
}

// SearchSession is the full lifetime of one user request. Owned
// exclusively by the orchestrator; sealed when Reason is set and
// EndedAt is non-zero.
type SearchSession struct {
	ID         string            `json:"id"`
	Query      string            `json:"query"`
	Iterations []SearchIteration `json:"iterations"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at,omitempty"`
	Reason     CompletionReason  `json:"reason,omitempty"`
}

// Sealed reports whether the session has reached its terminal state.
func (s *SearchSession) Sealed() bool {
	return s.Reason != "" && !s.EndedAt.IsZero()
}

// Seal records the completion reason and end time. The first call wins.
func (s *SearchSession) Seal(reason CompletionReason, at time.Time) {
	if s.Sealed() {
		return
	}
	s.Reason = reason
	s.EndedAt = at
}

// ToolCallStatus is the lifecycle state of one model-requested capability
// invocation.
type ToolCallStatus string

const (
	ToolCallStarted   ToolCallStatus = "started"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ToolCallRecord is one invocation of a backend capability by the model.
// It is finalized exactly once, before the next model turn begins.
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments string         `json:"arguments"`
	Status    ToolCallStatus `json:"status"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
}
