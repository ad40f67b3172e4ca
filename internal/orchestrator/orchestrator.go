// Package orchestrator drives one question through the model
// tool-calling loop, the ranked-search backend, and out the caller's
// event stream.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsignal/legisearch/internal/citation"
	"github.com/civicsignal/legisearch/internal/cost"
	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/rank"
	"github.com/civicsignal/legisearch/internal/resilience"
	"github.com/civicsignal/legisearch/internal/retrieve"
	"github.com/civicsignal/legisearch/internal/search"
	"github.com/civicsignal/legisearch/internal/store"
	"github.com/civicsignal/legisearch/internal/stream"
	"github.com/civicsignal/legisearch/pkg/anthropic"
)

// ErrEmptyQuery rejects a request before any session is opened.
var ErrEmptyQuery = eris.New("orchestrator: query must not be empty")

// ValidateQuery checks a question before a session is opened, so
// validation failures never produce stream side effects.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	return nil
}

const systemPrompt = `You are a legislative research assistant. Answer the user's question ` +
	`about bills and executive actions using the search_legislation tool. Search as many ` +
	`times as needed with refined queries, then answer concisely. Refer to results by their ` +
	`labels (bill numbers, executive order numbers). Only state facts supported by search results.`

// Config tunes one orchestrator shared by all sessions.
type Config struct {
	Model            string
	MaxTokens        int64
	Temperature      *float64
	MaxModelTurns    int
	DefaultLimit     int
	DefaultThreshold float64
	SearchMethod     string
}

// Orchestrator wires the model provider, search backend, merger,
// controller, and citation builder together per request. Stateless
// across sessions; every Run call builds its own loop state.
type Orchestrator struct {
	llm      anthropic.Client
	searcher search.Client
	rankCfg  *rank.Config
	builder  *citation.Builder
	calc     *cost.Calculator
	history  store.Store // may be nil
	cfg      Config

	nowFunc func() time.Time
}

// New creates an orchestrator. history may be nil to disable
// persistence.
func New(llm anthropic.Client, searcher search.Client, rankCfg *rank.Config, calc *cost.Calculator, history store.Store, cfg Config) *Orchestrator {
	if cfg.MaxModelTurns <= 0 {
		cfg.MaxModelTurns = 12
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.SearchMethod == "" {
		cfg.SearchMethod = "ranked_hybrid"
	}
	return &Orchestrator{
		llm:      llm,
		searcher: searcher,
		rankCfg:  rankCfg,
		builder:  citation.NewBuilder(cfg.SearchMethod),
		calc:     calc,
		history:  history,
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// loopState is the per-request mutable state threaded through the turn
// loop.
type loopState struct {
	sess       *stream.Session
	messageID  string
	session    *model.SearchSession
	merger      *retrieve.Merger
	controller  *retrieve.Controller
	citations   []model.Citation
	usage       anthropic.TokenUsage
	embedTokens int64

	// nextStrategy is the refinement chosen by the previous round's
	// Evaluate, applied to the next search request.
	nextStrategy model.RefinementStrategy
}

// Run executes the full request lifecycle, emitting every event to
// sess. The query must already be validated. Run always emits a
// terminal end event and never panics across the stream boundary.
func (o *Orchestrator) Run(ctx context.Context, sess *stream.Session, query string) {
	started := o.nowFunc()
	st := &loopState{
		sess:      sess,
		messageID: uuid.New().String(),
		session: &model.SearchSession{
			ID:        sess.ID(),
			Query:     query,
			StartedAt: started,
		},
		merger:       retrieve.NewMerger(),
		controller:   retrieve.NewController(o.rankCfg),
		nextStrategy: model.StrategyInitial,
	}

	sess.Emit(model.StreamEvent{
		Type:  model.EventStart,
		Start: &model.StartPayload{SessionID: sess.ID(), MessageID: st.messageID},
	})

	status := o.loop(ctx, st, query)

	o.finish(st, status, started)
}

// loop runs the bounded model-turn loop and returns the terminal
// status.
func (o *Orchestrator) loop(ctx context.Context, st *loopState, query string) model.EndStatus {
	msgs := []anthropic.Message{anthropic.TextMessage(anthropic.RoleUser, query)}

	for turn := 0; turn < o.cfg.MaxModelTurns; turn++ {
		if o.aborted(ctx, st.sess) {
			st.controller.Cancel()
			return model.EndStopped
		}

		req := anthropic.MessageRequest{
			Model:       o.cfg.Model,
			MaxTokens:   o.cfg.MaxTokens,
			System:      systemPrompt,
			Messages:    msgs,
			Temperature: o.cfg.Temperature,
		}
		// Once retrieval is done the model gets one tool-free turn to
		// compose its answer from the results it has.
		if st.controller.State() != retrieve.StateDone {
			req.Tools = []anthropic.Tool{searchTool()}
		}

		resp, err := o.llm.StreamMessage(ctx, req, func(text string) {
			st.sess.Emit(model.StreamEvent{
				Type:    model.EventContent,
				Content: &model.ContentPayload{Text: text, MessageID: st.messageID},
			})
		})
		if err != nil {
			if o.aborted(ctx, st.sess) {
				st.controller.Cancel()
				return model.EndStopped
			}
			o.emitError(st.sess, err)
			st.controller.Fail()
			return model.EndError
		}

		st.usage.Add(resp.Usage)
		msgs = append(msgs, resp.AsMessage())

		if len(resp.ToolUses) == 0 {
			return model.EndCompleted
		}

		for _, tu := range resp.ToolUses {
			if o.aborted(ctx, st.sess) {
				st.controller.Cancel()
				return model.EndStopped
			}
			msgs = append(msgs, o.executeToolCall(ctx, st, tu))
		}
	}

	zap.L().Warn("model turn budget exhausted", zap.String("session", st.sess.ID()))
	return model.EndCompleted
}

// executeToolCall runs one model-requested capability and returns the
// tool-result message for the next turn. All stream events for the call
// (tool_call started/completed/failed, citations, errors) are emitted
// before this returns, so event order follows execution order.
func (o *Orchestrator) executeToolCall(ctx context.Context, st *loopState, tu anthropic.ToolUse) anthropic.Message {
	record := model.ToolCallRecord{
		ID:        tu.ID,
		Name:      tu.Name,
		Arguments: string(tu.Input),
		Status:    model.ToolCallStarted,
	}
	st.sess.Emit(model.StreamEvent{
		Type:     model.EventToolCall,
		ToolCall: &model.ToolCallPayload{Record: record},
	})

	if tu.Name != SearchToolName {
		record.Status = model.ToolCallFailed
		record.Error = "unknown capability: " + tu.Name
		st.sess.Emit(model.StreamEvent{
			Type:     model.EventToolCall,
			ToolCall: &model.ToolCallPayload{Record: record},
		})
		return anthropic.ToolResultMessage(tu.ID, record.Error, true)
	}

	req, err := parseSearchArgs(tu.Input, o.cfg.DefaultLimit, o.cfg.DefaultThreshold)
	if err != nil {
		// Malformed arguments never reach the backend and do not
		// consume an iteration slot.
		record.Status = model.ToolCallFailed
		record.Error = err.Error()
		st.sess.Emit(model.StreamEvent{
			Type:     model.EventToolCall,
			ToolCall: &model.ToolCallPayload{Record: record},
		})
		return anthropic.ToolResultMessage(tu.ID, "invalid search arguments: "+err.Error(), true)
	}

	if st.controller.State() == retrieve.StateDone {
		// A single turn can request several searches; once a decision
		// lands on Done the rest are answered without a backend call.
		record.Status = model.ToolCallCompleted
		record.Result = "retrieval complete"
		st.sess.Emit(model.StreamEvent{
			Type:     model.EventToolCall,
			ToolCall: &model.ToolCallPayload{Record: record},
		})
		return anthropic.ToolResultMessage(tu.ID,
			`{"note":"retrieval complete, answer from existing results"}`, false)
	}

	strategy := st.nextStrategy
	if strategy != model.StrategyInitial {
		req = retrieve.Refine(strategy, req, st.merger.Results())
	}

	searchStart := o.nowFunc()
	page, searchErr := o.searcher.Search(ctx, req)
	duration := o.nowFunc().Sub(searchStart)

	if searchErr != nil {
		return o.failedSearch(st, tu, record, req, strategy, duration, searchErr)
	}

	st.embedTokens += page.EmbeddingTokens
	all, fresh := st.merger.Merge(page.Results)
	decision := st.controller.Evaluate(len(fresh), all)
	iteration := st.controller.Iteration()

	st.session.Iterations = append(st.session.Iterations, model.SearchIteration{
		Index:       iteration,
		Query:       req.Query,
		Strategy:    strategy,
		ResultCount: len(page.Results),
		NewCount:    len(fresh),
		Cumulative:  len(all),
		Duration:    duration,
	})

	record.Status = model.ToolCallCompleted
	record.Duration = duration
	st.sess.Emit(model.StreamEvent{
		Type: model.EventToolCall,
		ToolCall: &model.ToolCallPayload{
			Record:      record,
			Iteration:   iteration,
			SearchType:  o.cfg.SearchMethod,
			ResultCount: len(page.Results),
		},
	})

	// Citations follow the tool_call completion immediately, one per
	// strictly-new result, before the model loop continues.
	for _, r := range fresh {
		cit := o.builder.Build(r, req.Query, iteration, st.merger.Rank(r.ID), o.nowFunc())
		st.citations = append(st.citations, cit)
		st.sess.Emit(model.StreamEvent{Type: model.EventCitation, Citation: &cit})
	}

	note := ""
	if decision.State == retrieve.StateDone {
		note = "retrieval complete: " + string(decision.Reason)
	}
	st.nextStrategy = decision.Strategy

	result, err := formatToolResult(len(page.Results), fresh, all, note)
	if err != nil {
		return anthropic.ToolResultMessage(tu.ID, "internal error formatting results", true)
	}
	return anthropic.ToolResultMessage(tu.ID, result, false)
}

// failedSearch reports a failed backend call. The failure is reported
// on-stream and consumes an iteration slot as a zero-new-result round;
// the loop continues with degraded results until the controller stops
// it.
func (o *Orchestrator) failedSearch(st *loopState, tu anthropic.ToolUse, record model.ToolCallRecord, req search.Request, strategy model.RefinementStrategy, duration time.Duration, searchErr error) anthropic.Message {
	o.emitError(st.sess, searchErr)

	decision := st.controller.Evaluate(0, st.merger.Results())
	iteration := st.controller.Iteration()
	st.nextStrategy = decision.Strategy

	st.session.Iterations = append(st.session.Iterations, model.SearchIteration{
		Index:      iteration,
		Query:      req.Query,
		Strategy:   strategy,
		Cumulative: st.merger.Total(),
		Duration:   duration,
	})

	record.Status = model.ToolCallFailed
	record.Error = searchErr.Error()
	record.Duration = duration
	st.sess.Emit(model.StreamEvent{
		Type: model.EventToolCall,
		ToolCall: &model.ToolCallPayload{
			Record:     record,
			Iteration:  iteration,
			SearchType: o.cfg.SearchMethod,
		},
	})

	return anthropic.ToolResultMessage(tu.ID, "search failed: "+searchErr.Error(), true)
}

// finish seals the session, emits the terminal end event, and persists
// history.
func (o *Orchestrator) finish(st *loopState, status model.EndStatus, started time.Time) {
	ended := o.nowFunc()

	reason := st.controller.Reason()
	if reason == "" {
		// The model stopped requesting searches before the controller
		// decided: it judged the accumulated results sufficient.
		reason = model.ReasonSufficientResults
		if status == model.EndStopped {
			reason = model.ReasonUserAbort
		}
	}
	st.session.Seal(reason, ended)

	end := model.EndPayload{
		MessageID:   st.messageID,
		Status:      status,
		Duration:    ended.Sub(started),
		TotalTokens: st.usage.Total(),
	}
	if o.calc != nil {
		end.CostUSD = o.calc.Claude(o.cfg.Model,
			st.usage.InputTokens, st.usage.OutputTokens,
			st.usage.CacheCreationInputTokens, st.usage.CacheReadInputTokens) +
			o.calc.Embedding(st.embedTokens)
	}
	st.sess.Emit(model.StreamEvent{Type: model.EventEnd, End: &end})

	zap.L().Info("session finished",
		zap.String("session", st.sess.ID()),
		zap.String("status", string(status)),
		zap.String("reason", string(reason)),
		zap.Int("iterations", len(st.session.Iterations)),
		zap.Int("citations", len(st.citations)),
		zap.Duration("duration", end.Duration),
		zap.Int64("total_tokens", end.TotalTokens),
	)

	if o.history != nil {
		// The request context may already be cancelled; persistence
		// gets its own budget.
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rec := store.SessionRecord{Session: *st.session, Citations: st.citations}
		if err := o.history.SaveSession(saveCtx, rec); err != nil {
			zap.L().Error("persist session failed",
				zap.String("session", st.sess.ID()),
				zap.Error(err),
			)
		}
	}
}

// aborted reports whether the session should stop issuing new calls:
// an explicit stop request, request timeout, or transport disconnect
// all land here. A stop request leaves the channel open so the
// terminal end event still goes out; a disconnect does not, and
// finish's emit becomes a logged no-op.
func (o *Orchestrator) aborted(ctx context.Context, sess *stream.Session) bool {
	return ctx.Err() != nil || !sess.IsOpen() || sess.Cancelled()
}

// emitError converts a failure to an error stream event with a stable
// code and a recoverable flag.
func (o *Orchestrator) emitError(sess *stream.Session, err error) {
	payload := classifyError(err)
	sess.Emit(model.StreamEvent{Type: model.EventError, Error: &payload})
}

// classifyError maps the error taxonomy onto stream error payloads.
func classifyError(err error) model.ErrorPayload {
	if re, ok := search.AsRetrievalError(err); ok {
		recoverable := re.Reason == search.ReasonTimeout || re.Reason == search.ReasonUnavailable
		return model.ErrorPayload{
			Message:     "search backend error",
			Code:        "retrieval_" + re.Reason,
			Recoverable: recoverable,
		}
	}
	if anthropic.IsRateLimited(err) {
		return model.ErrorPayload{
			Message:     "model provider rate limited",
			Code:        "model_rate_limited",
			Recoverable: true,
			RetryAfter:  "30s",
		}
	}
	if anthropic.IsAuthError(err) {
		return model.ErrorPayload{
			Message:     "model provider rejected credentials",
			Code:        "model_auth_failed",
			Recoverable: false,
		}
	}
	return model.ErrorPayload{
		Message:     "internal error",
		Code:        "internal",
		Recoverable: resilience.Recoverable(err),
	}
}
