package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/monitoring"
	"github.com/civicsignal/legisearch/internal/orchestrator"
	"github.com/civicsignal/legisearch/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the question-answering API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(env.Backend, env.Metrics, time.Minute)
		go checker.Run(ctx)
		env.Registry.StartSweep(ctx)

		api := &apiServer{env: env, checker: checker}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.routes(),
			// SSE responses outlive any sane write timeout; the
			// per-question budget is enforced by request context.
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type apiServer struct {
	env     *serviceEnv
	checker *monitoring.Checker
}

func (a *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", a.handleHealth)
	r.Get("/metrics", a.handleMetrics)
	r.Route("/api", func(r chi.Router) {
		r.Post("/questions", a.handleQuestion)
		r.Post("/sessions/{sessionID}/stop", a.handleStop)
		r.Get("/sessions", a.handleListSessions)
		r.Get("/sessions/{sessionID}", a.handleGetSession)
	})
	return r
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := a.checker.Health()
	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

func (a *apiServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.env.Metrics.Snapshot())
}

// handleQuestion answers one question over an SSE stream. The response
// carries every stream event in order; the end event is always last.
func (a *apiServer) handleQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := orchestrator.ValidateQuery(req.Question); err != nil {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := uuid.New().String()
	sess, err := a.env.Registry.Create(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session init failed")
		return
	}
	defer a.env.Registry.Remove(id)
	a.env.Metrics.SessionStarted()

	ctx, cancel := context.WithTimeout(r.Context(), cfg.Server.RequestTimeout())
	defer cancel()

	go a.env.Orchestrator.Run(ctx, sess, req.Question)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	outcome := monitoring.SessionOutcome{Status: model.EndError}
	for ev := range sess.Events() {
		switch ev.Type {
		case model.EventCitation:
			outcome.Citations++
		case model.EventToolCall:
			if ev.ToolCall != nil && ev.ToolCall.Record.Status != model.ToolCallStarted {
				outcome.Iterations = ev.ToolCall.Iteration
				a.env.Metrics.SearchObserved(ev.ToolCall.Record.Status == model.ToolCallFailed)
			}
		case model.EventEnd:
			if ev.End != nil {
				outcome.Status = ev.End.Status
				outcome.Tokens = ev.End.TotalTokens
				outcome.CostUSD = ev.End.CostUSD
				outcome.Duration = ev.End.Duration
			}
		}
		if err := writeSSE(w, ev); err != nil {
			// Client went away; closing the session stops the
			// orchestrator at its next checkpoint.
			sess.Close()
			break
		}
		flusher.Flush()
	}
	a.env.Metrics.SessionEnded(outcome)
}

// handleStop requests cancellation of a running session. The stream
// stays open so the orchestrator's end event with status stopped still
// reaches the consumer. Idempotent: stopping an unknown or
// already-finished session succeeds.
func (a *apiServer) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if sess := a.env.Registry.Get(id); sess != nil {
		sess.Cancel()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "session_id": id})
}

func (a *apiServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if a.env.History == nil {
		writeError(w, http.StatusNotFound, "session history disabled")
		return
	}
	filter := store.SessionFilter{
		Reason: model.CompletionReason(r.URL.Query().Get("reason")),
	}
	records, err := a.env.History.ListSessions(r.Context(), filter)
	if err != nil {
		zap.L().Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if a.env.History == nil {
		writeError(w, http.StatusNotFound, "session history disabled")
		return
	}
	rec, err := a.env.History.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		zap.L().Error("get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get session failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeSSE emits one event in text/event-stream framing.
func writeSSE(w http.ResponseWriter, ev model.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
