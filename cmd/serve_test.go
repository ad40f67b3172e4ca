//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/legisearch/internal/config"
	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/monitoring"
	"github.com/civicsignal/legisearch/internal/orchestrator"
	"github.com/civicsignal/legisearch/internal/rank"
	"github.com/civicsignal/legisearch/internal/search"
	"github.com/civicsignal/legisearch/internal/stream"
	"github.com/civicsignal/legisearch/pkg/anthropic"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

// textOnlyLLM answers every turn with a fixed text and no tool uses.
type textOnlyLLM struct{ text string }

func (c textOnlyLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return c.StreamMessage(ctx, req, nil)
}

func (c textOnlyLLM) StreamMessage(ctx context.Context, req anthropic.MessageRequest, onText func(string)) (*anthropic.MessageResponse, error) {
	if onText != nil {
		onText(c.text)
	}
	return &anthropic.MessageResponse{
		ID:    "msg_test",
		Text:  c.text,
		Usage: anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

type emptySearch struct{}

func (emptySearch) Search(ctx context.Context, req search.Request) (*search.Page, error) {
	return &search.Page{}, nil
}

func newTestServer(t *testing.T) *apiServer {
	t.Helper()
	cfg = &config.Config{Server: config.ServerConfig{Port: 8080, RequestTimeoutSecs: 5}}

	orch := orchestrator.New(
		textOnlyLLM{text: "HB 1234 covers this."},
		emptySearch{},
		rank.DefaultConfig(),
		nil,
		nil,
		orchestrator.Config{Model: "claude-test", MaxTokens: 256},
	)
	env := &serviceEnv{
		Orchestrator: orch,
		Registry:     stream.NewRegistry(),
		Metrics:      monitoring.NewCollector(),
	}
	return &apiServer{
		env:     env,
		checker: monitoring.NewChecker(stubPinger{}, env.Metrics, time.Minute),
	}
}

func TestRoutes_Health(t *testing.T) {
	api := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var health monitoring.HealthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.True(t, health.Healthy)
}

func TestRoutes_HealthDegraded(t *testing.T) {
	api := newTestServer(t)
	api.checker = monitoring.NewChecker(stubPinger{err: eris.New("refused")}, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go api.checker.Run(ctx)

	assert.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		api.routes().ServeHTTP(rr, req)
		return rr.Code == http.StatusServiceUnavailable
	}, time.Second, 10*time.Millisecond)
}

func TestRoutes_Metrics(t *testing.T) {
	api := newTestServer(t)
	api.env.Metrics.SessionStarted()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.SessionsStarted)
}

func TestHandleQuestion_InvalidBody(t *testing.T) {
	api := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/questions", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleQuestion_EmptyQuestion(t *testing.T) {
	api := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"question": "   "})
	req := httptest.NewRequest(http.MethodPost, "/api/questions", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleQuestion_StreamsEvents(t *testing.T) {
	api := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"question": "recent climate bills"})
	req := httptest.NewRequest(http.MethodPost, "/api/questions", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	out := rr.Body.String()
	start := strings.Index(out, "event: start\n")
	content := strings.Index(out, "event: content\n")
	end := strings.Index(out, "event: end\n")
	require.GreaterOrEqual(t, start, 0)
	require.Greater(t, content, start)
	require.Greater(t, end, content)
	assert.Contains(t, out, "HB 1234 covers this.")

	// The handler records the outcome once the stream drains.
	snap := api.env.Metrics.Snapshot()
	assert.Equal(t, 1, snap.SessionsStarted)
	assert.Equal(t, 1, snap.SessionsCompleted)
	assert.Zero(t, api.env.Registry.Len())
}

func TestHandleStop_Idempotent(t *testing.T) {
	api := newTestServer(t)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/nope/stop", nil)
		rr := httptest.NewRecorder()
		api.routes().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestHandleStop_CancelsLiveSession(t *testing.T) {
	api := newTestServer(t)
	sess, err := api.env.Registry.Create("live-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/live-1/stop", nil)
	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	// The stop is a cancellation signal, not a disconnect: the channel
	// stays open so the end event with status stopped still goes out.
	assert.True(t, sess.Cancelled())
	assert.True(t, sess.IsOpen())
}

func TestHandleSessions_HistoryDisabled(t *testing.T) {
	api := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWriteSSE_Framing(t *testing.T) {
	rr := httptest.NewRecorder()
	ev := model.StreamEvent{
		Type:    model.EventContent,
		Content: &model.ContentPayload{Text: "hello", MessageID: "m1"},
	}

	require.NoError(t, writeSSE(rr, ev))

	out := rr.Body.String()
	assert.True(t, strings.HasPrefix(out, "event: content\ndata: "))
	assert.True(t, strings.HasSuffix(out, "\n\n"))

	var decoded model.StreamEvent
	data := strings.TrimPrefix(out, "event: content\ndata: ")
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &decoded))
	assert.Equal(t, "hello", decoded.Content.Text)
}
