package search

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/resilience"
)

type stubClient struct {
	calls int
	page  *Page
	err   error
}

func (s *stubClient) Search(ctx context.Context, req Request) (*Page, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func TestGuardedClient_PassThrough(t *testing.T) {
	inner := &stubClient{page: &Page{Results: []model.RankedResult{{ID: "a"}}}}
	g := NewGuardedClient(inner, resilience.NewBreaker(3, time.Second))

	page, err := g.Search(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Len(t, page.Results, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestGuardedClient_OpensAndFailsFast(t *testing.T) {
	inner := &stubClient{err: &RetrievalError{Reason: ReasonUnavailable, Err: syscall.ECONNREFUSED}}
	g := NewGuardedClient(inner, resilience.NewBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		_, err := g.Search(context.Background(), validRequest())
		require.Error(t, err)
	}
	require.Equal(t, 2, inner.calls)

	// Breaker now open: the backend is not called again.
	_, err := g.Search(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.True(t, ErrCircuitOpen(err))

	re, ok := AsRetrievalError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonUnavailable, re.Reason)
}

func TestGuardedClient_MalformedQueryDoesNotTrip(t *testing.T) {
	inner := &stubClient{err: &RetrievalError{Reason: ReasonMalformedQuery}}
	g := NewGuardedClient(inner, resilience.NewBreaker(2, time.Minute))

	for i := 0; i < 5; i++ {
		_, err := g.Search(context.Background(), validRequest())
		require.Error(t, err)
	}
	assert.Equal(t, 5, inner.calls)
}
