package search

import (
	"context"
	"errors"

	"github.com/civicsignal/legisearch/internal/resilience"
)

// GuardedClient wraps a Client with a circuit breaker so a struggling
// backend fails fast instead of stalling every session on timeouts.
type GuardedClient struct {
	inner   Client
	breaker *resilience.Breaker
}

// NewGuardedClient wraps inner with the given breaker.
func NewGuardedClient(inner Client, breaker *resilience.Breaker) *GuardedClient {
	return &GuardedClient{inner: inner, breaker: breaker}
}

func (g *GuardedClient) Search(ctx context.Context, req Request) (*Page, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, &RetrievalError{Reason: ReasonUnavailable, Err: err}
	}

	page, err := g.inner.Search(ctx, req)
	g.breaker.Record(err)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// ErrCircuitOpen reports whether the error came from a fast-failed call.
func ErrCircuitOpen(err error) bool {
	return errors.Is(err, resilience.ErrCircuitOpen)
}

var _ Client = (*GuardedClient)(nil)
