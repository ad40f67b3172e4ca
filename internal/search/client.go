// Package search provides the typed adapter over the ranked-search
// backend. One call issues one scored, deduplicated result page; the
// client holds no session state.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicsignal/legisearch/internal/model"
)

// Limits on a single request, enforced by Request.Validate.
const (
	MinLimit = 1
	MaxLimit = 50
)

// Filters are the optional structural constraints on a search request.
type Filters struct {
	Chambers        []string   `json:"chambers,omitempty"`
	Categories      []string   `json:"categories,omitempty"`
	Administrations []string   `json:"administrations,omitempty"`
	From            *time.Time `json:"from,omitempty"`
	To              *time.Time `json:"to,omitempty"`
}

// Request is one ranked-search call.
type Request struct {
	Query     string              `json:"query"`
	Kinds     []model.ContentKind `json:"kinds,omitempty"` // empty = all kinds
	Filters   Filters             `json:"filters"`
	Threshold float64             `json:"threshold"`
	Limit     int                 `json:"limit"`
}

// Validate checks the request bounds before any backend call.
func (r Request) Validate() error {
	if r.Query == "" {
		return &RetrievalError{Reason: ReasonMalformedQuery, Err: errors.New("empty query")}
	}
	if r.Limit < MinLimit || r.Limit > MaxLimit {
		return &RetrievalError{Reason: ReasonBadThreshold, Err: fmt.Errorf("limit %d out of [%d,%d]", r.Limit, MinLimit, MaxLimit)}
	}
	if r.Threshold < 0 || r.Threshold > 1 {
		return &RetrievalError{Reason: ReasonBadThreshold, Err: fmt.Errorf("threshold %f out of [0,1]", r.Threshold)}
	}
	for _, k := range r.Kinds {
		if !k.Valid() {
			return &RetrievalError{Reason: ReasonMalformedQuery, Err: fmt.Errorf("unknown content kind %q", k)}
		}
	}
	return nil
}

// Page is one deduplicated, scored result page. No two results share a
// content id. EmbeddingTokens is the provider token count billed for
// embedding the query (zero on a cache hit).
type Page struct {
	Results         []model.RankedResult `json:"results"`
	EmbeddingTokens int64                `json:"embedding_tokens,omitempty"`
}

// Client is the ranked-search backend adapter. Implementations are
// stateless per call and safe for concurrent use across sessions.
type Client interface {
	Search(ctx context.Context, req Request) (*Page, error)
}

// Reason codes for RetrievalError, machine-readable per the backend
// contract.
const (
	ReasonUnavailable    = "unavailable"
	ReasonTimeout        = "timeout"
	ReasonMalformedQuery = "malformed_query"
	ReasonBadThreshold   = "bad_threshold"
)

// RetrievalError is the typed failure surfaced for any backend error.
// A failed call contributes zero results; partial success is never
// assumed.
type RetrievalError struct {
	Reason string
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Err == nil {
		return "search: " + e.Reason
	}
	return fmt.Sprintf("search: %s: %v", e.Reason, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// AsRetrievalError unwraps err to a RetrievalError if one is in the
// chain.
func AsRetrievalError(err error) (*RetrievalError, bool) {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
