package model

import "time"

// RelevanceIndicators exposes the per-signal breakdown behind a citation's
// rank, plus how many query terms matched inside the excerpt.
type RelevanceIndicators struct {
	Semantic    float64 `json:"semantic"`
	Keyword     float64 `json:"keyword"`
	Recency     float64 `json:"recency"`
	Authority   float64 `json:"authority"`
	Composite   float64 `json:"composite"`
	TermMatches int     `json:"term_matches"`
}

// Citation is a read-only view of a RankedResult plus the search context
// that produced it. Built once per content id per session, after
// deduplication against all prior iterations.
type Citation struct {
	ContentID  string              `json:"content_id"`
	Kind       ContentKind         `json:"kind"`
	Title      string              `json:"title"`
	Label      string              `json:"label"`
	Excerpt    string              `json:"excerpt"`
	Query      string              `json:"query"`
	Method     string              `json:"method"`
	Rank       int                 `json:"rank"`
	Iteration  int                 `json:"iteration"`
	Indicators RelevanceIndicators `json:"indicators"`
	Timestamp  time.Time           `json:"timestamp"`
}
