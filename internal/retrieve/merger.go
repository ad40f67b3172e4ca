// Package retrieve implements the iterative retrieval loop: merging
// result pages across rounds and deciding when to stop or refine.
package retrieve

import (
	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/rank"
)

// Merger accumulates ranked results across iterations of one session,
// deduplicating by content id and keeping the set globally ordered.
// Not safe for concurrent use; each session owns one Merger.
type Merger struct {
	seen        map[string]struct{}
	accumulated []model.RankedResult
}

// NewMerger creates an empty merger.
func NewMerger() *Merger {
	return &Merger{seen: make(map[string]struct{})}
}

// Merge folds one page into the running set. It returns the full
// re-ranked accumulated sequence and the strictly-new items from this
// page, both ordered by the ranking contract (composite desc, recency,
// id). Composite scores arrive already computed on a comparable [0,1]
// scale per kind; the merger never re-normalizes.
func (m *Merger) Merge(page []model.RankedResult) (all, fresh []model.RankedResult) {
	for _, r := range page {
		if _, dup := m.seen[r.ID]; dup {
			continue
		}
		m.seen[r.ID] = struct{}{}
		m.accumulated = append(m.accumulated, r)
		fresh = append(fresh, r)
	}

	rank.Sort(m.accumulated)
	rank.Sort(fresh)

	all = make([]model.RankedResult, len(m.accumulated))
	copy(all, m.accumulated)
	return all, fresh
}

// Total returns the number of distinct results accumulated so far.
func (m *Merger) Total() int {
	return len(m.accumulated)
}

// Results returns a copy of the accumulated, ordered result set.
func (m *Merger) Results() []model.RankedResult {
	out := make([]model.RankedResult, len(m.accumulated))
	copy(out, m.accumulated)
	return out
}

// Rank returns the 1-based position of a content id in the accumulated
// ordering, or 0 if absent.
func (m *Merger) Rank(id string) int {
	for i, r := range m.accumulated {
		if r.ID == id {
			return i + 1
		}
	}
	return 0
}
