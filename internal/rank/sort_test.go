package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/civicsignal/legisearch/internal/model"
)

func bill(id string, composite float64, lastAction time.Time) model.RankedResult {
	return model.RankedResult{
		ID:        id,
		Kind:      model.KindBill,
		Composite: composite,
		Bill:      &model.BillDetail{BillNumber: id, LastActionAt: &lastAction},
	}
}

func TestSort_CompositeDescending(t *testing.T) {
	now := time.Now()
	results := []model.RankedResult{
		bill("a", 0.3, now),
		bill("b", 0.9, now),
		bill("c", 0.6, now),
	}

	Sort(results)

	assert.Equal(t, []string{"b", "c", "a"}, ids(results))
}

func TestSort_RecencyBreaksCompositeTie(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	results := []model.RankedResult{
		bill("old", 0.5, older),
		bill("new", 0.5, newer),
	}

	Sort(results)

	assert.Equal(t, []string{"new", "old"}, ids(results))
}

func TestSort_IDBreaksFullTie(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	results := []model.RankedResult{
		bill("zeta", 0.5, at),
		bill("alpha", 0.5, at),
	}

	Sort(results)

	assert.Equal(t, []string{"alpha", "zeta"}, ids(results))
}

func TestSort_MissingDateSortsAfterDated(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	undated := model.RankedResult{
		ID:        "undated",
		Kind:      model.KindBill,
		Composite: 0.5,
		Bill:      &model.BillDetail{BillNumber: "undated"},
	}
	results := []model.RankedResult{undated, bill("dated", 0.5, at)}

	Sort(results)

	assert.Equal(t, []string{"dated", "undated"}, ids(results))
}

func ids(results []model.RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
