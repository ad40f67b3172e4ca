package retrieve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/legisearch/internal/model"
)

func result(id string, composite float64) model.RankedResult {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return model.RankedResult{
		ID:        id,
		Kind:      model.KindBill,
		Composite: composite,
		Bill:      &model.BillDetail{BillNumber: id, LastActionAt: &at},
	}
}

func TestMerger_FirstPage(t *testing.T) {
	m := NewMerger()

	all, fresh := m.Merge([]model.RankedResult{result("a", 0.5), result("b", 0.9)})

	assert.Equal(t, []string{"b", "a"}, resultIDs(all))
	assert.Equal(t, []string{"b", "a"}, resultIDs(fresh))
	assert.Equal(t, 2, m.Total())
}

func TestMerger_DeduplicatesAcrossPages(t *testing.T) {
	m := NewMerger()
	m.Merge([]model.RankedResult{result("a", 0.5), result("b", 0.9)})

	all, fresh := m.Merge([]model.RankedResult{result("b", 0.9), result("c", 0.7)})

	assert.Equal(t, []string{"c"}, resultIDs(fresh))
	assert.Equal(t, []string{"b", "c", "a"}, resultIDs(all))
	assert.Equal(t, 3, m.Total())
}

func TestMerger_FirstOccurrenceWins(t *testing.T) {
	m := NewMerger()
	m.Merge([]model.RankedResult{result("a", 0.5)})

	// Same id arriving again with a different score is ignored.
	all, fresh := m.Merge([]model.RankedResult{result("a", 0.95)})

	assert.Empty(t, fresh)
	require.Len(t, all, 1)
	assert.Equal(t, 0.5, all[0].Composite)
}

func TestMerger_EmptyPage(t *testing.T) {
	m := NewMerger()
	m.Merge([]model.RankedResult{result("a", 0.5)})

	all, fresh := m.Merge(nil)

	assert.Empty(t, fresh)
	assert.Len(t, all, 1)
}

func TestMerger_Rank(t *testing.T) {
	m := NewMerger()
	m.Merge([]model.RankedResult{result("a", 0.5), result("b", 0.9), result("c", 0.7)})

	assert.Equal(t, 1, m.Rank("b"))
	assert.Equal(t, 2, m.Rank("c"))
	assert.Equal(t, 3, m.Rank("a"))
	assert.Equal(t, 0, m.Rank("missing"))
}

func TestMerger_ResultsReturnsCopy(t *testing.T) {
	m := NewMerger()
	m.Merge([]model.RankedResult{result("a", 0.5)})

	got := m.Results()
	got[0].ID = "mutated"

	assert.Equal(t, "a", m.Results()[0].ID)
}

func resultIDs(results []model.RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
