package rank

import (
	"sort"

	"github.com/civicsignal/legisearch/internal/model"
)

// Sort orders results by composite score descending. Ties break on
// recency (more recent wins), then content id ascending, so any two
// runs over the same inputs produce the same sequence.
func Sort(results []model.RankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		ad, bd := a.EffectiveDate(), b.EffectiveDate()
		if !ad.Equal(bd) {
			return ad.After(bd)
		}
		return a.ID < b.ID
	})
}
