package retrieve

import (
	"strings"
	"time"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/search"
)

// synonyms maps common legislative query terms to expansion terms used
// by the expand_terms strategy. Deterministic: the expansion of a query
// depends only on its terms.
var synonyms = map[string][]string{
	"climate":        {"environmental", "emissions"},
	"healthcare":     {"health", "medicaid", "medicare"},
	"immigration":    {"visa", "border", "asylum"},
	"tax":            {"revenue", "taxation"},
	"education":      {"school", "student"},
	"energy":         {"power", "renewable"},
	"labor":          {"employment", "workforce"},
	"housing":        {"rental", "mortgage"},
	"infrastructure": {"transportation", "broadband"},
	"privacy":        {"data protection", "surveillance"},
}

// Refine derives the next search request from the previous one by
// applying the chosen strategy. The base request is not mutated.
func Refine(strategy model.RefinementStrategy, base search.Request, accumulated []model.RankedResult) search.Request {
	next := base

	switch strategy {
	case model.StrategyExpandTerms:
		next.Query = expandTerms(base.Query)

	case model.StrategyBroadenScope:
		next.Kinds = nil
		next.Filters.Categories = nil
		next.Threshold = lowerThreshold(base.Threshold, 0.10)

	case model.StrategyAdjustFilters:
		next.Filters.Chambers = nil
		next.Filters.Administrations = nil

	case model.StrategyChangeTimeframe:
		next.Filters.From = widenFrom(base.Filters.From)
		next.Filters.To = nil

	case model.StrategyDeepenSearch:
		next.Limit = search.MaxLimit
		next.Threshold = lowerThreshold(base.Threshold, 0.05)

	case model.StrategyNarrowFocus:
		if cat := dominantCategory(accumulated); cat != "" {
			next.Filters.Categories = []string{cat}
		}
	}

	return next
}

// expandTerms appends synonym terms for any known query term not
// already present, preserving the original term order.
func expandTerms(query string) string {
	lower := strings.ToLower(query)
	terms := strings.Fields(lower)
	out := query
	for _, t := range terms {
		for _, syn := range synonyms[t] {
			if !strings.Contains(lower, syn) {
				out += " " + syn
				lower += " " + syn
			}
		}
	}
	return out
}

// widenFrom pushes the lower date bound back two years, or clears an
// unset bound entirely.
func widenFrom(from *time.Time) *time.Time {
	if from == nil {
		return nil
	}
	widened := from.AddDate(-2, 0, 0)
	return &widened
}

func lowerThreshold(t, by float64) float64 {
	t -= by
	if t < 0 {
		return 0
	}
	return t
}

// dominantCategory returns the most frequent non-empty category among
// accumulated results, ties broken lexicographically for determinism.
func dominantCategory(results []model.RankedResult) string {
	counts := make(map[string]int)
	for _, r := range results {
		if r.Category != "" {
			counts[r.Category]++
		}
	}
	best := ""
	bestN := 0
	for cat, n := range counts {
		if n > bestN || (n == bestN && best != "" && cat < best) {
			best = cat
			bestN = n
		}
	}
	return best
}
