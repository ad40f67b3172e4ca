// Package citation converts ranked results into provenance-annotated
// citation records.
package citation

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/civicsignal/legisearch/internal/model"
)

// Excerpt sizing, in words and bytes.
const (
	windowWords   = 40
	maxExcerptLen = 280
	ellipsis      = "…"
)

// Builder derives citations from ranked results. Build is a pure
// function of its inputs; a Builder carries only configuration.
type Builder struct {
	method string
}

// NewBuilder creates a builder. method names the search method recorded
// on every citation (e.g. "ranked_hybrid").
func NewBuilder(method string) *Builder {
	return &Builder{method: method}
}

// Build produces the citation for one deduplicated result. Calling
// twice with identical inputs yields byte-identical output; the
// emission timestamp is an input for that reason.
func (b *Builder) Build(result model.RankedResult, query string, iteration, rankPos int, at time.Time) model.Citation {
	excerpt, matches := bestExcerpt(result.Excerpt, query)
	return model.Citation{
		ContentID: result.ID,
		Kind:      result.Kind,
		Title:     result.Title,
		Label:     result.Label(),
		Excerpt:   excerpt,
		Query:     query,
		Method:    b.method,
		Rank:      rankPos,
		Iteration: iteration,
		Indicators: model.RelevanceIndicators{
			Semantic:    result.Scores.Semantic,
			Keyword:     result.Scores.Keyword,
			Recency:     result.Scores.Recency,
			Authority:   result.Scores.Authority,
			Composite:   result.Composite,
			TermMatches: matches,
		},
		Timestamp: at.UTC(),
	}
}

// bestExcerpt picks the contiguous word window with the highest count of
// exact query-term matches, case- and accent-insensitive. Ties break on
// earliest position. The window is truncated to maxExcerptLen with an
// ellipsis marker when it does not cover the whole source text.
func bestExcerpt(text, query string) (string, int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0
	}

	words := strings.Fields(text)
	terms := foldedTerms(query)

	if len(words) <= windowWords {
		return clamp(text), countMatches(words, terms)
	}

	bestStart, bestCount := 0, -1
	for start := 0; start+windowWords <= len(words); start++ {
		count := countMatches(words[start:start+windowWords], terms)
		if count > bestCount {
			bestStart, bestCount = start, count
		}
	}

	window := strings.Join(words[bestStart:bestStart+windowWords], " ")
	out := window
	if len(out) > maxExcerptLen {
		out = strings.TrimSpace(truncateRunes(out, maxExcerptLen))
	}
	if bestStart > 0 {
		out = ellipsis + out
	}
	if bestStart+windowWords < len(words) || len(window) > maxExcerptLen {
		out += ellipsis
	}
	return out, bestCount
}

func clamp(text string) string {
	if len(text) <= maxExcerptLen {
		return text
	}
	return strings.TrimSpace(truncateRunes(text, maxExcerptLen)) + ellipsis
}

// truncateRunes cuts s to at most limit bytes without splitting a
// multi-byte rune at the boundary.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func countMatches(words []string, terms map[string]struct{}) int {
	n := 0
	for _, w := range words {
		if _, ok := terms[fold(w)]; ok {
			n++
		}
	}
	return n
}

// foldedTerms splits the query into folded terms, dropping one-letter
// tokens that would match noise.
func foldedTerms(query string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, t := range strings.Fields(query) {
		f := fold(t)
		if len(f) > 1 {
			terms[f] = struct{}{}
		}
	}
	return terms
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases, strips diacritics, and trims punctuation so "Sénate,"
// matches "senate".
func fold(s string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.TrimFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
