package orchestrator

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/search"
	"github.com/civicsignal/legisearch/pkg/anthropic"
)

// SearchToolName is the ranked-search capability exposed to the model.
const SearchToolName = "search_legislation"

// maxResultExcerpt caps the per-result excerpt fed back to the model.
const maxResultExcerpt = 200

// searchTool declares the ranked-search capability schema.
func searchTool() anthropic.Tool {
	return anthropic.Tool{
		Name: SearchToolName,
		Description: "Search bills and executive actions by relevance. " +
			"Returns ranked results with titles and excerpts. Call again " +
			"with a refined query if the results do not answer the question.",
		Properties: map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Free-text search query",
			},
			"kinds": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string", "enum": []string{"bill", "executive_action"}},
				"description": "Restrict to specific content kinds; omit for all",
			},
			"chambers": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Restrict bills to chambers, e.g. house, senate",
			},
			"categories": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Restrict to policy categories",
			},
			"administrations": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Restrict executive actions to administrations",
			},
			"date_from": map[string]any{
				"type":        "string",
				"description": "Earliest date, RFC 3339 (e.g. 2023-01-01T00:00:00Z)",
			},
			"date_to": map[string]any{
				"type":        "string",
				"description": "Latest date, RFC 3339",
			},
		},
		Required: []string{"query"},
	}
}

// searchArgs are the model-supplied arguments of one search call.
type searchArgs struct {
	Query           string   `json:"query"`
	Kinds           []string `json:"kinds,omitempty"`
	Chambers        []string `json:"chambers,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Administrations []string `json:"administrations,omitempty"`
	DateFrom        string   `json:"date_from,omitempty"`
	DateTo          string   `json:"date_to,omitempty"`
}

// parseSearchArgs decodes and validates model-supplied tool input into a
// backend request, applying the configured defaults.
func parseSearchArgs(raw json.RawMessage, defaultLimit int, defaultThreshold float64) (search.Request, error) {
	var args searchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return search.Request{}, eris.Wrap(err, "orchestrator: decode search arguments")
	}

	req := search.Request{
		Query:     args.Query,
		Threshold: defaultThreshold,
		Limit:     defaultLimit,
		Filters: search.Filters{
			Chambers:        args.Chambers,
			Categories:      args.Categories,
			Administrations: args.Administrations,
		},
	}
	for _, k := range args.Kinds {
		req.Kinds = append(req.Kinds, model.ContentKind(k))
	}
	if args.DateFrom != "" {
		t, err := time.Parse(time.RFC3339, args.DateFrom)
		if err != nil {
			return search.Request{}, eris.Wrapf(err, "orchestrator: parse date_from %q", args.DateFrom)
		}
		req.Filters.From = &t
	}
	if args.DateTo != "" {
		t, err := time.Parse(time.RFC3339, args.DateTo)
		if err != nil {
			return search.Request{}, eris.Wrapf(err, "orchestrator: parse date_to %q", args.DateTo)
		}
		req.Filters.To = &t
	}
	return req, nil
}

// toolResult is the payload fed back to the model after a search call.
type toolResult struct {
	ResultCount int              `json:"result_count"`
	NewCount    int              `json:"new_count"`
	Total       int              `json:"total"`
	Results     []toolResultItem `json:"results"`
	Note        string           `json:"note,omitempty"`
}

type toolResultItem struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Title     string  `json:"title"`
	Excerpt   string  `json:"excerpt,omitempty"`
	Relevance float64 `json:"relevance"`
}

// formatToolResult renders the merged state for the model: the round's
// counts plus the current top of the accumulated ordering.
func formatToolResult(pageCount int, fresh, all []model.RankedResult, note string) (string, error) {
	top := all
	if len(top) > 10 {
		top = top[:10]
	}
	res := toolResult{
		ResultCount: pageCount,
		NewCount:    len(fresh),
		Total:       len(all),
		Note:        note,
	}
	for _, r := range top {
		item := toolResultItem{
			ID:        r.ID,
			Label:     r.Label(),
			Title:     r.Title,
			Relevance: r.Composite,
		}
		item.Excerpt = r.Excerpt
		if len(item.Excerpt) > maxResultExcerpt {
			cut := maxResultExcerpt
			for cut > 0 && !utf8.RuneStart(item.Excerpt[cut]) {
				cut--
			}
			item.Excerpt = item.Excerpt[:cut]
		}
		res.Results = append(res.Results, item)
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", eris.Wrap(err, "orchestrator: marshal tool result")
	}
	return string(out), nil
}
