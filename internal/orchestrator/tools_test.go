package orchestrator

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/legisearch/internal/model"
)

func TestParseSearchArgs_AppliesDefaults(t *testing.T) {
	req, err := parseSearchArgs(json.RawMessage(`{"query":"carbon tax"}`), 20, 0.25)

	require.NoError(t, err)
	assert.Equal(t, "carbon tax", req.Query)
	assert.Equal(t, 20, req.Limit)
	assert.Equal(t, 0.25, req.Threshold)
	assert.Empty(t, req.Kinds)
	assert.Nil(t, req.Filters.From)
	assert.Nil(t, req.Filters.To)
}

func TestParseSearchArgs_FullArguments(t *testing.T) {
	raw := json.RawMessage(`{
		"query": "clean energy",
		"kinds": ["bill", "executive_action"],
		"chambers": ["house"],
		"categories": ["energy"],
		"administrations": ["biden"],
		"date_from": "2023-01-01T00:00:00Z",
		"date_to": "2024-06-30T00:00:00Z"
	}`)

	req, err := parseSearchArgs(raw, 10, 0.3)

	require.NoError(t, err)
	assert.Equal(t, []model.ContentKind{model.KindBill, model.KindExecutiveAction}, req.Kinds)
	assert.Equal(t, []string{"house"}, req.Filters.Chambers)
	assert.Equal(t, []string{"energy"}, req.Filters.Categories)
	assert.Equal(t, []string{"biden"}, req.Filters.Administrations)
	require.NotNil(t, req.Filters.From)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), *req.Filters.From)
	require.NotNil(t, req.Filters.To)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), *req.Filters.To)
}

func TestParseSearchArgs_MalformedJSON(t *testing.T) {
	_, err := parseSearchArgs(json.RawMessage(`{"query":`), 20, 0.25)

	assert.Error(t, err)
}

func TestParseSearchArgs_BadDate(t *testing.T) {
	_, err := parseSearchArgs(json.RawMessage(`{"query":"q","date_from":"yesterday"}`), 20, 0.25)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "date_from")

	_, err = parseSearchArgs(json.RawMessage(`{"query":"q","date_to":"01/02/2023"}`), 20, 0.25)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "date_to")
}

func TestSearchTool_Schema(t *testing.T) {
	tool := searchTool()

	assert.Equal(t, SearchToolName, tool.Name)
	assert.Equal(t, []string{"query"}, tool.Required)
	for _, prop := range []string{"query", "kinds", "chambers", "categories", "administrations", "date_from", "date_to"} {
		assert.Contains(t, tool.Properties, prop)
	}
}

func TestFormatToolResult_TopTenOnly(t *testing.T) {
	all := make([]model.RankedResult, 14)
	for i := range all {
		all[i] = sampleBill("id-"+string(rune('a'+i)), 0.9)
	}

	out, err := formatToolResult(14, all[:3], all, "")

	require.NoError(t, err)
	var res toolResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 14, res.ResultCount)
	assert.Equal(t, 3, res.NewCount)
	assert.Equal(t, 14, res.Total)
	assert.Len(t, res.Results, 10)
	assert.Equal(t, "id-a", res.Results[0].ID)
	assert.Empty(t, res.Note)
}

func TestFormatToolResult_TruncatesExcerpt(t *testing.T) {
	r := sampleBill("b1", 0.8)
	r.Excerpt = strings.Repeat("x", 500)

	out, err := formatToolResult(1, nil, []model.RankedResult{r}, "")

	require.NoError(t, err)
	var res toolResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Results, 1)
	assert.Len(t, res.Results[0].Excerpt, 200)
	assert.Equal(t, "HB 1234", res.Results[0].Label)
	assert.Equal(t, 0.8, res.Results[0].Relevance)
}

func TestFormatToolResult_ExcerptCutOnRuneBoundary(t *testing.T) {
	r := sampleBill("b1", 0.8)
	// Byte 200 lands inside the two-byte "é"; the cut must back up.
	r.Excerpt = strings.Repeat("x", maxResultExcerpt-1) + "é" + strings.Repeat("y", 20)

	out, err := formatToolResult(1, nil, []model.RankedResult{r}, "")

	require.NoError(t, err)
	var res toolResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Results, 1)
	assert.True(t, utf8.ValidString(res.Results[0].Excerpt))
	assert.Len(t, res.Results[0].Excerpt, maxResultExcerpt-1)
}

func TestFormatToolResult_CarriesNote(t *testing.T) {
	out, err := formatToolResult(0, nil, nil, "retrieval complete: sufficient_results")

	require.NoError(t, err)
	var res toolResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "retrieval complete: sufficient_results", res.Note)
	assert.Zero(t, res.Total)
}
