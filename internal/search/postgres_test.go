package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/rank"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, int64, error) {
	return []float32{0.1, 0.2, 0.3}, 12, nil
}

func newMockClient(t *testing.T) (*PostgresClient, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	// Both kind queries run concurrently; their order is not fixed.
	mock.MatchExpectationsInOrder(false)

	c := NewPostgresClient(mock, fixedEmbedder{}, rank.DefaultConfig().Weights, PostgresConfig{})
	return c, mock
}

// Both kind queries take seven positional parameters; pgxmock requires
// an argument expectation to match calls made with arguments.
var anyArgs = []any{
	pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
	pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
}

var billColumns = []string{
	"id", "bill_number", "chamber", "status", "sponsor", "title", "summary", "category",
	"introduced_at", "last_action_at",
	"semantic_score", "keyword_score", "recency_score", "authority_score",
}

var actionColumns = []string{
	"id", "order_number", "administration", "status", "title", "summary", "category",
	"signed_at",
	"semantic_score", "keyword_score", "recency_score", "authority_score",
}

func billRow(rows *pgxmock.Rows, id string, semantic float64, at time.Time) *pgxmock.Rows {
	sponsor := "Rep. Doe"
	summary := "A bill about climate policy and emissions."
	category := "environment"
	return rows.AddRow(
		id, "HB "+id, "house", "introduced", &sponsor, "Bill "+id, &summary, &category,
		&at, &at,
		semantic, 0.5, 0.5, 0.5,
	)
}

func TestPostgresSearch_MergesBothKinds(t *testing.T) {
	c, mock := newMockClient(t)

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM bills").WithArgs(anyArgs...).
		WillReturnRows(billRow(pgxmock.NewRows(billColumns), "b1", 0.9, at))

	summary := "Order addressing grid security."
	category := "energy"
	mock.ExpectQuery("FROM executive_actions").WithArgs(anyArgs...).
		WillReturnRows(pgxmock.NewRows(actionColumns).AddRow(
			"e1", "14067", "current", "active", "Grid Security Order", &summary, &category,
			&at,
			0.8, 0.5, 0.5, 0.5,
		))

	page, err := c.Search(context.Background(), Request{Query: "climate", Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Results, 2)

	// Higher semantic score means higher composite with equal remaining
	// components, so the bill ranks first.
	assert.Equal(t, "b1", page.Results[0].ID)
	assert.Equal(t, model.KindBill, page.Results[0].Kind)
	assert.Equal(t, "e1", page.Results[1].ID)
	assert.Equal(t, model.KindExecutiveAction, page.Results[1].Kind)

	for _, r := range page.Results {
		assert.NoError(t, r.Validate())
		assert.InDelta(t, rank.DefaultConfig().Weights.Composite(r.Scores), r.Composite, 1e-9)
	}
	assert.Equal(t, int64(12), page.EmbeddingTokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearch_SingleKindQueriesOnce(t *testing.T) {
	c, mock := newMockClient(t)

	at := time.Now()
	mock.ExpectQuery("FROM bills").WithArgs(anyArgs...).
		WillReturnRows(billRow(pgxmock.NewRows(billColumns), "b1", 0.9, at))

	page, err := c.Search(context.Background(), Request{
		Query: "climate", Limit: 10, Kinds: []model.ContentKind{model.KindBill},
	})
	require.NoError(t, err)
	assert.Len(t, page.Results, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearch_ThresholdFiltersRows(t *testing.T) {
	c, mock := newMockClient(t)

	at := time.Now()
	rows := pgxmock.NewRows(billColumns)
	rows = billRow(rows, "strong", 1.0, at)
	rows = billRow(rows, "weak", 0.0, at)
	mock.ExpectQuery("FROM bills").WithArgs(anyArgs...).WillReturnRows(rows)
	mock.ExpectQuery("FROM executive_actions").WithArgs(anyArgs...).
		WillReturnRows(pgxmock.NewRows(actionColumns))

	page, err := c.Search(context.Background(), Request{Query: "climate", Limit: 10, Threshold: 0.6})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "strong", page.Results[0].ID)
}

func TestPostgresSearch_LimitTruncatesMergedPage(t *testing.T) {
	c, mock := newMockClient(t)

	at := time.Now()
	rows := pgxmock.NewRows(billColumns)
	for _, id := range []string{"a", "b", "c"} {
		rows = billRow(rows, id, 0.9, at)
	}
	mock.ExpectQuery("FROM bills").WithArgs(anyArgs...).WillReturnRows(rows)
	mock.ExpectQuery("FROM executive_actions").WithArgs(anyArgs...).
		WillReturnRows(pgxmock.NewRows(actionColumns))

	page, err := c.Search(context.Background(), Request{Query: "climate", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Results, 2)
}

func TestPostgresSearch_InvalidRequestSkipsBackend(t *testing.T) {
	c, mock := newMockClient(t)

	_, err := c.Search(context.Background(), Request{Query: "", Limit: 10})
	require.Error(t, err)

	re, ok := AsRetrievalError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonMalformedQuery, re.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearch_BackendErrorIsUnavailable(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery("FROM bills").WithArgs(anyArgs...).WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery("FROM executive_actions").WithArgs(anyArgs...).
		WillReturnRows(pgxmock.NewRows(actionColumns))

	_, err := c.Search(context.Background(), Request{Query: "climate", Limit: 10})
	require.Error(t, err)

	re, ok := AsRetrievalError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonUnavailable, re.Reason)
}

func TestPostgresSearch_TsqueryErrorIsMalformed(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery("FROM bills").WithArgs(anyArgs...).WillReturnError(errors.New("syntax error in tsquery"))
	mock.ExpectQuery("FROM executive_actions").WithArgs(anyArgs...).
		WillReturnRows(pgxmock.NewRows(actionColumns))

	_, err := c.Search(context.Background(), Request{Query: "\"broken", Limit: 10})
	require.Error(t, err)

	re, ok := AsRetrievalError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonMalformedQuery, re.Reason)
}

func TestClassifyBackendErr_ContextDeadline(t *testing.T) {
	err := classifyBackendErr(context.DeadlineExceeded)
	re, ok := AsRetrievalError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonTimeout, re.Reason)
}
