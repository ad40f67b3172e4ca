package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/rank"
)

// Pool is the subset of pgxpool.Pool used by the client. pgxmock's pool
// satisfies it in tests.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresClient implements Client against a Postgres backend holding
// bill and executive-action content with precomputed embeddings.
type PostgresClient struct {
	pool     Pool
	embedder Embedder
	weights  rank.Weights
	limiter  *rate.Limiter
}

// PostgresConfig tunes the client.
type PostgresConfig struct {
	// RatePerSecond caps backend queries across all sessions. Zero
	// disables limiting.
	RatePerSecond float64
	RateBurst     int
}

// NewPostgresClient wraps an existing pool. The weights are the
// configured composite-score weights; the backend returns component
// scores and the adapter computes the composite from them.
func NewPostgresClient(pool Pool, embedder Embedder, weights rank.Weights, cfg PostgresConfig) *PostgresClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &PostgresClient{
		pool:     pool,
		embedder: embedder,
		weights:  weights,
		limiter:  limiter,
	}
}

// Connect opens a pgx pool against the given connection string.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "search: parse database url")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "search: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "search: ping")
	}
	return pool, nil
}

// billSearchSQL scores bills on all four components. Semantic similarity
// uses cosine distance against the stored embedding; keyword relevance
// is ts_rank_cd squashed into [0,1]; recency decays exponentially with a
// one-year half-life from the last action; authority is a stored [0,1]
// column maintained by ingestion.
const billSearchSQL = `
SELECT id, bill_number, chamber, status, sponsor, title, summary, category,
       introduced_at, last_action_at,
       GREATEST(0, LEAST(1, 1 - (embedding <=> $1))) AS semantic_score,
       LEAST(1, ts_rank_cd(search_vector, websearch_to_tsquery('english', $2)) / 0.5) AS keyword_score,
       GREATEST(0, LEAST(1, exp(-ln(2) * EXTRACT(EPOCH FROM (now() - COALESCE(last_action_at, introduced_at))) / 31536000))) AS recency_score,
       authority_score
FROM bills
WHERE ($3::text[] IS NULL OR chamber = ANY($3))
  AND ($4::text[] IS NULL OR category = ANY($4))
  AND ($5::timestamptz IS NULL OR COALESCE(last_action_at, introduced_at) >= $5)
  AND ($6::timestamptz IS NULL OR COALESCE(last_action_at, introduced_at) <= $6)
ORDER BY embedding <=> $1
LIMIT $7`

// actionSearchSQL is the executive-action counterpart of billSearchSQL.
const actionSearchSQL = `
SELECT id, order_number, administration, status, title, summary, category,
       signed_at,
       GREATEST(0, LEAST(1, 1 - (embedding <=> $1))) AS semantic_score,
       LEAST(1, ts_rank_cd(search_vector, websearch_to_tsquery('english', $2)) / 0.5) AS keyword_score,
       GREATEST(0, LEAST(1, exp(-ln(2) * EXTRACT(EPOCH FROM (now() - signed_at)) / 31536000))) AS recency_score,
       authority_score
FROM executive_actions
WHERE ($3::text[] IS NULL OR administration = ANY($3))
  AND ($4::text[] IS NULL OR category = ANY($4))
  AND ($5::timestamptz IS NULL OR signed_at >= $5)
  AND ($6::timestamptz IS NULL OR signed_at <= $6)
ORDER BY embedding <=> $1
LIMIT $7`

// Search issues one ranked-search call: embed the query once, fan out
// one backend query per requested content kind, and return a single
// deduplicated page filtered by the relevance threshold.
func (c *PostgresClient) Search(ctx context.Context, req Request) (*Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &RetrievalError{Reason: ReasonTimeout, Err: err}
	}

	vec, embedTokens, err := c.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, classifyBackendErr(eris.Wrap(err, "search: embed query"))
	}
	qvec := pgvector.NewVector(vec)

	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = []model.ContentKind{model.KindBill, model.KindExecutiveAction}
	}

	start := time.Now()
	pages := make([][]model.RankedResult, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			var (
				results []model.RankedResult
				err     error
			)
			switch kind {
			case model.KindBill:
				results, err = c.searchBills(gctx, qvec, req)
			case model.KindExecutiveAction:
				results, err = c.searchActions(gctx, qvec, req)
			}
			if err != nil {
				return err
			}
			pages[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classifyBackendErr(err)
	}

	page := c.assemble(pages, req)
	page.EmbeddingTokens = embedTokens

	zap.L().Debug("ranked search complete",
		zap.String("query", req.Query),
		zap.Int("kinds", len(kinds)),
		zap.Int("results", len(page.Results)),
		zap.Duration("duration", time.Since(start)),
	)
	return page, nil
}

// assemble merges per-kind rows into one page: dedup by content id,
// composite computed from the configured weights, ordered by composite
// descending with recency then id as tie-breaks, truncated to the
// request limit after dropping sub-threshold rows.
func (c *PostgresClient) assemble(pages [][]model.RankedResult, req Request) *Page {
	seen := make(map[string]struct{})
	merged := make([]model.RankedResult, 0, req.Limit)
	for _, results := range pages {
		for _, r := range results {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			r.Composite = c.weights.Composite(r.Scores)
			if r.Composite < req.Threshold {
				continue
			}
			merged = append(merged, r)
		}
	}

	rank.Sort(merged)
	if len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}
	return &Page{Results: merged}
}

func (c *PostgresClient) searchBills(ctx context.Context, qvec pgvector.Vector, req Request) ([]model.RankedResult, error) {
	rows, err := c.pool.Query(ctx, billSearchSQL,
		qvec, req.Query,
		textArray(req.Filters.Chambers), textArray(req.Filters.Categories),
		req.Filters.From, req.Filters.To,
		req.Limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "search: query bills")
	}
	defer rows.Close()

	var out []model.RankedResult
	for rows.Next() {
		var (
			r        model.RankedResult
			detail   model.BillDetail
			sponsor  *string
			summary  *string
			category *string
		)
		if err := rows.Scan(
			&r.ID, &detail.BillNumber, &detail.Chamber, &detail.Status, &sponsor,
			&r.Title, &summary, &category,
			&detail.IntroducedAt, &detail.LastActionAt,
			&r.Scores.Semantic, &r.Scores.Keyword, &r.Scores.Recency, &r.Scores.Authority,
		); err != nil {
			return nil, eris.Wrap(err, "search: scan bill row")
		}
		if sponsor != nil {
			detail.Sponsor = *sponsor
		}
		if summary != nil {
			r.Excerpt = *summary
		}
		if category != nil {
			r.Category = *category
		}
		r.Kind = model.KindBill
		r.Bill = &detail
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "search: iterate bill rows")
	}
	return out, nil
}

func (c *PostgresClient) searchActions(ctx context.Context, qvec pgvector.Vector, req Request) ([]model.RankedResult, error) {
	rows, err := c.pool.Query(ctx, actionSearchSQL,
		qvec, req.Query,
		textArray(req.Filters.Administrations), textArray(req.Filters.Categories),
		req.Filters.From, req.Filters.To,
		req.Limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "search: query executive actions")
	}
	defer rows.Close()

	var out []model.RankedResult
	for rows.Next() {
		var (
			r        model.RankedResult
			detail   model.ExecutiveActionDetail
			summary  *string
			category *string
		)
		if err := rows.Scan(
			&r.ID, &detail.OrderNumber, &detail.Administration, &detail.Status,
			&r.Title, &summary, &category,
			&detail.SignedAt,
			&r.Scores.Semantic, &r.Scores.Keyword, &r.Scores.Recency, &r.Scores.Authority,
		); err != nil {
			return nil, eris.Wrap(err, "search: scan executive action row")
		}
		if summary != nil {
			r.Excerpt = *summary
		}
		if category != nil {
			r.Category = *category
		}
		r.Kind = model.KindExecutiveAction
		r.ExecutiveAction = &detail
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "search: iterate executive action rows")
	}
	return out, nil
}

// Ping verifies backend connectivity, for health checks.
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// textArray converts a string slice to a nullable text[] parameter.
func textArray(vals []string) any {
	if len(vals) == 0 {
		return nil
	}
	return vals
}

// classifyBackendErr maps a backend failure onto the RetrievalError
// taxonomy. Context deadline and cancellation map to timeout; everything
// else is unavailable.
func classifyBackendErr(err error) error {
	if _, ok := AsRetrievalError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &RetrievalError{Reason: ReasonTimeout, Err: err}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "syntax error") || strings.Contains(msg, "tsquery") {
		return &RetrievalError{Reason: ReasonMalformedQuery, Err: err}
	}
	return &RetrievalError{Reason: ReasonUnavailable, Err: err}
}

var _ Client = (*PostgresClient)(nil)
