package search

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Embedder produces a query embedding for the semantic-similarity
// component, reporting the provider tokens the call consumed so spend
// reaches session accounting. Embedding generation for stored content
// is out of scope; only query-side vectors are needed here.
type Embedder interface {
	Embed(ctx context.Context, text string) (vec []float32, tokens int64, err error)
}

// OpenAIEmbedder implements Embedder against an OpenAI-compatible
// embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// EmbedderConfig holds the embedding provider settings.
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// NewOpenAIEmbedder creates an embedding client.
func NewOpenAIEmbedder(cfg EmbedderConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}
}

// Embed returns the embedding vector for the given text and the token
// count billed for it.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, int64, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "embed: create embeddings")
	}
	if len(resp.Data) == 0 {
		return nil, 0, eris.New("embed: empty embedding response")
	}
	return resp.Data[0].Embedding, int64(resp.Usage.TotalTokens), nil
}

// CachedEmbedder wraps an Embedder with an in-process LRU cache keyed by
// the exact query text. Refinement strategies reuse query fragments
// across iterations, so hits are common within a session.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder creates a caching wrapper with the given capacity.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, eris.Wrap(err, "embed: create cache")
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed serves hits from the cache at zero token cost; only misses
// reach the provider and bill tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, int64, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, 0, nil
	}
	vec, tokens, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, 0, err
	}
	c.cache.Add(text, vec)
	zap.L().Debug("embedding cached", zap.Int("cache_len", c.cache.Len()))
	return vec, tokens, nil
}
