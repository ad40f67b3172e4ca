package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaude_KnownModel(t *testing.T) {
	c := NewCalculator(DefaultRates())

	// 1M input at $3.00 + 0.5M output at $15.00.
	got := c.Claude("claude-sonnet-4-5-20250929", 1_000_000, 500_000, 0, 0)
	assert.InDelta(t, 3.00+7.50, got, 1e-9)
}

func TestClaude_CacheMultipliers(t *testing.T) {
	c := NewCalculator(DefaultRates())

	// Cache writes bill at 1.25x input, reads at 0.1x input.
	got := c.Claude("claude-sonnet-4-5-20250929", 0, 0, 1_000_000, 1_000_000)
	assert.InDelta(t, 3.00*1.25+3.00*0.1, got, 1e-9)
}

func TestClaude_UnknownModelIsFree(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.Zero(t, c.Claude("mystery-model", 1_000_000, 1_000_000, 0, 0))
}

func TestEmbedding(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.InDelta(t, 0.02, c.Embedding(1_000_000), 1e-9)
	assert.InDelta(t, 0.00002, c.Embedding(1_000), 1e-9)
}

func TestCustomRates(t *testing.T) {
	rates := Rates{
		Anthropic: map[string]ModelRate{
			"test-model": {Input: 1.00, Output: 2.00},
		},
	}
	c := NewCalculator(rates)
	assert.InDelta(t, 1.00+2.00, c.Claude("test-model", 1_000_000, 1_000_000, 0, 0), 1e-9)
}
