// Package rank holds the ranking contract: the component weights behind
// the composite relevance score and the loop's stopping/refinement
// parameters.
package rank

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/civicsignal/legisearch/internal/model"
)

// Weights are the four component weights of the composite score. They
// are configuration, not per-call state, and must sum to 1.0 within
// WeightTolerance.
type Weights struct {
	Semantic  float64 `yaml:"semantic"`
	Keyword   float64 `yaml:"keyword"`
	Recency   float64 `yaml:"recency"`
	Authority float64 `yaml:"authority"`
}

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 0.01

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Semantic + w.Keyword + w.Recency + w.Authority
}

// Validate checks that all weights are non-negative and sum to 1.0
// within tolerance.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"semantic":  w.Semantic,
		"keyword":   w.Keyword,
		"recency":   w.Recency,
		"authority": w.Authority,
	} {
		if v < 0 {
			return eris.Errorf("rank: weight %s must be >= 0, got %f", name, v)
		}
	}
	if d := math.Abs(w.Sum() - 1.0); d > WeightTolerance {
		return eris.Errorf("rank: weights sum to %f, want 1.0 +/- %.2f", w.Sum(), WeightTolerance)
	}
	return nil
}

// Composite computes the weighted sum of the component scores.
func (w Weights) Composite(s model.ComponentScores) float64 {
	return w.Semantic*s.Semantic +
		w.Keyword*s.Keyword +
		w.Recency*s.Recency +
		w.Authority*s.Authority
}

// StoppingConfig holds the loop termination parameters.
type StoppingConfig struct {
	TargetResults       int     `yaml:"target_results"`
	SufficientThreshold float64 `yaml:"sufficient_threshold"`
	TopK                int     `yaml:"top_k"`
	MaxIterations       int     `yaml:"max_iterations"`
}

// Config is the retrieval ranking configuration, loaded from
// retrieval.yaml.
type Config struct {
	Weights    Weights                    `yaml:"weights"`
	Stopping   StoppingConfig             `yaml:"stopping"`
	Strategies []model.RefinementStrategy `yaml:"strategies"`

	// MaxStrategyAttempts caps how often one refinement strategy may be
	// chosen within a session before it is skipped.
	MaxStrategyAttempts int `yaml:"max_strategy_attempts"`
}

// DefaultConfig returns the built-in ranking configuration, used when no
// retrieval.yaml is present.
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{
			Semantic:  0.45,
			Keyword:   0.25,
			Recency:   0.15,
			Authority: 0.15,
		},
		Stopping: StoppingConfig{
			TargetResults:       8,
			SufficientThreshold: 0.70,
			TopK:                3,
			MaxIterations:       20,
		},
		Strategies: []model.RefinementStrategy{
			model.StrategyExpandTerms,
			model.StrategyBroadenScope,
			model.StrategyAdjustFilters,
			model.StrategyChangeTimeframe,
			model.StrategyDeepenSearch,
		},
		MaxStrategyAttempts: 2,
	}
}

// LoadConfig reads ranking config from a YAML file. Fields omitted in
// the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rank: read config %s", path)
	}

	var wrapper struct {
		Retrieval Config `yaml:"retrieval"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "rank: parse config")
	}

	cfg := wrapper.Retrieval
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.Stopping.TargetResults == 0 {
		cfg.Stopping.TargetResults = def.Stopping.TargetResults
	}
	if cfg.Stopping.SufficientThreshold == 0 {
		cfg.Stopping.SufficientThreshold = def.Stopping.SufficientThreshold
	}
	if cfg.Stopping.TopK == 0 {
		cfg.Stopping.TopK = def.Stopping.TopK
	}
	if cfg.Stopping.MaxIterations == 0 {
		cfg.Stopping.MaxIterations = def.Stopping.MaxIterations
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = def.Strategies
	}
	if cfg.MaxStrategyAttempts == 0 {
		cfg.MaxStrategyAttempts = def.MaxStrategyAttempts
	}
}

// Validate checks the whole ranking configuration.
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.Stopping.TargetResults <= 0 {
		return eris.Errorf("rank: target_results must be > 0, got %d", c.Stopping.TargetResults)
	}
	if c.Stopping.SufficientThreshold < 0 || c.Stopping.SufficientThreshold > 1 {
		return eris.Errorf("rank: sufficient_threshold %f out of [0,1]", c.Stopping.SufficientThreshold)
	}
	if c.Stopping.TopK <= 0 {
		return eris.Errorf("rank: top_k must be > 0, got %d", c.Stopping.TopK)
	}
	if c.Stopping.MaxIterations <= 0 {
		return eris.Errorf("rank: max_iterations must be > 0, got %d", c.Stopping.MaxIterations)
	}
	for _, s := range c.Strategies {
		switch s {
		case model.StrategyExpandTerms, model.StrategyNarrowFocus, model.StrategyChangeTimeframe,
			model.StrategyAdjustFilters, model.StrategyBroadenScope, model.StrategyDeepenSearch:
		default:
			return eris.Errorf("rank: unknown refinement strategy %q", s)
		}
	}
	return nil
}
