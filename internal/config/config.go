package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port               int `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// RequestTimeout is the per-question wall-clock budget.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxModelTurns int     `yaml:"max_model_turns" mapstructure:"max_model_turns"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
}

// EmbeddingConfig holds the query embedding provider settings.
type EmbeddingConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
	CacheSize  int    `yaml:"cache_size" mapstructure:"cache_size"`
}

// SearchConfig configures the ranked search backend.
type SearchConfig struct {
	DatabaseURL      string  `yaml:"database_url" mapstructure:"database_url"`
	DefaultLimit     int     `yaml:"default_limit" mapstructure:"default_limit"`
	DefaultThreshold float64 `yaml:"default_threshold" mapstructure:"default_threshold"`
	RequestsPerSec   float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
}

// RetrievalConfig points at the ranking weight and stopping rule file.
// The file itself is parsed by the rank package.
type RetrievalConfig struct {
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`
}

// HistoryConfig configures session persistence.
type HistoryConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Embedding EmbeddingPricing        `yaml:"embedding" mapstructure:"embedding"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// EmbeddingPricing holds embedding token pricing.
type EmbeddingPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEGISEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_model_turns", 12)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.cache_size", 1024)
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.default_threshold", 0.0)
	v.SetDefault("search.requests_per_sec", 5.0)
	v.SetDefault("search.burst", 10)
	v.SetDefault("retrieval.config_path", "retrieval.yaml")
	v.SetDefault("history.path", "legisearch.db")
	v.SetDefault("history.enabled", true)
	v.SetDefault("pricing.embedding.per_mtok", 0.02)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
