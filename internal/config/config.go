// Package config loads application configuration from file and environment
// and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/precon-cli/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Passes    PassesConfig    `yaml:"passes" mapstructure:"passes"`
	Consensus ConsensusConfig `yaml:"consensus" mapstructure:"consensus"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	OpusModel   string `yaml:"opus_model" mapstructure:"opus_model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	RPS         int    `yaml:"rps" mapstructure:"rps"`
	Burst       int    `yaml:"burst" mapstructure:"burst"`
}

// BatchConfig bounds the extraction batch plan.
type BatchConfig struct {
	MaxTokensPerBatch int      `yaml:"max_tokens_per_batch" mapstructure:"max_tokens_per_batch"`
	MinTokensPerBatch int      `yaml:"min_tokens_per_batch" mapstructure:"min_tokens_per_batch"`
	MaxPagesPerBatch  int      `yaml:"max_pages_per_batch" mapstructure:"max_pages_per_batch"`
	FocusTrades       []string `yaml:"focus_trades" mapstructure:"focus_trades"`
	SkipTrades        []string `yaml:"skip_trades" mapstructure:"skip_trades"`
	Concurrency       int      `yaml:"concurrency" mapstructure:"concurrency"`
}

// PassesConfig configures pass execution.
type PassesConfig struct {
	SchemaVersion string `yaml:"schema_version" mapstructure:"schema_version"`
}

// ConsensusConfig configures cross-run reconciliation.
type ConsensusConfig struct {
	// Families maps backend-id prefixes to provider family labels.
	Families map[string]string `yaml:"families" mapstructure:"families"`
}

// PricingConfig holds per-model token pricing (USD per million tokens).
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds one model's rates.
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// CacheConfig configures the pass cache.
type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // sqlite file; empty = in-memory
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "precon.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.opus_model", "claude-opus-4-6")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.rps", 2)
	v.SetDefault("anthropic.burst", 4)
	v.SetDefault("batch.max_tokens_per_batch", 120000)
	v.SetDefault("batch.min_tokens_per_batch", 40000)
	v.SetDefault("batch.max_pages_per_batch", 60)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("passes.schema_version", "v1")
	v.SetDefault("cache.path", "pass_cache.db")
	v.SetDefault("consensus.families", map[string]string{
		"claude": "anthropic",
		"gpt":    "openai",
		"o1":     "openai",
		"o3":     "openai",
		"gemini": "google",
	})

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

// Validate checks that the configuration is usable for the given mode.
// Modes: "extract" and "serve" need backend credentials and sane batch
// bounds; "estimate" needs only the batch bounds.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkBatch := func() {
		if c.Batch.MaxTokensPerBatch <= 0 {
			problems = append(problems, "batch.max_tokens_per_batch must be > 0")
		}
		if c.Batch.MaxPagesPerBatch <= 0 {
			problems = append(problems, "batch.max_pages_per_batch must be > 0")
		}
		if c.Batch.MinTokensPerBatch < 0 || c.Batch.MinTokensPerBatch >= c.Batch.MaxTokensPerBatch {
			problems = append(problems, "batch.min_tokens_per_batch must be in [0, max_tokens_per_batch)")
		}
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
			problems = append(problems, "batch.concurrency must be between 1 and 32")
		}
	}

	switch mode {
	case "extract":
		checkBatch()
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "serve":
		checkBatch()
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "estimate":
		checkBatch()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Rates converts configured pricing into calculator rates, falling back to
// the built-in table when no pricing is configured.
func (c *Config) Rates() cost.Rates {
	if len(c.Pricing.Models) == 0 {
		return cost.DefaultRates()
	}
	rates := make(cost.Rates, len(c.Pricing.Models))
	for model, p := range c.Pricing.Models {
		rates[model] = cost.Rate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return rates
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
