package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ExtractConfig configures content reduction and the extraction cache.
type ExtractConfig struct {
	MaxChunkTokens   int `yaml:"max_chunk_tokens" mapstructure:"max_chunk_tokens"`
	MaxContentChars  int `yaml:"max_content_chars" mapstructure:"max_content_chars"`
	CacheTTLSecs     int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CacheSampleChars int `yaml:"cache_sample_chars" mapstructure:"cache_sample_chars"`
}

// RetryConfig configures backend retry behavior.
type RetryConfig struct {
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSecs float64 `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	MaxBackoffSecs     float64 `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
}

// PipelineConfig configures batch processing.
type PipelineConfig struct {
	MaxConcurrent   int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MinContentChars int `yaml:"min_content_chars" mapstructure:"min_content_chars"`
	BatchLimit      int `yaml:"batch_limit" mapstructure:"batch_limit"`
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
	v.SetEnvPrefix("TRADESCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "assess.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.1)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("anthropic.rate_per_sec", 2.0)
	v.SetDefault("extract.max_chunk_tokens", 8000)
	v.SetDefault("extract.max_content_chars", 50000)
	v.SetDefault("extract.cache_ttl_secs", 3600)
	v.SetDefault("extract.cache_sample_chars", 1000)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_secs", 1.0)
	v.SetDefault("retry.max_backoff_secs", 10.0)
	v.SetDefault("pipeline.max_concurrent", 4)
	v.SetDefault("pipeline.min_content_chars", 1000)
	v.SetDefault("pipeline.batch_limit", 50)

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

// Validate checks that required settings are present for the given mode.
// Modes: "process" (batch LLM processing), "migrate" (schema only).
func (c *Config) Validate(mode string) error {
	var missing []string

	checkBounds := func() {
		if c.Pipeline.MaxConcurrent < 1 || c.Pipeline.MaxConcurrent > 50 {
			missing = append(missing, "pipeline.max_concurrent must be between 1 and 50")
		}
		if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
			missing = append(missing, "anthropic.temperature must be in [0,1]")
		}
		if c.Retry.MaxAttempts < 1 {
			missing = append(missing, "retry.max_attempts must be >= 1")
		}
	}

	switch mode {
	case "process":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		checkBounds()
	case "migrate":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
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
