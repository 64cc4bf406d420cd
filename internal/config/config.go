// Package config loads Engram's runtime configuration. Precedence, highest
// first: environment variables, an optional YAML file named by ENGRAM_CONFIG,
// then built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by Load.
const (
	EnvProvider         = "ENGRAM_EMBEDDING_PROVIDER"
	EnvModel            = "ENGRAM_EMBEDDING_MODEL"
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvOllamaHost       = "OLLAMA_HOST"
	EnvDBPath           = "ENGRAM_DB_PATH"
	EnvCacheSize        = "ENGRAM_CACHE_SIZE"
	EnvBatchDelayMS     = "ENGRAM_BATCH_DELAY_MS"
	EnvBatchConcurrency = "ENGRAM_BATCH_CONCURRENCY"
	EnvLogLevel         = "ENGRAM_LOG_LEVEL"
	EnvConfigPath       = "ENGRAM_CONFIG"
)

// Config is the assembled runtime configuration.
type Config struct {
	Embedding   Embedding
	Retry       Retry
	Health      Health
	Storage     Storage
	Search      Search
	Maintenance Maintenance
	Log         Log
}

// Embedding configures provider selection, caching, and batching.
type Embedding struct {
	Provider         string // explicit override: gemini|openai|ollama|offline
	Model            string // per-provider model override
	GeminiAPIKey     string
	OpenAIAPIKey     string
	OllamaHost       string
	CacheSize        int
	BatchDelay       time.Duration // pause between concurrent batch groups
	BatchConcurrency int
	MaxChunkTokens   int
}

// Retry bounds a single provider operation.
type Retry struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	Jitter          float64 // fraction of the delay, e.g. 0.10
	AttemptTimeout  time.Duration
	ValidateTimeout time.Duration
}

// Health configures the provider health monitor.
type Health struct {
	WindowSize     int
	UnhealthyBelow float64
	HealthyAbove   float64
}

// Storage locates the SQLite database.
type Storage struct {
	Path string
}

// Search tunes ranking behavior.
type Search struct {
	SimilarWarnThreshold float64 // cosine similarity that triggers a duplicate warning
	DefaultLimit         int
}

// Maintenance holds cron schedules for background jobs.
type Maintenance struct {
	ProbeSchedule string // provider recovery probe
	SweepSchedule string // state sweep
}

// Log configures the process logger.
type Log struct {
	Level  string
	Format string // console or json
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Embedding: Embedding{
			CacheSize:        1000,
			BatchDelay:       100 * time.Millisecond,
			BatchConcurrency: 4,
			MaxChunkTokens:   2048,
		},
		Retry: Retry{
			MaxAttempts:     3,
			BaseDelay:       1000 * time.Millisecond,
			MaxDelay:        10000 * time.Millisecond,
			Multiplier:      2.0,
			Jitter:          0.10,
			AttemptTimeout:  30 * time.Second,
			ValidateTimeout: 5 * time.Second,
		},
		Health: Health{
			WindowSize:     100,
			UnhealthyBelow: 0.5,
			HealthyAbove:   0.8,
		},
		Storage: Storage{
			Path: defaultDBPath(),
		},
		Search: Search{
			SimilarWarnThreshold: 0.95,
			DefaultLimit:         10,
		},
		Maintenance: Maintenance{
			ProbeSchedule: "@every 5m",
			SweepSchedule: "@daily",
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load assembles the configuration: defaults, then the YAML file named by
// ENGRAM_CONFIG (if set), then environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFile assembles the configuration from an explicit YAML file plus
// environment overrides. Used by tests and the probe CLI.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if err := cfg.applyFile(path); err != nil {
		return Config{}, err
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// fileConfig is the YAML-facing shape. Pointer fields distinguish "absent"
// from zero so the file only overrides what it names.
type fileConfig struct {
	Embedding struct {
		Provider         string `yaml:"provider"`
		Model            string `yaml:"model"`
		CacheSize        *int   `yaml:"cache_size"`
		BatchDelayMS     *int   `yaml:"batch_delay_ms"`
		BatchConcurrency *int   `yaml:"batch_concurrency"`
		MaxChunkTokens   *int   `yaml:"max_chunk_tokens"`
	} `yaml:"embedding"`
	Retry struct {
		MaxAttempts       *int     `yaml:"max_attempts"`
		BaseDelayMS       *int     `yaml:"base_delay_ms"`
		MaxDelayMS        *int     `yaml:"max_delay_ms"`
		Multiplier        *float64 `yaml:"multiplier"`
		Jitter            *float64 `yaml:"jitter"`
		AttemptTimeoutMS  *int     `yaml:"attempt_timeout_ms"`
		ValidateTimeoutMS *int     `yaml:"validate_timeout_ms"`
	} `yaml:"retry"`
	Health struct {
		WindowSize     *int     `yaml:"window_size"`
		UnhealthyBelow *float64 `yaml:"unhealthy_below"`
		HealthyAbove   *float64 `yaml:"healthy_above"`
	} `yaml:"health"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Search struct {
		SimilarWarnThreshold *float64 `yaml:"similar_warn_threshold"`
		DefaultLimit         *int     `yaml:"default_limit"`
	} `yaml:"search"`
	Maintenance struct {
		Probe string `yaml:"probe"`
		Sweep string `yaml:"sweep"`
	} `yaml:"maintenance"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Embedding.Provider != "" {
		c.Embedding.Provider = fc.Embedding.Provider
	}
	if fc.Embedding.Model != "" {
		c.Embedding.Model = fc.Embedding.Model
	}
	if fc.Embedding.CacheSize != nil {
		c.Embedding.CacheSize = *fc.Embedding.CacheSize
	}
	if fc.Embedding.BatchDelayMS != nil {
		c.Embedding.BatchDelay = time.Duration(*fc.Embedding.BatchDelayMS) * time.Millisecond
	}
	if fc.Embedding.BatchConcurrency != nil {
		c.Embedding.BatchConcurrency = *fc.Embedding.BatchConcurrency
	}
	if fc.Embedding.MaxChunkTokens != nil {
		c.Embedding.MaxChunkTokens = *fc.Embedding.MaxChunkTokens
	}

	if fc.Retry.MaxAttempts != nil {
		c.Retry.MaxAttempts = *fc.Retry.MaxAttempts
	}
	if fc.Retry.BaseDelayMS != nil {
		c.Retry.BaseDelay = time.Duration(*fc.Retry.BaseDelayMS) * time.Millisecond
	}
	if fc.Retry.MaxDelayMS != nil {
		c.Retry.MaxDelay = time.Duration(*fc.Retry.MaxDelayMS) * time.Millisecond
	}
	if fc.Retry.Multiplier != nil {
		c.Retry.Multiplier = *fc.Retry.Multiplier
	}
	if fc.Retry.Jitter != nil {
		c.Retry.Jitter = *fc.Retry.Jitter
	}
	if fc.Retry.AttemptTimeoutMS != nil {
		c.Retry.AttemptTimeout = time.Duration(*fc.Retry.AttemptTimeoutMS) * time.Millisecond
	}
	if fc.Retry.ValidateTimeoutMS != nil {
		c.Retry.ValidateTimeout = time.Duration(*fc.Retry.ValidateTimeoutMS) * time.Millisecond
	}

	if fc.Health.WindowSize != nil {
		c.Health.WindowSize = *fc.Health.WindowSize
	}
	if fc.Health.UnhealthyBelow != nil {
		c.Health.UnhealthyBelow = *fc.Health.UnhealthyBelow
	}
	if fc.Health.HealthyAbove != nil {
		c.Health.HealthyAbove = *fc.Health.HealthyAbove
	}

	if fc.Storage.Path != "" {
		c.Storage.Path = fc.Storage.Path
	}

	if fc.Search.SimilarWarnThreshold != nil {
		c.Search.SimilarWarnThreshold = *fc.Search.SimilarWarnThreshold
	}
	if fc.Search.DefaultLimit != nil {
		c.Search.DefaultLimit = *fc.Search.DefaultLimit
	}

	if fc.Maintenance.Probe != "" {
		c.Maintenance.ProbeSchedule = fc.Maintenance.Probe
	}
	if fc.Maintenance.Sweep != "" {
		c.Maintenance.SweepSchedule = fc.Maintenance.Sweep
	}

	if fc.Log.Level != "" {
		c.Log.Level = fc.Log.Level
	}
	if fc.Log.Format != "" {
		c.Log.Format = fc.Log.Format
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvProvider); v != "" {
		c.Embedding.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Embedding.Model = v
	}
	c.Embedding.GeminiAPIKey = os.Getenv(EnvGeminiAPIKey)
	c.Embedding.OpenAIAPIKey = os.Getenv(EnvOpenAIAPIKey)
	c.Embedding.OllamaHost = os.Getenv(EnvOllamaHost)

	if v := os.Getenv(EnvDBPath); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}

	var err error
	if c.Embedding.CacheSize, err = intEnv(EnvCacheSize, c.Embedding.CacheSize); err != nil {
		return err
	}
	if c.Embedding.BatchConcurrency, err = intEnv(EnvBatchConcurrency, c.Embedding.BatchConcurrency); err != nil {
		return err
	}

	if v := os.Getenv(EnvBatchDelayMS); v != "" {
		ms, perr := strconv.Atoi(v)
		if perr != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvBatchDelayMS, v, perr)
		}
		c.Embedding.BatchDelay = time.Duration(ms) * time.Millisecond
	}

	return nil
}

func intEnv(name string, current int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return current, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	return n, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "engram.db"
	}
	return filepath.Join(home, ".engram", "engram.db")
}
