// Package config defines all configuration structures for the medlabel
// pipeline.  No I/O or parsing logic lives here — only plain data types and
// validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/logging"
)

// Cache backend names accepted by CacheConfig.Backend.
const (
	CacheBackendNone   = "none"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// NERConfig holds connection and retry parameters for the external
// entity-recognition service.
type NERConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PipelineConfig holds tunables for entity linking and field extraction.
type PipelineConfig struct {
	// ConfidenceThreshold is the minimum recognition score an entity needs
	// to survive linking. Range (0, 1].
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`

	// TitleMaxLength caps the derived medication title, in runes.
	TitleMaxLength int `mapstructure:"title_max_length"`

	// CacheTTL bounds how long extraction results for a given label text
	// are reused before the NER service is consulted again.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig holds Redis connection parameters for the redis cache backend.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// CacheConfig selects and tunes the extraction-result cache.
type CacheConfig struct {
	// Backend is one of "none", "memory", "redis".
	Backend string `mapstructure:"backend"`

	// MaxEntries bounds the in-process cache when Backend is "memory".
	MaxEntries int `mapstructure:"max_entries"`

	Redis RedisConfig `mapstructure:"redis"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// Config is the root configuration structure for the pipeline.  Every
// component reads its settings from the relevant sub-struct.
type Config struct {
	NER      NERConfig         `mapstructure:"ner"`
	Pipeline PipelineConfig    `mapstructure:"pipeline"`
	Cache    CacheConfig       `mapstructure:"cache"`
	Log      logging.LogConfig `mapstructure:"log"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// NER
	u, err := url.Parse(c.NER.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: ner.base_url %q is not a valid http(s) URL", c.NER.BaseURL)
	}
	if c.NER.MaxAttempts < 1 {
		return fmt.Errorf("config: ner.max_attempts must be ≥ 1, got %d", c.NER.MaxAttempts)
	}
	if c.NER.AttemptTimeout <= 0 {
		return fmt.Errorf("config: ner.attempt_timeout must be positive, got %s", c.NER.AttemptTimeout)
	}
	if c.NER.BackoffBase <= 0 {
		return fmt.Errorf("config: ner.backoff_base must be positive, got %s", c.NER.BackoffBase)
	}
	if c.NER.BackoffCap < c.NER.BackoffBase {
		return fmt.Errorf("config: ner.backoff_cap %s must be ≥ ner.backoff_base %s", c.NER.BackoffCap, c.NER.BackoffBase)
	}

	// Pipeline
	if c.Pipeline.ConfidenceThreshold <= 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: pipeline.confidence_threshold %g is out of range (0, 1]", c.Pipeline.ConfidenceThreshold)
	}
	if c.Pipeline.TitleMaxLength < 1 {
		return fmt.Errorf("config: pipeline.title_max_length must be ≥ 1, got %d", c.Pipeline.TitleMaxLength)
	}
	if c.Pipeline.CacheTTL < 0 {
		return fmt.Errorf("config: pipeline.cache_ttl must not be negative, got %s", c.Pipeline.CacheTTL)
	}

	// Cache
	switch c.Cache.Backend {
	case CacheBackendNone, CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("config: cache.redis.addr is required when cache.backend is %q", CacheBackendRedis)
		}
		if c.Cache.Redis.DB < 0 {
			return fmt.Errorf("config: cache.redis.db must be ≥ 0, got %d", c.Cache.Redis.DB)
		}
	default:
		return fmt.Errorf("config: cache.backend %q is invalid; expected none|memory|redis", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheBackendMemory && c.Cache.MaxEntries < 1 {
		return fmt.Errorf("config: cache.max_entries must be ≥ 1, got %d", c.Cache.MaxEntries)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("config: metrics.addr is required when metrics.enabled is true")
	}

	return nil
}
