// Package config defines all configuration structures for the medlabel
// pipeline.
package config

import "time"

const (
	DefaultNERBaseURL        = "http://localhost:8000"
	DefaultNERAttemptTimeout = 30 * time.Second
	DefaultNERMaxAttempts    = 3
	DefaultNERBackoffBase    = 2 * time.Second
	DefaultNERBackoffCap     = 10 * time.Second

	DefaultConfidenceThreshold = 0.7
	DefaultTitleMaxLength      = 200
	DefaultCacheTTL            = 15 * time.Minute

	DefaultCacheBackend    = CacheBackendMemory
	DefaultCacheMaxEntries = 1024

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "medlabel:"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsAddr      = ":9090"
	DefaultMetricsNamespace = "medlabel"
)

// ApplyDefaults fills every zero-value field in cfg with the pipeline default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// NER
	if cfg.NER.BaseURL == "" {
		cfg.NER.BaseURL = DefaultNERBaseURL
	}
	if cfg.NER.AttemptTimeout == 0 {
		cfg.NER.AttemptTimeout = DefaultNERAttemptTimeout
	}
	if cfg.NER.MaxAttempts == 0 {
		cfg.NER.MaxAttempts = DefaultNERMaxAttempts
	}
	if cfg.NER.BackoffBase == 0 {
		cfg.NER.BackoffBase = DefaultNERBackoffBase
	}
	if cfg.NER.BackoffCap == 0 {
		cfg.NER.BackoffCap = DefaultNERBackoffCap
	}

	// Pipeline
	if cfg.Pipeline.ConfidenceThreshold == 0 {
		cfg.Pipeline.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.Pipeline.TitleMaxLength == 0 {
		cfg.Pipeline.TitleMaxLength = DefaultTitleMaxLength
	}
	if cfg.Pipeline.CacheTTL == 0 {
		cfg.Pipeline.CacheTTL = DefaultCacheTTL
	}

	// Cache
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Cache.Redis.KeyPrefix == "" {
		cfg.Cache.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// Metrics
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// Default returns a fully-populated Config carrying every pipeline default.
// It always validates.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
