// Package config provides configuration loading, defaults, and validation for
// the medlabel pipeline.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all pipeline settings.
const envPrefix = "MEDLABEL"

// newViper builds a pre-configured Viper instance with the pipeline's standard
// settings: YAML file type, MEDLABEL_ env prefix, automatic env binding, and a
// key replacer that maps "." → "_" so that nested keys like "ner.base_url"
// resolve to "MEDLABEL_NER_BASE_URL".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v)
	return v
}

// bindEnvKeys registers every known config key with viper.  AutomaticEnv only
// resolves keys viper has already seen, so without explicit binding an
// env-only key would be invisible to Unmarshal.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"ner.base_url",
		"ner.attempt_timeout",
		"ner.max_attempts",
		"ner.backoff_base",
		"ner.backoff_cap",
		"ner.user_agent",
		"pipeline.confidence_threshold",
		"pipeline.title_max_length",
		"pipeline.cache_ttl",
		"cache.backend",
		"cache.max_entries",
		"cache.redis.addr",
		"cache.redis.password",
		"cache.redis.db",
		"cache.redis.pool_size",
		"cache.redis.dial_timeout",
		"cache.redis.read_timeout",
		"cache.redis.write_timeout",
		"cache.redis.key_prefix",
		"log.level",
		"log.format",
		"log.output_paths",
		"log.error_output_paths",
		"metrics.enabled",
		"metrics.addr",
		"metrics.namespace",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// Load reads the YAML file at configPath, merges any MEDLABEL_* environment
// variable overrides, applies pipeline defaults for unset fields, and
// validates the result.  It returns a fully-populated *Config or a
// descriptive error.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from MEDLABEL_* environment variables,
// with no config file required.  This is the preferred loading strategy for
// containerised deployments.
//
// Environment variable naming convention:
//
//	MEDLABEL_<SECTION>_<FIELD>   e.g.  MEDLABEL_NER_BASE_URL, MEDLABEL_CACHE_BACKEND
func LoadFromEnv() (*Config, error) {
	v := newViper()
	// No config file — rely solely on env vars and defaults.
	return unmarshalAndFinalize(v)
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk.  It is intended for
// hot-reloading non-critical settings such as log level and the confidence
// threshold; callers are responsible for applying only the safe subset of
// changes at runtime.
//
// Watch is non-blocking; it starts a background goroutine managed by viper.
// If the changed file fails to parse or validate, onChange is NOT called.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read — errors are ignored here; callers should call Load first.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			// Config change produced an invalid config; skip the callback to
			// prevent the application from entering a broken state.
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// It is intended for use in main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
