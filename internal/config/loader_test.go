package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfigFile(t, `
ner:
  base_url: "https://ner.example.com"
  max_attempts: 4
  attempt_timeout: 10s
pipeline:
  confidence_threshold: 0.85
  title_max_length: 120
cache:
  backend: redis
  redis:
    addr: "redis.example.com:6379"
    db: 2
log:
  level: debug
  format: console
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "https://ner.example.com", cfg.NER.BaseURL)
	assert.Equal(t, 4, cfg.NER.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.NER.AttemptTimeout)
	assert.Equal(t, 0.85, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, 120, cfg.Pipeline.TitleMaxLength)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis.example.com:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// Fields the file does not mention still get defaults.
	assert.Equal(t, DefaultNERBackoffBase, cfg.NER.BackoffBase)
	assert.Equal(t, DefaultCacheTTL, cfg.Pipeline.CacheTTL)
	assert.Equal(t, DefaultRedisKeyPrefix, cfg.Cache.Redis.KeyPrefix)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeConfigFile(t, `
pipeline:
  confidence_threshold: 3.0
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MEDLABEL_NER_BASE_URL", "http://ner.local:8000")
	t.Setenv("MEDLABEL_NER_MAX_ATTEMPTS", "2")
	t.Setenv("MEDLABEL_PIPELINE_CONFIDENCE_THRESHOLD", "0.5")
	t.Setenv("MEDLABEL_LOG_LEVEL", "warn")

	cfg, err := LoadFromEnv()

	require.NoError(t, err)
	assert.Equal(t, "http://ner.local:8000", cfg.NER.BaseURL)
	assert.Equal(t, 2, cfg.NER.MaxAttempts)
	assert.Equal(t, 0.5, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, DefaultCacheBackend, cfg.Cache.Backend)
}

func TestLoadFromEnv_DefaultsOnly(t *testing.T) {
	cfg, err := LoadFromEnv()

	require.NoError(t, err)
	assert.Equal(t, DefaultNERBaseURL, cfg.NER.BaseURL)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
ner:
  base_url: "http://from-file:8000"
`)
	t.Setenv("MEDLABEL_NER_BASE_URL", "http://from-env:8000")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8000", cfg.NER.BaseURL)
}

func TestWatch_AppliesFileChanges(t *testing.T) {
	path := writeConfigFile(t, `
pipeline:
  confidence_threshold: 0.8
`)

	changes := make(chan *Config, 4)
	Watch(path, func(c *Config) {
		select {
		case changes <- c:
		default:
		}
	})

	// Give the watcher a moment to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  confidence_threshold: 0.9
log:
  level: debug
`), 0o600))

	select {
	case cfg := <-changes:
		assert.Equal(t, 0.9, cfg.Pipeline.ConfidenceThreshold)
		assert.Equal(t, "debug", cfg.Log.Level)
		// Untouched sections still carry defaults after the reload.
		assert.Equal(t, DefaultNERBaseURL, cfg.NER.BaseURL)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	})
}
