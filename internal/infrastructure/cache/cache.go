// Package cache provides the optional lookup cache used to memoize NER
// extraction results between pipeline runs. Two implementations exist: a
// bounded in-memory cache for single-process deployments and a Redis-backed
// cache for shared deployments. Both are safe for concurrent use and follow
// single-writer-wins semantics: when two invocations race to populate the
// same key, either result may win, since both are equivalent.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/pillchecker/medlabel/pkg/errors"
)

// Sentinel cache errors.
var (
	ErrCacheMiss        = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrCacheUnavailable = errors.New(errors.ErrCodeCacheError, "cache unavailable")
)

// Cache stores JSON-serializable values under string keys with a TTL.
// A zero TTL means the implementation's default.
type Cache interface {
	// Get unmarshals the value stored under key into dest. Returns
	// ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores value under key. Overwrites any existing entry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// GetOrSet returns the cached value for key, or invokes loader, caches
	// its result, and unmarshals it into dest. Loader failures are
	// returned verbatim and never cached.
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration,
		loader func(ctx context.Context) (interface{}, error)) error
}

// NormalizeKey canonicalizes free text into a stable cache key: Unicode NFKC
// normalization, lower-casing, and whitespace collapsing, then hashing so
// arbitrarily long OCR text produces a bounded key.
func NormalizeKey(text string) string {
	folded := strings.ToLower(norm.NFKC.String(text))
	folded = strings.Join(strings.Fields(folded), " ")
	sum := sha256.Sum256([]byte(folded))
	return hex.EncodeToString(sum[:])
}
