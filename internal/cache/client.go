// Package cache stores finished conversion results.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// CacheKey generates a cache key from components.
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// JobKey is the key of a job's finished document.
func JobKey(jobID string) string {
	return CacheKey("job", jobID)
}

// FingerprintKey is the key of a document by request fingerprint.
func FingerprintKey(fingerprint string) string {
	return CacheKey("fp", fingerprint)
}
