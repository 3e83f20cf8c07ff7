// Package cache provides the TTL cache used by the point weather tool.
//
// The cache is an injected capability: tests and single-node deployments
// use the in-memory implementation, multi-node deployments point it at
// Redis. Weather data is short-lived and approximate, so last-writer-wins
// within the TTL window is acceptable.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a string key/value store with per-entry TTL.
type Cache interface {
	// Get returns the value for key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
