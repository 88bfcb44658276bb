// Package cache provides the short-lived key value store backing the
// session token cache and the request correlation entries. Entries are
// Redis-backed when REDIS_URL is configured and reachable, with an
// in-process fallback otherwise.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a key is absent or its TTL has elapsed.
var ErrNotFound = errors.New("cache: key not found")

// Store is a TTL key value store. Values are opaque bytes; callers JSON
// encode what they need to correlate.
type Store interface {
	// Put stores value under key for ttl. A zero ttl means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value without consuming it.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetAndDelete returns the value and removes it in one step, so a
	// correlation entry can only be claimed once.
	GetAndDelete(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// New connects to Redis when redisURL is set. When the URL is empty or the
// server is unreachable it falls back to the in-memory store, which is fine
// for a single instance but loses entries on restart.
func New(ctx context.Context, redisURL string, logger zerolog.Logger) Store {
	if redisURL == "" {
		logger.Info().Msg("REDIS_URL not set, using in-memory cache")
		return NewMemoryStore(ctx)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid REDIS_URL, falling back to in-memory cache")
		return NewMemoryStore(ctx)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory cache")
		_ = client.Close()
		return NewMemoryStore(ctx)
	}

	logger.Info().Msg("cache backed by redis")
	return &redisStore{client: client}
}
