// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package respcache is the Redis-backed response-shaping cache of
SPEC_FULL's "Response-shaping cache pass-through": a thin Get/Set
memoizer the Query Executor consults before running a Find statement and
populates after. Cache unavailability degrades to a miss rather than a
request failure, matching spec.md's "a miss runs the pipeline as normal."
*/
package respcache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis adapts a [*redis.Client] to [executor.Cache] without importing the
// executor package, avoiding a dependency cycle back into platform code.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// New constructs a [Redis] response cache over an already-connected client.
func New(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

// Get returns the cached payload for key, or false on a miss or error.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WarnContext(ctx, "response_cache_get_failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	return value, true
}

// Set populates key with value, expiring after ttl. Failures are logged,
// never returned — caching is a pass-through optimization, not a
// correctness requirement.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "response_cache_set_failed", slog.String("key", key), slog.Any("error", err))
	}
}
