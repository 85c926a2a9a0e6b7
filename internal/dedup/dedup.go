// Package dedup implements a best-effort duplicate-upload coalescing
// guard: a short-lived marker keyed by content hash, backed by Redis
// so that a second pipeline replica sees the same in-flight marker
// the first one set.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
)

const keyPrefix = "invoice-vision:inflight:"

// Guard coalesces concurrent uploads of the same content hash.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Guard; ttl bounds how long a marker survives if the
// owning request crashes without releasing it.
func New(client *redis.Client, ttl time.Duration) *Guard {
	return &Guard{client: client, ttl: ttl}
}

// Begin claims the in-flight marker for contentHash. It returns
// apperr.DuplicateInProgress if another request already holds it.
func (g *Guard) Begin(ctx context.Context, contentHash string) error {
	ok, err := g.client.SetNX(ctx, keyPrefix+contentHash, "1", g.ttl).Result()
	if err != nil {
		return fmt.Errorf("claiming dedup marker: %w", err)
	}
	if !ok {
		return apperr.DuplicateInProgress(contentHash)
	}
	return nil
}

// End releases the marker, letting a retry of the same content
// proceed immediately instead of waiting out the TTL.
func (g *Guard) End(ctx context.Context, contentHash string) error {
	err := g.client.Del(ctx, keyPrefix+contentHash).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("releasing dedup marker: %w", err)
	}
	return nil
}
