package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
)

func newTestGuard(t *testing.T) (*Guard, context.Context) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("no redis reachable on 127.0.0.1:6379, skipping dedup integration test")
	}
	t.Cleanup(func() { client.Close() })
	return New(client, 2*time.Second), ctx
}

func TestBeginClaimsMarkerOnce(t *testing.T) {
	g, ctx := newTestGuard(t)
	hash := "dedup-test-hash-1"
	defer g.End(ctx, hash)

	require.NoError(t, g.Begin(ctx, hash))

	err := g.Begin(ctx, hash)
	require.Error(t, err)
	appErr, ok := err.(*apperr.Error)
	require.True(t, ok)
	require.Equal(t, apperr.KindDuplicateInProgress, appErr.Kind)
}

func TestEndReleasesMarkerForImmediateRetry(t *testing.T) {
	g, ctx := newTestGuard(t)
	hash := "dedup-test-hash-2"

	require.NoError(t, g.Begin(ctx, hash))
	require.NoError(t, g.End(ctx, hash))
	require.NoError(t, g.Begin(ctx, hash))
	require.NoError(t, g.End(ctx, hash))
}

func TestEndOnUnclaimedMarkerIsNotAnError(t *testing.T) {
	g, ctx := newTestGuard(t)
	require.NoError(t, g.End(ctx, "never-claimed"))
}
