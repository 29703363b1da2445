package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func TestRedisStore_MarkAndSeen(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	key := "email:sent:book.discounted:msg-1:u1"

	seen, err := store.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkSent(ctx, key))

	seen, err = store.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRedisStore_MarkerExpires(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	key := "email:sent:book.reactivated:msg-2:u1"

	require.NoError(t, store.MarkSent(ctx, key))
	mr.FastForward(2 * time.Hour)

	seen, err := store.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen, "marker must expire with its TTL")
}

func TestRedisStore_DoubleMarkKeepsFirstTTL(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	key := "email:sent:book.deactivated:msg-3:u1"

	require.NoError(t, store.MarkSent(ctx, key))
	mr.FastForward(30 * time.Minute)
	require.NoError(t, store.MarkSent(ctx, key))
	mr.FastForward(45 * time.Minute)

	seen, err := store.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen, "second mark must not extend the window")
}
