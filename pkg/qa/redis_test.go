package qa

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig(mr.Addr())
	cfg.TTL = time.Hour
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()

	s := NewSession(3)
	s.Record("q", "a")
	require.NoError(t, store.Save(ctx, s))
	assert.True(t, mr.Exists("docdiff:sessions:"+s.ID))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	require.Len(t, got.History(), 1)
	assert.Equal(t, "a", got.History()[0].Answer)
	assert.Equal(t, 3, got.State().Limit)

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Delete(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(ctx, s.ID), ErrSessionNotFound)
}

func TestRedisStore_SaveRefreshesTTL(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()
	key := "docdiff:sessions:"

	s := NewSession(3)
	require.NoError(t, store.Save(ctx, s))
	assert.Equal(t, time.Hour, mr.TTL(key+s.ID))

	mr.FastForward(40 * time.Minute)
	assert.Equal(t, 20*time.Minute, mr.TTL(key+s.ID))

	s.Record("q", "a")
	require.NoError(t, store.Save(ctx, s))
	assert.Equal(t, time.Hour, mr.TTL(key+s.ID))

	mr.FastForward(61 * time.Minute)
	_, err := store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_GetReturnsCopy(t *testing.T) {
	store, _ := newMiniRedisStore(t)
	ctx := context.Background()

	s := NewSession(3)
	require.NoError(t, store.Save(ctx, s))

	a, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	b, err := store.Get(ctx, s.ID)
	require.NoError(t, err)

	a.Record("q", "a")
	assert.Empty(t, b.History())
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	require.NoError(t, mr.Set("docdiff:sessions:bad", "{not json"))

	_, err := store.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
