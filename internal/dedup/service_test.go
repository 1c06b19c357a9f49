package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpipe/internal/config"
	"certpipe/internal/logger"
)

type fakeCache struct {
	seen  map[string]bool
	err   error
	calls int
}

func newFakeCache() *fakeCache {
	return &fakeCache{seen: make(map[string]bool)}
}

func (f *fakeCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type fakeStore struct {
	seen  map[string]bool
	err   error
	calls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[string]bool)}
}

func (f *fakeStore) InsertIfAbsent(ctx context.Context, contentHash string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.seen[contentHash] {
		return false, nil
	}
	f.seen[contentHash] = true
	return true, nil
}

func newTestService(cache CacheRepository, store StoreRepository, onRedisError string) *Service {
	return NewService(cache, store, config.DeduplicationConfig{
		TTLSeconds:   60,
		OnRedisError: onRedisError,
	}, logger.NopLogger())
}

func TestFirstOccurrenceIsUnique(t *testing.T) {
	svc := newTestService(newFakeCache(), newFakeStore(), "allow")

	unique, err := svc.IsUnique(context.Background(), "出一建市政，三年社保")
	require.NoError(t, err)
	assert.True(t, unique)
}

func TestSecondOccurrenceIsDuplicate(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	svc := newTestService(cache, store, "allow")

	unique, err := svc.IsUnique(context.Background(), "same content")
	require.NoError(t, err)
	assert.True(t, unique)

	unique, err = svc.IsUnique(context.Background(), "same content")
	require.NoError(t, err)
	assert.False(t, unique)
	// cache answered; the store was only consulted for the first pass
	assert.Equal(t, 1, store.calls)
}

func TestDifferentContentStaysUnique(t *testing.T) {
	svc := newTestService(newFakeCache(), newFakeStore(), "allow")

	for _, content := range []string{"a", "a ", "A", "出一建", "出 一建"} {
		unique, err := svc.IsUnique(context.Background(), content)
		require.NoError(t, err)
		assert.True(t, unique, "content %q", content)
	}
}

func TestStoreIsAuthorityOnCacheMiss(t *testing.T) {
	store := newFakeStore()
	store.seen[ContentHash("recycled content")] = true
	svc := newTestService(newFakeCache(), store, "allow")

	// Redis has expired the key but the store remembers.
	unique, err := svc.IsUnique(context.Background(), "recycled content")
	require.NoError(t, err)
	assert.False(t, unique)
}

func TestRedisErrorFallbackAllow(t *testing.T) {
	cache := newFakeCache()
	cache.err = errors.New("redis down")
	store := newFakeStore()
	svc := newTestService(cache, store, "allow")

	unique, err := svc.IsUnique(context.Background(), "content")
	require.NoError(t, err)
	assert.True(t, unique)
	assert.Equal(t, 1, store.calls)
}

func TestRedisErrorFallbackDeny(t *testing.T) {
	cache := newFakeCache()
	cache.err = errors.New("redis down")
	store := newFakeStore()
	svc := newTestService(cache, store, "deny")

	_, err := svc.IsUnique(context.Background(), "content")
	assert.Error(t, err)
	assert.Zero(t, store.calls)
}

func TestStoreErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("pg down")
	svc := newTestService(newFakeCache(), store, "allow")

	_, err := svc.IsUnique(context.Background(), "content")
	assert.Error(t, err)
}

func TestNoCacheGoesStraightToStore(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(nil, store, "allow")

	unique, err := svc.IsUnique(context.Background(), "content")
	require.NoError(t, err)
	assert.True(t, unique)
	assert.Equal(t, 1, store.calls)
}

func TestContentHashStable(t *testing.T) {
	h1 := ContentHash("出一建市政")
	h2 := ContentHash("出一建市政")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, ContentHash("出一建市政 "))
}
