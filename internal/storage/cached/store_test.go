package cached

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/storage/sqlite"
	"github.com/jobtana1/langchain-chat/internal/types"
)

var _ conversation.Store = (*Store)(nil)

type memoryCache struct {
	mu      sync.Mutex
	values  map[string]string
	gets    int
	failAll bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]string)}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failAll {
		return "", errors.New("cache down")
	}
	return c.values[key], nil
}

func (c *memoryCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errors.New("cache down")
	}
	c.values[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

func newTestStore(t *testing.T) (*Store, *sqlite.Store, *memoryCache) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	inner, err := sqlite.Open(context.Background(), sqlite.Config{
		Path:   filepath.Join(t.TempDir(), "conversations.db"),
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })

	cache := newMemoryCache()
	return New(inner, cache, time.Minute, logger), inner, cache
}

var hello = []types.Message{
	{Role: types.RoleUser, Content: "Hello"},
	{Role: types.RoleAssistant, Content: "Hi there"},
}

func TestLoadFillsAndInvalidates(t *testing.T) {
	ctx := context.Background()
	store, _, cache := newTestStore(t)

	id, err := store.Save(ctx, "", hello, "")
	require.NoError(t, err)
	assert.False(t, cache.has(cacheKey(id)))

	msgs, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.True(t, cache.has(cacheKey(id)))

	// Served from cache, still a copy.
	msgs[0].Content = "mutated"
	again, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hello", again[0].Content)

	_, err = store.Save(ctx, id, []types.Message{{Role: types.RoleUser, Content: "new"}}, "")
	require.NoError(t, err)
	assert.False(t, cache.has(cacheKey(id)))

	msgs, err = store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].Content)

	require.NoError(t, store.Delete(ctx, id))
	assert.False(t, cache.has(cacheKey(id)))
	msgs, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestUnknownIDNotCached(t *testing.T) {
	ctx := context.Background()
	store, _, cache := newTestStore(t)

	conv, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, conv)
	assert.False(t, cache.has(cacheKey("missing")))
}

func TestCacheFailureFallsThrough(t *testing.T) {
	ctx := context.Background()
	store, _, cache := newTestStore(t)
	cache.failAll = true

	id, err := store.Save(ctx, "", hello, "")
	require.NoError(t, err)

	msgs, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestRestoreDropsCachedConversations(t *testing.T) {
	ctx := context.Background()
	store, inner, cache := newTestStore(t)
	archiver := store.Archiver(inner)

	id, err := store.Save(ctx, "", hello, "")
	require.NoError(t, err)
	backup, err := archiver.Backup(ctx)
	require.NoError(t, err)

	_, err = store.Save(ctx, id, []types.Message{{Role: types.RoleUser, Content: "changed"}}, "")
	require.NoError(t, err)
	_, err = store.Load(ctx, id)
	require.NoError(t, err)
	require.True(t, cache.has(cacheKey(id)))

	_, err = archiver.Restore(ctx, backup.Path)
	require.NoError(t, err)
	assert.False(t, cache.has(cacheKey(id)))

	msgs, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
}
