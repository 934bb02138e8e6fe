// Package cached adds a read-through cache in front of a conversation store.
// Whole conversations are cached by id and dropped on every write.
package cached

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/types"
)

const keyPrefix = "conversation:"

// Cache is the subset of the Redis client the store needs. Get reports a
// missing key as "" with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Store caches Get and Load of the wrapped store.
type Store struct {
	inner  conversation.Store
	cache  Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// New wraps inner with cache. Cache failures are logged and fall through to
// inner; they never fail a read.
func New(inner conversation.Store, cache Cache, ttl time.Duration, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(id string) string {
	return keyPrefix + id
}

// Save writes through and drops the cached entry.
func (s *Store) Save(ctx context.Context, id string, messages []types.Message, title string) (string, error) {
	savedID, err := s.inner.Save(ctx, id, messages, title)
	if err != nil {
		return "", err
	}
	s.invalidate(ctx, savedID)
	return savedID, nil
}

func (s *Store) List(ctx context.Context) ([]types.ConversationSummary, error) {
	return s.inner.List(ctx)
}

// Load returns the cached messages, filling the cache on a miss.
func (s *Store) Load(ctx context.Context, id string) ([]types.Message, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []types.Message{}, nil
	}
	return conv.Messages, nil
}

// Get returns the cached conversation, filling the cache on a miss. Unknown
// ids are not cached.
func (s *Store) Get(ctx context.Context, id string) (*types.ConversationWithMessages, error) {
	key := cacheKey(id)

	cached, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.logger.WithError(err).WithField("key", key).Warn("cache read failed")
	case cached != "":
		var conv types.ConversationWithMessages
		if err := json.Unmarshal([]byte(cached), &conv); err == nil {
			return &conv, nil
		}
		s.logger.WithField("key", key).Warn("discarding undecodable cache entry")
	}

	conv, err := s.inner.Get(ctx, id)
	if err != nil || conv == nil {
		return conv, err
	}

	data, err := json.Marshal(conv)
	if err != nil {
		s.logger.WithError(err).Warn("failed to encode conversation for cache")
		return conv, nil
	}
	if err := s.cache.Set(ctx, key, string(data), s.ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("failed to cache conversation")
	}
	return conv, nil
}

func (s *Store) Search(ctx context.Context, query string) ([]types.SearchHit, error) {
	return s.inner.Search(ctx, query)
}

// Delete writes through and drops the cached entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.inner.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Store) invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.WithError(err).WithField("keys", len(keys)).Warn("failed to invalidate cache")
	}
}

// Archiver wraps a's Restore so that every conversation cached before or
// after the swap is dropped.
func (s *Store) Archiver(a conversation.Archiver) conversation.Archiver {
	return &archiver{Archiver: a, store: s}
}

type archiver struct {
	conversation.Archiver
	store *Store
}

func (a *archiver) Restore(ctx context.Context, candidate string) (*types.BackupInfo, error) {
	before, err := a.store.inner.List(ctx)
	if err != nil {
		return nil, err
	}

	info, err := a.Archiver.Restore(ctx, candidate)
	if err != nil {
		return nil, err
	}

	after, err := a.store.inner.List(ctx)
	if err != nil {
		return info, err
	}

	ids := make([]string, 0, len(before)+len(after))
	for _, c := range before {
		ids = append(ids, c.ID)
	}
	for _, c := range after {
		ids = append(ids, c.ID)
	}
	a.store.invalidate(ctx, ids...)
	return info, nil
}
