package profile

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore keeps recently fetched documents in memory. Misses and
// failures are never cached.
type CachedStore struct {
	next  DocumentStore
	cache *expirable.LRU[string, Document]
}

func NewCachedStore(next DocumentStore, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 256
	}
	return &CachedStore{
		next:  next,
		cache: expirable.NewLRU[string, Document](size, nil, ttl),
	}
}

func (s *CachedStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	key := collection + "/" + id
	if doc, ok := s.cache.Get(key); ok {
		return &doc, nil
	}

	doc, err := s.next.GetDocument(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, *doc)
	return doc, nil
}

// Invalidate drops a cached document, e.g. after a profile update.
func (s *CachedStore) Invalidate(collection, id string) {
	s.cache.Remove(collection + "/" + id)
}
