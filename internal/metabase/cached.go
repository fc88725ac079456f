package metabase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/report-context/internal/cache"
	"github.com/jonathan/report-context/internal/types"
)

// CachedSource wraps a Client with a card-detail cache. The id listing is
// never cached so the run's source list always reflects upstream. Cache
// failures degrade to direct fetches.
type CachedSource struct {
	client *Client
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource creates a CachedSource. A non-positive ttl uses cache.DefaultTTL.
func NewCachedSource(client *Client, c cache.Cache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &CachedSource{client: client, cache: c, ttl: ttl, logger: client.logger}
}

// ListIDs delegates to the client.
func (s *CachedSource) ListIDs(ctx context.Context) ([]types.ItemID, error) {
	return s.client.ListIDs(ctx)
}

// ListCollections delegates to the client.
func (s *CachedSource) ListCollections(ctx context.Context) (map[int]string, error) {
	return s.client.ListCollections(ctx)
}

// FetchDetail serves the card from cache when possible.
func (s *CachedSource) FetchDetail(ctx context.Context, id types.ItemID) (*types.WorkItem, error) {
	key := cache.CardKey(id)

	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "card_id", id, "error", err)
	}
	if found {
		card, err := decodeCard(raw)
		if err == nil && !card.Archived {
			return card.WorkItem(), nil
		}
		s.logger.Warn("discarding unusable cache entry", "card_id", id)
	}

	raw, err = s.fetchAndStore(ctx, id)
	if err != nil {
		return nil, err
	}
	card, err := decodeCard(raw)
	if err != nil {
		return nil, err
	}
	if card.Archived {
		return nil, fmt.Errorf("%w: card %d is archived", ErrNotFound, id)
	}
	return card.WorkItem(), nil
}

// Invalidate drops the cached detail for id so the next FetchDetail goes
// upstream. Used for items re-queued after a failure, whose card may have
// been fixed since it was cached.
func (s *CachedSource) Invalidate(ctx context.Context, id types.ItemID) error {
	if err := s.cache.Delete(ctx, cache.CardKey(id)); err != nil {
		return fmt.Errorf("invalidating card %d: %w", id, err)
	}
	return nil
}

// FetchUsage always reads fresh usage data, refreshing the cache entry on the way.
func (s *CachedSource) FetchUsage(ctx context.Context, id types.ItemID) (*types.Usage, error) {
	raw, err := s.fetchAndStore(ctx, id)
	if err != nil {
		return nil, err
	}
	card, err := decodeCard(raw)
	if err != nil {
		return nil, err
	}
	return card.Usage(s.logger), nil
}

// fetchAndStore fetches the raw card and caches it. Not-found results are
// never cached.
func (s *CachedSource) fetchAndStore(ctx context.Context, id types.ItemID) ([]byte, error) {
	raw, err := s.client.fetchCardBytes(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cache.CardKey(id), raw, s.ttl); err != nil {
		s.logger.Warn("cache write failed", "card_id", id, "error", err)
	}
	return raw, nil
}
