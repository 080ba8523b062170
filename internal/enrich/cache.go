package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is the persistence backend for cached enrichment records.
// A nil record with a nil error means "never fetched".
type Store interface {
	GetEnrichment(identifier string) (*Record, error)
	PutEnrichment(rec *Record) error
}

// Cache is the only shared mutable resource touched by concurrent evaluator
// workers. Per-identifier locking makes simultaneous get-or-fetch calls for
// the same profile collapse into one upstream request.
type Cache struct {
	store     Store
	fetcher   Fetcher
	freshness time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	// unavailable remembers explicit fetch failures for the lifetime of the
	// run so workers do not hammer a profile that just refused us.
	unavailable map[string]bool
}

// NewCache builds a Cache over the given store and fetcher. A zero
// freshness falls back to the 30-day default.
func NewCache(store Store, fetcher Fetcher, freshness time.Duration, logger *zap.Logger) *Cache {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:       store,
		fetcher:     fetcher,
		freshness:   freshness,
		logger:      logger,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
		unavailable: make(map[string]bool),
	}
}

// GetOrFetch returns a fresh record for the identifier, fetching and
// overwriting the cache entry when the stored one is absent or stale.
// A stale record triggers a refetch, never deletion. ErrUnavailable is
// returned when the source explicitly has no accessible profile.
func (c *Cache) GetOrFetch(ctx context.Context, identifier string) (*Record, error) {
	if identifier == "" {
		return nil, fmt.Errorf("enrichment identifier is empty: %w", ErrUnavailable)
	}

	lock := c.keyLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	refused := c.unavailable[identifier]
	c.mu.Unlock()
	if refused {
		return nil, ErrUnavailable
	}

	cached, err := c.store.GetEnrichment(identifier)
	if err != nil {
		return nil, fmt.Errorf("reading enrichment cache: %w", err)
	}
	if cached.Fresh(c.now(), c.freshness) {
		return cached, nil
	}

	if cached != nil {
		c.logger.Debug("enrichment record stale, refetching",
			zap.String("identifier", identifier),
			zap.Time("fetched_at", cached.FetchedAt),
		)
	}

	rec, err := c.fetcher.Fetch(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			c.mu.Lock()
			c.unavailable[identifier] = true
			c.mu.Unlock()
			c.logger.Info("enrichment unavailable", zap.String("identifier", identifier))
		}
		return nil, err
	}

	rec.Identifier = identifier
	rec.FetchedAt = c.now()
	if err := c.store.PutEnrichment(rec); err != nil {
		return nil, fmt.Errorf("writing enrichment cache: %w", err)
	}

	return rec, nil
}

func (c *Cache) keyLock(identifier string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[identifier]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[identifier] = lock
	}
	return lock
}
