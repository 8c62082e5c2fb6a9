package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-engine/internal/app"
	"quiz-engine/internal/domain"
)

// CachedStore caches question lookups with TTL to avoid repeated store hits.
// Empty results and errors are never cached so a later seed becomes visible immediately.
type CachedStore struct {
	store app.QuestionStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedRecords
}

type cachedRecords struct {
	records   []domain.RawQuestion
	expiresAt time.Time
}

func NewCachedStore(store app.QuestionStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedRecords),
	}
}

func (c *CachedStore) FetchDocument(ctx context.Context, category string) ([]domain.RawQuestion, error) {
	return c.get(ctx, "document:"+category, func(ctx context.Context) ([]domain.RawQuestion, error) {
		return c.store.FetchDocument(ctx, category)
	})
}

func (c *CachedStore) FetchByCategory(ctx context.Context, category string) ([]domain.RawQuestion, error) {
	return c.get(ctx, "query:"+category, func(ctx context.Context) ([]domain.RawQuestion, error) {
		return c.store.FetchByCategory(ctx, category)
	})
}

func (c *CachedStore) FetchAll(ctx context.Context) ([]domain.RawQuestion, error) {
	return c.get(ctx, "scan", c.store.FetchAll)
}

func (c *CachedStore) get(ctx context.Context, key string, load func(context.Context) ([]domain.RawQuestion, error)) ([]domain.RawQuestion, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return clone(entry.records), nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.records, nil
		}
		c.mu.RUnlock()

		records, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			c.mu.Lock()
			c.cache[key] = cachedRecords{
				records:   records,
				expiresAt: now.Add(c.ttlWithJitter()),
			}
			c.mu.Unlock()
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(result.([]domain.RawQuestion)), nil
}

func (c *CachedStore) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
