package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"quiz-engine/internal/app"
	"quiz-engine/internal/domain"
)

// CachedStore caches question lookups in Redis as JSON and falls back to the wrapped store on a
// cache miss. Keys:
//
//	quiz:questions:document:{category}
//	quiz:questions:query:{category}
//	quiz:questions:scan
//
// Redis errors degrade to a direct store read; only store errors reach the caller.
type CachedStore struct {
	client *redis.Client
	store  app.QuestionStore
	ttl    time.Duration
	sf     singleflight.Group
	log    logrus.FieldLogger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCachedStore(client *redis.Client, store app.QuestionStore, ttl time.Duration, log logrus.FieldLogger) *CachedStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedStore{
		client: client,
		store:  store,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CachedStore) FetchDocument(ctx context.Context, category string) ([]domain.RawQuestion, error) {
	return c.get(ctx, "quiz:questions:document:"+category, func(ctx context.Context) ([]domain.RawQuestion, error) {
		return c.store.FetchDocument(ctx, category)
	})
}

func (c *CachedStore) FetchByCategory(ctx context.Context, category string) ([]domain.RawQuestion, error) {
	return c.get(ctx, "quiz:questions:query:"+category, func(ctx context.Context) ([]domain.RawQuestion, error) {
		return c.store.FetchByCategory(ctx, category)
	})
}

func (c *CachedStore) FetchAll(ctx context.Context) ([]domain.RawQuestion, error) {
	return c.get(ctx, "quiz:questions:scan", c.store.FetchAll)
}

func (c *CachedStore) get(ctx context.Context, key string, load func(context.Context) ([]domain.RawQuestion, error)) ([]domain.RawQuestion, error) {
	if records, ok := c.lookup(ctx, key); ok {
		return records, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if records, ok := c.lookup(ctx, key); ok {
			return records, nil
		}

		records, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return records, nil
		}
		payload, err := json.Marshal(records)
		if err != nil {
			return records, nil
		}
		if err := c.client.Set(ctx, key, payload, c.ttlWithJitter()).Err(); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("caching questions")
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.RawQuestion), nil
}

func (c *CachedStore) lookup(ctx context.Context, key string) ([]domain.RawQuestion, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("key", key).Warn("reading question cache")
		}
		return nil, false
	}
	var records []domain.RawQuestion
	if err := json.Unmarshal(payload, &records); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("decoding question cache")
		return nil, false
	}
	return records, true
}

func (c *CachedStore) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
