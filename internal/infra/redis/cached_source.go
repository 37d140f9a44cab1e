package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
)

// CachedSource caches candidate batches of a question source in Redis and falls
// back to the source on cache miss. Batches are stored as JSON under
// questions:{source}:{limit}:{offset}.
type CachedSource struct {
	client *redis.Client
	source app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewCachedSource(client *redis.Client, source app.QuestionSource, ttl time.Duration) *CachedSource {
	return &CachedSource{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CachedSource) Name() string {
	return c.source.Name()
}

func (c *CachedSource) FetchCandidates(ctx context.Context, limit, offset int) ([]domain.RawQuestion, error) {
	key := c.key(limit, offset)

	if records, ok := c.cached(ctx, key); ok {
		return records, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if records, ok := c.cached(ctx, key); ok {
			return records, nil
		}

		records, err := c.source.FetchCandidates(ctx, limit, offset)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(records)
		if err == nil {
			_ = c.client.Set(ctx, key, payload, c.ttlWithJitter()).Err()
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.RawQuestion), nil
}

func (c *CachedSource) cached(ctx context.Context, key string) ([]domain.RawQuestion, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var records []domain.RawQuestion
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false
	}
	return records, true
}

func (c *CachedSource) key(limit, offset int) string {
	return fmt.Sprintf("questions:%s:%d:%d", c.source.Name(), limit, offset)
}

func (c *CachedSource) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
