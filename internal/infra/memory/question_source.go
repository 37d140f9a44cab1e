package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CachedSource caches candidate batches of a slower source with TTL to avoid
// repeated DB hits when many duels start at once.
type CachedSource struct {
	source app.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedBatch
}

type cachedBatch struct {
	records   []domain.RawQuestion
	expiresAt time.Time
}

func NewCachedSource(source app.QuestionSource, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBatch),
	}
}

func (c *CachedSource) Name() string {
	return c.source.Name()
}

func (c *CachedSource) FetchCandidates(ctx context.Context, limit, offset int) ([]domain.RawQuestion, error) {
	key := fmt.Sprintf("%d:%d", limit, offset)
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.records, nil
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

		records, err := c.source.FetchCandidates(ctx, limit, offset)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedBatch{
			records:   records,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.RawQuestion), nil
}

func (c *CachedSource) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticSource serves a fixed list of records (useful for tests/demos).
type StaticSource struct {
	name    string
	records []domain.RawQuestion
}

func NewStaticSource(name string, records []domain.RawQuestion) *StaticSource {
	return &StaticSource{name: name, records: records}
}

func (s *StaticSource) Name() string {
	return s.name
}

func (s *StaticSource) FetchCandidates(_ context.Context, limit, offset int) ([]domain.RawQuestion, error) {
	if offset >= len(s.records) {
		return nil, nil
	}
	end := len(s.records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]domain.RawQuestion(nil), s.records[offset:end]...), nil
}
