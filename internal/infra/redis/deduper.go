package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers inbound update ids for a while so redelivered webhooks are
// acknowledged without being processed twice.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{client: client, ttl: ttl}
}

// FirstSeen marks updateID as seen and reports whether this was the first time.
func (d *Deduper) FirstSeen(ctx context.Context, updateID int) (bool, error) {
	return d.client.SetNX(ctx, d.key(updateID), "1", d.ttl).Result()
}

// Forget drops the mark so a redelivery of updateID is processed again.
func (d *Deduper) Forget(ctx context.Context, updateID int) error {
	return d.client.Del(ctx, d.key(updateID)).Err()
}

func (d *Deduper) key(updateID int) string {
	return "update:" + strconv.Itoa(updateID)
}
