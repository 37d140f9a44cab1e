package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/domain"
)

// EventBus fans duel events out over Redis pub/sub so every instance can serve
// live feeds, whichever instance changed the duel.
type EventBus struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func NewEventBus(client *redis.Client, log logrus.FieldLogger) *EventBus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventBus{client: client, log: log}
}

func (b *EventBus) Publish(ctx context.Context, ev domain.DuelEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, channel(ev.DuelID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of events for duelID. A slow reader loses its
// oldest pending event. The caller must invoke cancel to release the subscription.
func (b *EventBus) Subscribe(ctx context.Context, duelID string) (<-chan domain.DuelEvent, func(), error) {
	ps := b.client.Subscribe(ctx, channel(duelID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", duelID, err)
	}

	out := make(chan domain.DuelEvent, 8)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev domain.DuelEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.WithError(err).WithField("duel_id", duelID).Warn("dropping malformed duel event")
				continue
			}
			forward(out, ev)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = ps.Close() })
	}
	return out, cancel, nil
}

func forward(out chan domain.DuelEvent, ev domain.DuelEvent) {
	select {
	case out <- ev:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- ev:
	default:
	}
}

func channel(duelID string) string {
	return "duel:events:" + duelID
}
