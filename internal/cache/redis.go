// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the historian drains match events from.
const DefaultQueueName = "pikit_match_events"

// ConnectRedis opens a client for addr/db and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// EventQueue publishes match events by RPUSHing their JSON onto a Redis list.
type EventQueue struct {
	rdb   redis.Cmdable
	queue string
}

func NewEventQueue(rdb redis.Cmdable, queue string) *EventQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &EventQueue{rdb: rdb, queue: queue}
}

// Publish does not wait for a consumer; it only costs one round trip.
func (q *EventQueue) Publish(ctx context.Context, ev hunt.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// Queue is the list name events are pushed to.
func (q *EventQueue) Queue() string {
	return q.queue
}
