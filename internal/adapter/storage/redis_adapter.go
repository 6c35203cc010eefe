package storage

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/adi0301/item-lending/internal/core/domain"
)

const (
	activityStreamKey = "lending:activity"
	activityStreamMax = 10000
)

// RedisAdapter publishes activity events to a capped Redis stream. It is an
// optional sink: the server runs without it when no redis address is
// configured.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Record(ctx context.Context, ev domain.Event) error {
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: activityStreamKey,
		MaxLen: activityStreamMax,
		Approx: true,
		Values: map[string]interface{}{
			"id":   ev.ID,
			"kind": string(ev.Kind),
			"item": ev.ItemID,
			"user": ev.Username,
			"addr": ev.RemoteAddr,
			"at":   ev.At.UnixNano(),
		},
	}).Err()
}
