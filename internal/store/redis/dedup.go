// Package redis holds the Redis-backed fast paths. Postgres stays the source
// of truth; everything here is a cache that may be flushed at any time.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func MustOpen(ctx context.Context, addr string) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("redis connect fail")
	}
	return client
}

// Dedup is the webhook delivery fast-path filter: SET NX claims the event key
// for one TTL window. The database check remains authoritative, so a Redis
// outage only costs the shortcut, never correctness.
type Dedup struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedup(client *redis.Client, ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Dedup{client: client, ttl: ttl}
}

// MarkSeen reports whether this is the first sighting of the key. Errors are
// logged and treated as first sighting so deliveries never get dropped on a
// cache failure.
func (d *Dedup) MarkSeen(ctx context.Context, key string) bool {
	ok, err := d.client.SetNX(ctx, "webhook:seen:"+key, 1, d.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("webhook dedup cache unavailable")
		return true
	}
	return ok
}

// Forget releases a claim taken by MarkSeen so a provider redelivery can retry
// a dispatch that did not apply. Errors only cost the shortcut: the events
// table admits the retry regardless.
func (d *Dedup) Forget(ctx context.Context, key string) {
	if err := d.client.Del(ctx, "webhook:seen:"+key).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("webhook dedup release failed")
	}
}
