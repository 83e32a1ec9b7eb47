// internal/cache/pool_cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// PoolCache is a read-through Redis cache in front of another hunt.PoolProvider.
// Redis failures degrade to reading the source directly.
type PoolCache struct {
	rdb    redis.Cmdable
	source hunt.PoolProvider
	ttl    time.Duration
	log    *logrus.Logger
}

func NewPoolCache(rdb redis.Cmdable, source hunt.PoolProvider, ttl time.Duration, logger *logrus.Logger) *PoolCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PoolCache{rdb: rdb, source: source, ttl: ttl, log: logger}
}

func (c *PoolCache) key(name string) string {
	return "pool:" + name
}

func (c *PoolCache) ObjectsForList(ctx context.Context, name string) ([]string, error) {
	data, err := c.rdb.Get(ctx, c.key(name)).Bytes()
	switch {
	case err == nil:
		var objects []string
		if jerr := json.Unmarshal(data, &objects); jerr == nil {
			return objects, nil
		}
		c.log.WithField("list", name).Warn("discarding undecodable cached pool")
	case !errors.Is(err, redis.Nil):
		c.log.WithField("list", name).WithError(err).Warn("pool cache read failed")
	}

	objects, err := c.source.ObjectsForList(ctx, name)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(objects); err == nil {
		if err := c.rdb.Set(ctx, c.key(name), data, c.ttl).Err(); err != nil {
			c.log.WithField("list", name).WithError(err).Warn("pool cache write failed")
		}
	}
	return objects, nil
}

// Invalidate drops a cached pool, e.g. after the list is edited.
func (c *PoolCache) Invalidate(ctx context.Context, name string) error {
	return c.rdb.Del(ctx, c.key(name)).Err()
}
