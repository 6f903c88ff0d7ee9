package telephony

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"callbridge/pkg/utils"
)

// EventDeduper remembers provider event ids. FirstDelivery is true exactly
// once per id within the retention window.
type EventDeduper interface {
	FirstDelivery(ctx context.Context, provider, eventID string) (bool, error)
}

// RedisDeduper marks ids with SET NX and a TTL.
type RedisDeduper struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisDeduper(rdb redis.Cmdable, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) FirstDelivery(ctx context.Context, provider, eventID string) (bool, error) {
	return utils.MarkOnce(ctx, d.rdb, "webhook:"+provider+":"+eventID, d.ttl)
}
