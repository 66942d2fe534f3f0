package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends records to a capped Redis stream.
type RedisStreamSink struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStreamSink(rdb redis.Cmdable, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "audit:activity"
	}
	return &RedisStreamSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (r *RedisStreamSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal failed: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"id":        rec.ID,
			"object_id": rec.ObjectID,
			"record":    payload,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("audit: failed to append to redis stream %s: %w", r.stream, err)
	}
	return nil
}

func (r *RedisStreamSink) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
