package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder aggregates events into Redis hashes:
//
//	<prefix>:total            outcome -> count
//	<prefix>:minute:<yyyymmddhhmm>  outcome -> count (expires after ttl)
//	<prefix>:key:<key>        outcome -> count (only with tracked keys, expires after ttl)
type RedisRecorder struct {
	rdb *redis.Client

	prefix    string
	ttl       time.Duration
	trackKeys bool
}

type RedisOption func(*RedisRecorder)

func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

// WithTrackKeys stores per dedup key counters. Generated keys are unique, so only enable
// this when callers pass stable keys.
func WithTrackKeys(track bool) RedisOption {
	return func(r *RedisRecorder) { r.trackKeys = track }
}

func NewRedisRecorder(rdb *redis.Client, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "pricebot:gateway",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := ev.Outcome
	if field == "" {
		field = OutcomeError
	}

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.prefix+":total", field, 1)
	pipe.HIncrBy(ctx, r.prefix+":total", "attempts", int64(ev.Attempts))

	bucketKey := fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucketKey, r.ttl)
	}

	if r.trackKeys {
		if k := strings.TrimSpace(ev.Key); k != "" {
			keyKey := r.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if r.ttl > 0 {
				pipe.Expire(ctx, keyKey, r.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
