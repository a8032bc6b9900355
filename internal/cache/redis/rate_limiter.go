package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// RateLimiter implements domain.RateLimiter with fixed windows: one counter
// per key and window, incremented and given a TTL in the same pipeline.
type RateLimiter struct {
	c   *Client
	now func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c, now: time.Now}
}

func (rl *RateLimiter) windowKey(key string, window time.Duration) string {
	bucket := rl.now().UnixNano() / window.Nanoseconds()
	return rl.c.Key("ratelimit:" + key + ":" + strconv.FormatInt(bucket, 10))
}

// Allow counts the request and reports whether it is within limit for the
// current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 || limit <= 0 {
		return true, nil
	}
	k := rl.windowKey(key, window)

	pipe := rl.c.Underlying().TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
