package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRateLimitPrefix = "bank:rate_limit"

// RateLimiter counts hits for a subject within a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// hitScript increments the window counter, starting the window on the first
// hit, and returns {count, remaining window in ms}.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RedisRateLimiter is a fixed-window limiter shared by every API replica.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// ConsumeRateLimit records one hit for subject in scope. Windows shorter than
// a second are rounded up to one second.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if limit <= 0 || subject == "" {
		return 0, 0, nil
	}
	if window < time.Second {
		window = time.Second
	}

	key := r.prefix + ":" + scope + ":" + subject
	values, err := hitScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	if len(values) != 2 {
		return 0, 0, fmt.Errorf("rate limit %s: unexpected reply length %d", scope, len(values))
	}

	ttl := time.Duration(values[1]) * time.Millisecond
	if ttl <= 0 {
		ttl = window
	}
	return int(values[0]), retryAfterSeconds(ttl), nil
}

// retryAfterSeconds rounds ttl up to whole seconds, never below one.
func retryAfterSeconds(ttl time.Duration) int {
	secs := int((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
