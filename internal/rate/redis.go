package rate

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindow bumps the counter, starting the window on the first hit, and
// returns the count and the remaining window in milliseconds.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter shares fixed windows between processes. When Redis is
// unreachable it degrades to a per-process MemoryLimiter.
type RedisLimiter struct {
	rdb      *redis.Client
	prefix   string
	fallback *MemoryLimiter
	logger   *slog.Logger
}

func NewRedis(rdb *redis.Client, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{rdb: rdb, prefix: "memologist:rl:", fallback: NewMemory(), logger: logger}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration) {
	res, err := incrWindow.Run(ctx, r.rdb, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		r.logger.Warn("rate: redis unavailable, using in-process limiter", "key", key, "error", err)
		return r.fallback.Allow(ctx, key, limit, window)
	}
	remaining := time.Duration(res[1]) * time.Millisecond
	if remaining < 0 {
		remaining = window
	}
	return res[0] <= int64(limit), remaining
}
