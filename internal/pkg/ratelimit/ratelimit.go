// Package ratelimit 提供按商店限制请求速率的令牌桶。
//
// RedisLimiter 在多个抓取进程间共享同一个桶；LocalLimiter 只在进程内生效。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

const keyPrefix = "eazyfind:ratelimit:"

// KeyForStore 返回商店的令牌桶 key。
func KeyForStore(store string) string {
	return keyPrefix + strings.ToLower(store)
}

const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0, burst}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1]) or burst
local ts = tonumber(data[2]) or now

local refill = (math.max(0, now - ts) * rate) / 1000.0
tokens = math.min(burst, tokens + refill)

local wait_ms = 0
local allowed = tokens >= requested
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms, tokens}
`

// RedisLimiter 基于 Redis Lua 脚本的分布式令牌桶。
type RedisLimiter struct {
	rdb    *redis.Client
	key    string
	rate   float64
	burst  float64
	logger *slog.Logger
	script *redis.Script
}

// NewRedisLimiter 创建商店共享的令牌桶。rate 为每秒令牌数，burst 为桶容量。
func NewRedisLimiter(rdb *redis.Client, log *slog.Logger, store string, rate, burst float64) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		key:    KeyForStore(store),
		rate:   rate,
		burst:  burst,
		logger: logger.OrDiscard(log),
		script: redis.NewScript(tokenBucketLua),
	}
}

// Acquire 阻塞直到获取一个令牌或 ctx 结束。
func (r *RedisLimiter) Acquire(ctx context.Context) error {
	if r == nil || r.rate <= 0 || r.burst <= 0 {
		return nil
	}

	const jitterMax = 10 * time.Millisecond
	start := time.Now()
	for {
		allowed, waitMs, err := r.tryAcquire(ctx)
		if err != nil {
			return err
		}
		if allowed {
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		wait += rand.N(jitterMax)
		r.logger.Debug("rate limited, waiting",
			slog.String("key", r.key),
			slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			metrics.RateLimitTimeoutTotal.Inc()
			return fmt.Errorf("%w: %v", ErrRateLimitTimeout, ctx.Err())
		case <-timer.C:
		}
	}
}

func (r *RedisLimiter) tryAcquire(ctx context.Context) (bool, int64, error) {
	now := time.Now().UnixMilli()
	res, err := r.script.Run(ctx, r.rdb, []string{r.key}, r.rate, r.burst, now, 1).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("ratelimit invalid result")
	}
	return toInt64(values[0]) == 1, toInt64(values[1]), nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

// LocalLimiter 进程内令牌桶。
type LocalLimiter struct {
	lim *rate.Limiter
}

// NewLocalLimiter 创建进程内限流器，rps <= 0 时不限流。
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	if rps <= 0 {
		return &LocalLimiter{lim: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &LocalLimiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Acquire 阻塞直到获取一个令牌或 ctx 结束。
func (l *LocalLimiter) Acquire(ctx context.Context) error {
	start := time.Now()
	err := l.lim.Wait(ctx)
	metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RateLimitTimeoutTotal.Inc()
		return fmt.Errorf("%w: %v", ErrRateLimitTimeout, err)
	}
	return nil
}
