// Package runguard 防止同一分类的运行在多个 worker 之间重叠。
package runguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "eazyfind:runguard:"

// ErrHeld 该分类已有运行持有锁。
var ErrHeld = errors.New("run guard held")

// 仅当 token 匹配时删除，避免释放他人重新获取的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard 基于 Redis SETNX 的分类运行锁。
type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

// Lease 一次成功获取的锁。
type Lease struct {
	guard *Guard
	key   string
	token string
}

// New 创建运行锁。ttl 应大于单次运行的最大时长，进程崩溃时锁在 ttl 后自动失效。
func New(rdb *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Guard{rdb: rdb, ttl: ttl}
}

// Key 返回某分类的锁键。
func Key(category string) string {
	return keyPrefix + strings.ToLower(category)
}

// Acquire 尝试获取分类锁，已被持有时返回 ErrHeld。
func (g *Guard) Acquire(ctx context.Context, category string) (*Lease, error) {
	key := Key(category)
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("runguard setnx: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, category)
	}
	return &Lease{guard: g, key: key, token: token}, nil
}

// Held 判断分类锁当前是否被持有。
func (g *Guard) Held(ctx context.Context, category string) (bool, error) {
	n, err := g.rdb.Exists(ctx, Key(category)).Result()
	if err != nil {
		return false, fmt.Errorf("runguard exists: %w", err)
	}
	return n > 0, nil
}

// Release 释放锁；锁已过期或被他人持有时不做任何事。
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.guard.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("runguard release: %w", err)
	}
	return nil
}
