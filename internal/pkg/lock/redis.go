package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 只有持有者才能删除锁，防止锁过期后误删别人的锁
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker 基于 SET NX PX 实现的分布式锁
type RedisLocker struct {
	client redis.UniversalClient
	script *redis.Script
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

type RedisOption func(*RedisLocker)

// WithRetryInterval 设置抢锁失败后的重试间隔
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.retry = d
	}
}

// WithKeyPrefix 设置锁 key 的前缀
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker ttl 是锁的最长持有时间，持有者崩溃后锁会自动过期
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		script: redis.NewScript(unlockScript),
		ttl:    ttl,
		retry:  20 * time.Millisecond,
		prefix: "lock:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis lock %s: %w", redisKey, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 调用方的 ctx 可能已经结束，释放锁使用独立的 ctx
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_ = l.script.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}
