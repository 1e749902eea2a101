package bootstrap

import (
	"context"
	"fmt"

	"emergency-nexus/internal/pkg/lock"

	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
)

// NewLocker 根据 lock.driver 创建按位置串行化的锁，并把连接的关闭注册到 appCtx
func NewLocker(appCtx *AppCtx) (lock.Locker, error) {
	cfg := appCtx.Config
	switch cfg.Lock.Driver {
	case "", "local":
		return lock.NewLocalLocker(), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Infra.Redis.Addr,
			Password: cfg.Infra.Redis.Password,
			DB:       cfg.Infra.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Infra.Redis.Addr, err)
		}
		appCtx.AddCloser("redis", func(context.Context) error { return client.Close() })
		zlog.Info().Str("addr", cfg.Infra.Redis.Addr).Msg("Using redis lock")
		return lock.NewRedisLocker(client, cfg.Lock.TTL, lock.WithKeyPrefix(cfg.App.Name+":lock:")), nil

	case "zookeeper":
		conn, err := lock.ConnectZookeeper(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return nil, err
		}
		appCtx.AddCloser("zookeeper", func(context.Context) error {
			conn.Close()
			return nil
		})
		zlog.Info().Strs("servers", cfg.Infra.Zookeeper.Servers).Msg("Using zookeeper lock")
		return lock.NewZookeeperLocker(conn), nil
	}
	return nil, fmt.Errorf("unknown lock driver %q", cfg.Lock.Driver)
}
