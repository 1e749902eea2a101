// Package pool 组装一个资源池服务：ICU 床位池和救护车池共用这套实现。
package pool

import (
	"context"
	"fmt"

	"emergency-nexus/internal/pkg/bootstrap"
	"emergency-nexus/internal/pkg/ratelimit"
	"emergency-nexus/internal/service/pool/application"
	"emergency-nexus/internal/service/pool/domain"
	"emergency-nexus/internal/service/pool/infrastructure"
	"emergency-nexus/internal/service/pool/interfaces"

	zlog "github.com/rs/zerolog/log"
)

// Wire 根据配置创建仓储、锁和实时推送，预置提供方并注册路由
func Wire(appCtx *bootstrap.AppCtx, kind domain.Kind, prefix string) error {
	cfg := appCtx.Config
	if cfg.Pool.Kind != "" {
		configured, err := domain.ParseKind(cfg.Pool.Kind)
		if err != nil {
			return err
		}
		if configured != kind {
			return fmt.Errorf("config is for a %s pool, service serves %s", configured, kind)
		}
	}

	// 1. 仓储
	var repo domain.ProviderRepository
	switch cfg.Pool.Store {
	case "", "memory":
		repo = infrastructure.NewMemoryProviderRepository()
	case "mysql":
		db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL)
		if err != nil {
			return err
		}
		appCtx.AddCloser("mysql", func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		repo = infrastructure.NewGormProviderRepository(db)
	default:
		return fmt.Errorf("unknown pool store %q", cfg.Pool.Store)
	}

	// 2. 按位置串行化的锁
	locker, err := bootstrap.NewLocker(appCtx)
	if err != nil {
		return err
	}

	// 3. 实时推送
	hub := interfaces.NewFeedHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)
	appCtx.AddCloser("pool-feed", func(context.Context) error {
		stopHub()
		return nil
	})

	svc := application.NewPoolService(kind, repo, locker, appCtx.Tracer,
		application.WithEventSink(hub),
		application.WithMaxConflictRetries(cfg.Pool.MaxConflictRetries),
		application.WithLockTimeout(cfg.Lock.WaitTimeout),
	)

	// 4. 预置提供方
	for _, seed := range cfg.Pool.Seed {
		p, err := domain.NewProvider(seed.ID, seed.Name, kind, seed.Location, seed.Capacity)
		if err != nil {
			return fmt.Errorf("invalid seed provider %q: %w", seed.ID, err)
		}
		if err := svc.Register(context.Background(), p); err != nil {
			return err
		}
	}
	zlog.Info().Int("providers", len(cfg.Pool.Seed)).Str("kind", string(kind)).Str("store", cfg.Pool.Store).Msg("Pool ready")

	limiter := ratelimit.New(cfg.HTTP.RateLimit.RPS, cfg.HTTP.RateLimit.Burst)
	interfaces.NewPoolHandler(svc, prefix, hub, limiter.Middleware).RegisterRoutes(appCtx.Mux)
	return nil
}
