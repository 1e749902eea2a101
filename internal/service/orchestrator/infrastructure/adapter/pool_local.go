package adapter

import (
	"context"

	"emergency-nexus/internal/service/pool/application"
	pooldomain "emergency-nexus/internal/service/pool/domain"
)

// PoolLocalAdapter 在同一进程内直接调用资源池服务
type PoolLocalAdapter struct {
	pool *application.PoolService
}

func NewPoolLocalAdapter(pool *application.PoolService) *PoolLocalAdapter {
	return &PoolLocalAdapter{pool: pool}
}

func (a *PoolLocalAdapter) Allocate(ctx context.Context, location string, amount int) (*pooldomain.AllocationResult, error) {
	return a.pool.Allocate(ctx, location, amount)
}

func (a *PoolLocalAdapter) Release(ctx context.Context, reversal pooldomain.Reversal) error {
	_, err := a.pool.Release(ctx, reversal)
	return err
}
