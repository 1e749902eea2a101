package adapter

import (
	"context"

	"emergency-nexus/internal/service/pool/application"
)

// PoolLocalReader 在同一进程内直接读取资源池，用于测试和单进程部署
type PoolLocalReader struct {
	pool *application.PoolService
}

func NewPoolLocalReader(pool *application.PoolService) *PoolLocalReader {
	return &PoolLocalReader{pool: pool}
}

func (r *PoolLocalReader) AvailableCapacity(ctx context.Context, location string) (int, error) {
	return r.pool.TotalAvailable(ctx, location)
}
