package port

import (
	"context"

	"emergency-nexus/internal/service/orchestrator/domain"
	pooldomain "emergency-nexus/internal/service/pool/domain"
	validationdomain "emergency-nexus/internal/service/validation/domain"
)

// Validator 是校验服务的出站端口。只有输入错误和校验服务本身不可达时返回 error
type Validator interface {
	Validate(ctx context.Context, location string, icuBeds, ambulanceCapacity int) (validationdomain.Result, error)
}

// PoolReserver 是单个资源池的出站端口
type PoolReserver interface {
	Allocate(ctx context.Context, location string, amount int) (*pooldomain.AllocationResult, error)
	// Release 是幂等的，重复归还同一个 AllocationID 不会重复加回容量
	Release(ctx context.Context, reversal pooldomain.Reversal) error
}

// EventPublisher 发布编排终态事件
type EventPublisher interface {
	PublishSagaEvent(ctx context.Context, event domain.SagaEvent) error
}

// CompensationRetrier 把失败的补偿交给异步重试
type CompensationRetrier interface {
	ScheduleCompensation(ctx context.Context, task domain.CompensationTask) error
}
