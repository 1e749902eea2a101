package domain

import "context"

// ProviderRepository 是资源池的持久化接口，由 infrastructure 层实现
type ProviderRepository interface {
	// FindByLocation 返回某位置上的全部提供方，location 为空时返回全部
	FindByLocation(ctx context.Context, kind Kind, location string) ([]Provider, error)
	// Register 插入新的提供方，ID 已存在时保持原状并返回 false，重启时不会重置容量
	Register(ctx context.Context, p *Provider) (created bool, err error)
	// ApplyAllocation 原子地写入一次分配：任意一条记录的版本号不匹配时返回 ErrVersionConflict 且不写入任何内容
	ApplyAllocation(ctx context.Context, result *AllocationResult) ([]Provider, error)
	// ApplyRelease 归还一次分配，同一个 AllocationID 只生效一次，applied 表示本次是否真正执行
	ApplyRelease(ctx context.Context, reversal Reversal) (applied bool, err error)
}
