package port

import "context"

// CapacityReader 读取某位置某类资源当前可分配的总量
type CapacityReader interface {
	AvailableCapacity(ctx context.Context, location string) (int, error)
}

// AdmissionPolicy 是可配置的准入规则，返回 false 的请求视为非法输入
type AdmissionPolicy interface {
	Admit(ctx context.Context, location string, icuBeds, ambulanceCapacity int) (bool, error)
}
