package application

import (
	"emergency-nexus/internal/service/pool/domain"
)

// AllocateRequest 是分配接口的请求体，location 也可以用旧字段名 city 传入
type AllocateRequest struct {
	Location string `json:"location"`
	City     string `json:"city,omitempty"`
	Amount   *int   `json:"amount"`
}

// LocationKey 返回规范化后的位置
func (r *AllocateRequest) LocationKey() string {
	if r.Location != "" {
		return domain.NormalizeLocation(r.Location)
	}
	return domain.NormalizeLocation(r.City)
}

// ListResponse 是查询接口的响应体
type ListResponse struct {
	Success       bool              `json:"success"`
	Count         int               `json:"count"`
	Data          []domain.Provider `json:"data"`
	TotalCapacity int               `json:"totalCapacity"`
}

// AllocateResponse 是分配接口的响应体
type AllocateResponse struct {
	Success bool                     `json:"success"`
	Data    *domain.AllocationResult `json:"data"`
}

// ReleaseResponse 是补偿接口的响应体，Applied 为 false 表示该分配此前已经被归还
type ReleaseResponse struct {
	Success bool `json:"success"`
	Applied bool `json:"applied"`
}
