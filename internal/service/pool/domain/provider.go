package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidProvider  = errors.New("invalid provider")
	ErrProviderNotFound = errors.New("provider not found")
	// ErrVersionConflict 表示写入时发现提供方已被其他请求修改
	ErrVersionConflict  = errors.New("provider version conflict")
)

// Provider 是某个位置上的一个资源提供方：一家医院或一辆救护车
type Provider struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Kind              Kind      `json:"kind"`
	LocationKey       string    `json:"location"`
	AvailableCapacity int       `json:"availableCapacity"`
	Occupancy         Occupancy `json:"status,omitempty"`
	Version           int64     `json:"version"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewProvider 创建提供方，并根据容量推导初始占用状态
func NewProvider(id, name string, kind Kind, location string, capacity int) (*Provider, error) {
	if id == "" || capacity < 0 {
		return nil, ErrInvalidProvider
	}
	location = NormalizeLocation(location)
	if location == "" {
		return nil, ErrInvalidProvider
	}
	p := &Provider{
		ID:                id,
		Name:              name,
		Kind:              kind,
		LocationKey:       location,
		AvailableCapacity: capacity,
		UpdatedAt:         time.Now(),
	}
	if kind.TracksOccupancy() {
		p.Occupancy = OccupancyFree
		if capacity == 0 {
			p.Occupancy = OccupancyExhausted
		}
	}
	return p, nil
}

// IsCandidate 判断提供方能否参与分配
func (p *Provider) IsCandidate() bool {
	if p.AvailableCapacity <= 0 {
		return false
	}
	return !p.Kind.TracksOccupancy() || p.Occupancy == OccupancyFree
}

// FilterCandidates 按原有顺序挑出可参与分配的提供方
func FilterCandidates(providers []Provider) []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsCandidate() {
			out = append(out, p)
		}
	}
	return out
}

// FilterByOccupancy 按原有顺序挑出处于指定占用状态的提供方
func FilterByOccupancy(providers []Provider, status Occupancy) []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.Occupancy == status {
			out = append(out, p)
		}
	}
	return out
}

// TotalCapacity 是一组提供方的可用容量之和
func TotalCapacity(providers []Provider) int {
	total := 0
	for _, p := range providers {
		total += p.AvailableCapacity
	}
	return total
}
