package infrastructure

import (
	"time"

	"emergency-nexus/internal/service/pool/domain"
)

// ProviderModel 对应数据库中的 pool_providers 表
type ProviderModel struct {
	ID                string `gorm:"primaryKey;size:64"`
	Name              string `gorm:"size:255"`
	Kind              string `gorm:"size:32;index:idx_kind_location,priority:1"`
	LocationKey       string `gorm:"size:128;index:idx_kind_location,priority:2"`
	AvailableCapacity int
	Occupancy         string `gorm:"size:16"`
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProviderModel) TableName() string {
	return "pool_providers"
}

// ReleaseModel 记录已经执行过的补偿，allocation_id 唯一，保证补偿只生效一次
type ReleaseModel struct {
	ID           uint   `gorm:"primaryKey"`
	AllocationID string `gorm:"size:64;uniqueIndex"`
	Kind         string `gorm:"size:32"`
	LocationKey  string `gorm:"size:128"`
	Amount       int
	CreatedAt    time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ReleaseModel) TableName() string {
	return "pool_releases"
}

// ToDomainProvider 将数据库模型转换为领域模型
func ToDomainProvider(m *ProviderModel) domain.Provider {
	return domain.Provider{
		ID:                m.ID,
		Name:              m.Name,
		Kind:              domain.Kind(m.Kind),
		LocationKey:       m.LocationKey,
		AvailableCapacity: m.AvailableCapacity,
		Occupancy:         domain.Occupancy(m.Occupancy),
		Version:           m.Version,
		UpdatedAt:         m.UpdatedAt,
	}
}

// FromDomainProvider 将领域模型转换为数据库模型
func FromDomainProvider(p *domain.Provider) *ProviderModel {
	return &ProviderModel{
		ID:                p.ID,
		Name:              p.Name,
		Kind:              string(p.Kind),
		LocationKey:       p.LocationKey,
		AvailableCapacity: p.AvailableCapacity,
		Occupancy:         string(p.Occupancy),
		Version:           p.Version,
		UpdatedAt:         p.UpdatedAt,
	}
}
