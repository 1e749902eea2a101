package infrastructure

import (
	"context"
	"errors"
	"time"

	"emergency-nexus/internal/service/pool/domain"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProviderRepository 是 ProviderRepository 的 GORM 实现
type GormProviderRepository struct {
	db *gorm.DB
}

// NewGormProviderRepository 创建一个新的 GORM 仓储实例
func NewGormProviderRepository(db *gorm.DB) *GormProviderRepository {
	return &GormProviderRepository{db: db}
}

func (r *GormProviderRepository) FindByLocation(ctx context.Context, kind domain.Kind, location string) ([]domain.Provider, error) {
	var models []ProviderModel
	q := r.db.WithContext(ctx).Where("kind = ?", string(kind))
	if location != "" {
		q = q.Where("location_key = ?", location)
	}
	// 按创建时间排序，保证容量相同的提供方顺序稳定
	if err := q.Order("created_at, id").Find(&models).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "find providers")
	}
	out := make([]domain.Provider, 0, len(models))
	for i := range models {
		out = append(out, ToDomainProvider(&models[i]))
	}
	return out, nil
}

func (r *GormProviderRepository) Register(ctx context.Context, p *domain.Provider) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(FromDomainProvider(p))
	if res.Error != nil {
		return false, pkgerrors.Wrap(res.Error, "register provider")
	}
	return res.RowsAffected > 0, nil
}

// ApplyAllocation 在一个事务里锁定相关行、校验版本并写入
func (r *GormProviderRepository) ApplyAllocation(ctx context.Context, result *domain.AllocationResult) ([]domain.Provider, error) {
	var updated []domain.Provider
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range result.Records {
			var model ProviderModel
			// SELECT ... FOR UPDATE
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", rec.ProviderID).
				First(&model).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProviderNotFound
			}
			if err != nil {
				return err
			}
			if model.Version != rec.ExpectedVersion {
				return domain.ErrVersionConflict
			}

			res := tx.Model(&ProviderModel{}).
				Where("id = ? AND version = ?", rec.ProviderID, rec.ExpectedVersion).
				Updates(map[string]interface{}{
					"available_capacity": rec.RemainingCapacity,
					"occupancy":          string(rec.ResultingState),
					"version":            gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ErrVersionConflict
			}

			p := domain.ApplyRecord(ToDomainProvider(&model), rec, time.Now())
			updated = append(updated, p)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrProviderNotFound) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(err, "apply allocation")
	}
	return updated, nil
}

// ApplyRelease 先写入补偿记录，唯一索引冲突说明已经执行过
func (r *GormProviderRepository) ApplyRelease(ctx context.Context, reversal domain.Reversal) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := &ReleaseModel{
			AllocationID: reversal.AllocationID,
			Kind:         string(reversal.Kind),
			LocationKey:  reversal.LocationKey,
			Amount:       reversal.Total(),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(ledger)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		for _, e := range reversal.Entries {
			var model ProviderModel
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", e.ProviderID).First(&model).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProviderNotFound
			}
			if err != nil {
				return err
			}
			p := domain.ApplyReversalEntry(ToDomainProvider(&model), e, time.Now())
			err = tx.Model(&ProviderModel{}).Where("id = ?", e.ProviderID).Updates(map[string]interface{}{
				"available_capacity": p.AvailableCapacity,
				"occupancy":          string(p.Occupancy),
				"version":            gorm.Expr("version + 1"),
			}).Error
			if err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrProviderNotFound) {
			return false, err
		}
		return false, pkgerrors.Wrap(err, "apply release")
	}
	return applied, nil
}
