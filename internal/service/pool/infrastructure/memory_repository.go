package infrastructure

import (
	"context"
	"sync"
	"time"

	"emergency-nexus/internal/service/pool/domain"
)

// MemoryProviderRepository 是进程内的仓储实现，用于本地运行和测试
type MemoryProviderRepository struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider // key: provider id
	order     []string                   // 注册顺序，保证查询结果稳定
	released  map[string]struct{}        // 已执行过的补偿
	now       func() time.Time
}

func NewMemoryProviderRepository() *MemoryProviderRepository {
	return &MemoryProviderRepository{
		providers: make(map[string]domain.Provider),
		released:  make(map[string]struct{}),
		now:       time.Now,
	}
}

func (r *MemoryProviderRepository) FindByLocation(_ context.Context, kind domain.Kind, location string) ([]domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Provider, 0)
	for _, id := range r.order {
		p := r.providers[id]
		if p.Kind != kind {
			continue
		}
		if location != "" && p.LocationKey != location {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *MemoryProviderRepository) Register(_ context.Context, p *domain.Provider) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[p.ID]; ok {
		return false, nil
	}
	r.order = append(r.order, p.ID)
	r.providers[p.ID] = *p
	return true, nil
}

// ApplyAllocation 先校验所有版本号，全部匹配后才写入
func (r *MemoryProviderRepository) ApplyAllocation(_ context.Context, result *domain.AllocationResult) ([]domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range result.Records {
		p, ok := r.providers[rec.ProviderID]
		if !ok {
			return nil, domain.ErrProviderNotFound
		}
		if p.Version != rec.ExpectedVersion {
			return nil, domain.ErrVersionConflict
		}
	}

	now := r.now()
	updated := make([]domain.Provider, 0, len(result.Records))
	for _, rec := range result.Records {
		p := domain.ApplyRecord(r.providers[rec.ProviderID], rec, now)
		r.providers[p.ID] = p
		updated = append(updated, p)
	}
	return updated, nil
}

func (r *MemoryProviderRepository) ApplyRelease(_ context.Context, reversal domain.Reversal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, done := r.released[reversal.AllocationID]; done {
		return false, nil
	}
	for _, e := range reversal.Entries {
		if _, ok := r.providers[e.ProviderID]; !ok {
			return false, domain.ErrProviderNotFound
		}
	}

	now := r.now()
	for _, e := range reversal.Entries {
		r.providers[e.ProviderID] = domain.ApplyReversalEntry(r.providers[e.ProviderID], e, now)
	}
	r.released[reversal.AllocationID] = struct{}{}
	return true, nil
}
