package domain

import (
	"sort"

	"emergency-nexus/internal/pkg/apperr"
)

const opAllocate = "pool.Allocate"

// Allocate 是贪心分配算法：按可用容量从大到小依次扣减，直到满足 amount。
// 它不修改入参，返回的记录描述了每个被扣减提供方的扣减后状态。
// 容量相同的提供方保持传入顺序。
func Allocate(kind Kind, providers []Provider, amount int) ([]AllocationRecord, error) {
	if amount < 0 {
		return nil, apperr.New(apperr.KindValidationInput, opAllocate, "amount must be non-negative")
	}
	if amount == 0 {
		return []AllocationRecord{}, nil
	}

	// 1. 只保留有剩余容量的提供方
	candidates := FilterCandidates(providers)
	if len(candidates) == 0 {
		return nil, apperr.New(apperr.KindNotFound, opAllocate, "No providers with available %s in this location", kind.Noun())
	}

	// 2. 总量不足直接拒绝，不做任何扣减
	total := TotalCapacity(candidates)
	if total < amount {
		return nil, apperr.New(apperr.KindInsufficientCapacity, opAllocate,
			"Insufficient %s. Required: %d, Available: %d", kind.Noun(), amount, total)
	}

	// 3. 按容量降序，稳定排序
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].AvailableCapacity > candidates[j].AvailableCapacity
	})

	// 4. 贪心扣减
	remaining := amount
	records := make([]AllocationRecord, 0, len(candidates))
	for _, p := range candidates {
		if remaining == 0 {
			break
		}
		take := min(p.AvailableCapacity, remaining)
		left := p.AvailableCapacity - take

		state := p.Occupancy
		if kind.TracksOccupancy() && left == 0 {
			state = OccupancyExhausted
		}

		records = append(records, AllocationRecord{
			ProviderID:        p.ID,
			ProviderName:      p.Name,
			AmountAllocated:   take,
			RemainingCapacity: left,
			ResultingState:    state,
			PreviousState:     p.Occupancy,
			ExpectedVersion:   p.Version,
		})
		remaining -= take
	}
	return records, nil
}
