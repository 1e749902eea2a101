package domain

import (
	"time"
)

// AllocationRecord 描述一次分配中某个提供方被扣减的情况
type AllocationRecord struct {
	ProviderID        string    `json:"providerId"`
	ProviderName      string    `json:"providerName,omitempty"`
	AmountAllocated   int       `json:"amountAllocated"`
	RemainingCapacity int       `json:"remainingCapacity"`
	ResultingState    Occupancy `json:"resultingState,omitempty"`
	// PreviousState 和 ExpectedVersion 用于补偿和乐观锁校验
	PreviousState   Occupancy `json:"previousState,omitempty"`
	ExpectedVersion int64     `json:"-"`
}

// AllocationResult 是一次 allocate 调用的完整结果
type AllocationResult struct {
	AllocationID string             `json:"allocationId"`
	Kind         Kind               `json:"kind"`
	LocationKey  string             `json:"location"`
	Requested    int                `json:"requested"`
	Records      []AllocationRecord `json:"allocations"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// TotalAllocated 是所有记录的扣减量之和，成功时恒等于 Requested
func (r *AllocationResult) TotalAllocated() int {
	total := 0
	for _, rec := range r.Records {
		total += rec.AmountAllocated
	}
	return total
}

// ReversalEntry 是对单个提供方的补偿动作
type ReversalEntry struct {
	ProviderID   string    `json:"providerId"`
	Amount       int       `json:"amount"`
	RestoreState Occupancy `json:"restoreState,omitempty"`
}

// Reversal 是一次分配的精确逆操作，可以序列化后重试或持久化
type Reversal struct {
	AllocationID string          `json:"allocationId"`
	Kind         Kind            `json:"kind"`
	LocationKey  string          `json:"location"`
	Entries      []ReversalEntry `json:"entries"`
}

// Reversal 根据分配时记录下来的结果构造补偿，不重新计算任何数量
func (r *AllocationResult) Reversal() Reversal {
	entries := make([]ReversalEntry, 0, len(r.Records))
	for _, rec := range r.Records {
		entries = append(entries, ReversalEntry{
			ProviderID:   rec.ProviderID,
			Amount:       rec.AmountAllocated,
			RestoreState: rec.PreviousState,
		})
	}
	return Reversal{
		AllocationID: r.AllocationID,
		Kind:         r.Kind,
		LocationKey:  r.LocationKey,
		Entries:      entries,
	}
}

// Total 是补偿要归还的总量
func (r Reversal) Total() int {
	total := 0
	for _, e := range r.Entries {
		total += e.Amount
	}
	return total
}

// IsEmpty 表示对应的分配没有扣减任何东西，补偿可以直接跳过
func (r Reversal) IsEmpty() bool {
	return r.Total() == 0
}

// ApplyRecord 把一条分配记录应用到提供方上，返回新的提供方
func ApplyRecord(p Provider, rec AllocationRecord, now time.Time) Provider {
	p.AvailableCapacity = rec.RemainingCapacity
	p.Occupancy = rec.ResultingState
	p.Version++
	p.UpdatedAt = now
	return p
}

// ApplyReversalEntry 归还容量并恢复分配前的占用状态
func ApplyReversalEntry(p Provider, e ReversalEntry, now time.Time) Provider {
	p.AvailableCapacity += e.Amount
	if p.Kind.TracksOccupancy() {
		p.Occupancy = e.RestoreState
		if p.Occupancy == OccupancyNone {
			p.Occupancy = OccupancyFree
		}
	}
	p.Version++
	p.UpdatedAt = now
	return p
}
