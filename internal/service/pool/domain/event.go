package domain

import "time"

// EventType 是资源池变化的类型
type EventType string

const (
	EventAllocated  EventType = "ALLOCATED"
	EventReleased   EventType = "RELEASED"
	EventRegistered EventType = "REGISTERED"
)

// PoolEvent 推送给库存看板等外部视图
type PoolEvent struct {
	Type          EventType  `json:"type"`
	Kind          Kind       `json:"kind"`
	LocationKey   string     `json:"location"`
	AllocationID  string     `json:"allocationId,omitempty"`
	Amount        int        `json:"amount"`
	Providers     []Provider `json:"providers"`
	TotalCapacity int        `json:"totalCapacity"`
	At            time.Time  `json:"at"`
}

// EventSink 接收资源池事件，实现方不能阻塞调用方
type EventSink interface {
	Publish(event PoolEvent)
}
