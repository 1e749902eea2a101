package domain

import (
	"fmt"
	"strings"
)

// Kind 区分两种资源池：ICU 床位（没有占用状态）和救护车运力（FREE/EXHAUSTED）
type Kind string

const (
	KindICUBed    Kind = "ICU_BED"
	KindAmbulance Kind = "AMBULANCE"
)

// ParseKind 解析配置中的资源类型
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindICUBed:
		return KindICUBed, nil
	case KindAmbulance:
		return KindAmbulance, nil
	}
	return "", fmt.Errorf("unknown pool kind %q", s)
}

// TracksOccupancy 只有救护车池维护占用状态
func (k Kind) TracksOccupancy() bool {
	return k == KindAmbulance
}

// Noun 用于拼接给人看的错误信息
func (k Kind) Noun() string {
	if k == KindAmbulance {
		return "ambulance capacity"
	}
	return "ICU beds"
}

// Occupancy 是救护车的占用状态，ICU 池中恒为空
type Occupancy string

const (
	OccupancyNone      Occupancy = ""
	OccupancyFree      Occupancy = "FREE"
	OccupancyExhausted Occupancy = "EXHAUSTED"
)

// ParseOccupancy 接受 FREE/EXHAUSTED，以及旧接口中的 AVAILABLE/BUSY
func ParseOccupancy(s string) (Occupancy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FREE", "AVAILABLE":
		return OccupancyFree, nil
	case "EXHAUSTED", "BUSY":
		return OccupancyExhausted, nil
	}
	return OccupancyNone, fmt.Errorf("status must be either FREE or EXHAUSTED, got %q", s)
}

// NormalizeLocation 统一位置 key，所有边界上的输入都要经过它
func NormalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
