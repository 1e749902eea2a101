package domain

import (
	"fmt"
	"strings"
	"time"

	"emergency-nexus/internal/pkg/apperr"
)

// Reason 是拒绝原因
type Reason string

const (
	ReasonInsufficientResources Reason = "INSUFFICIENT_RESOURCES"
	ReasonDownstreamUnavailable Reason = "DOWNSTREAM_SERVICE_UNAVAILABLE"
)

const unavailableMessage = "Cannot validate request due to service unavailability"

// Request 是一次校验的输入，构造后不再修改
type Request struct {
	LocationKey               string `json:"location"`
	RequiredICUBeds           int    `json:"requiredIcuBeds"`
	RequiredAmbulanceCapacity int    `json:"requiredAmbulanceCapacity"`
}

// NewRequest 规范化位置并校验数量
func NewRequest(location string, icuBeds, ambulanceCapacity int) (Request, error) {
	location = strings.ToLower(strings.TrimSpace(location))
	if location == "" {
		return Request{}, apperr.New(apperr.KindValidationInput, "validation.NewRequest", "location is required")
	}
	if icuBeds < 0 || ambulanceCapacity < 0 {
		return Request{}, apperr.New(apperr.KindValidationInput, "validation.NewRequest", "Required resources must be non-negative")
	}
	return Request{LocationKey: location, RequiredICUBeds: icuBeds, RequiredAmbulanceCapacity: ambulanceCapacity}, nil
}

// Check 是单个资源维度的校验结果
type Check struct {
	Required   int  `json:"required"`
	Available  int  `json:"available"`
	Sufficient bool `json:"sufficient"`
}

func newCheck(required, available int) Check {
	return Check{Required: required, Available: available, Sufficient: available >= required}
}

// Resources 列出所有参与决策的资源维度
type Resources struct {
	ICUBeds           Check `json:"icuBeds"`
	AmbulanceCapacity Check `json:"ambulanceCapacity"`
}

// AllSufficient 是所有维度的逻辑与
func (r Resources) AllSufficient() bool {
	return r.ICUBeds.Sufficient && r.AmbulanceCapacity.Sufficient
}

// Result 是一次校验的结论。Approved 当且仅当所有维度都满足
type Result struct {
	Approved    bool      `json:"approved"`
	LocationKey string    `json:"location"`
	Resources   Resources `json:"resources"`
	Reason      Reason    `json:"reason,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"` // 下游失败时的原始错误，仅用于排查
	Timestamp   time.Time `json:"timestamp"`
}

// Decide 是纯函数：只依赖两个读数和当前时间
func Decide(req Request, availableICUBeds, availableAmbulanceCapacity int, now time.Time) Result {
	resources := Resources{
		ICUBeds:           newCheck(req.RequiredICUBeds, availableICUBeds),
		AmbulanceCapacity: newCheck(req.RequiredAmbulanceCapacity, availableAmbulanceCapacity),
	}
	result := Result{
		Approved:    resources.AllSufficient(),
		LocationKey: req.LocationKey,
		Resources:   resources,
		Timestamp:   now,
	}
	if result.Approved {
		return result
	}

	var reasons []string
	if !resources.ICUBeds.Sufficient {
		reasons = append(reasons, fmt.Sprintf("Insufficient ICU beds (need %d, have %d)",
			resources.ICUBeds.Required, resources.ICUBeds.Available))
	}
	if !resources.AmbulanceCapacity.Sufficient {
		reasons = append(reasons, fmt.Sprintf("Insufficient ambulance capacity (need %d, have %d)",
			resources.AmbulanceCapacity.Required, resources.AmbulanceCapacity.Available))
	}
	result.Reason = ReasonInsufficientResources
	result.Message = strings.Join(reasons, "; ")
	return result
}

// Unavailable 是下游读取失败时的拒绝结论：无法确认的资源一律视为不足
func Unavailable(req Request, cause error, now time.Time) Result {
	result := Result{
		Approved:    false,
		LocationKey: req.LocationKey,
		Resources: Resources{
			ICUBeds:           Check{Required: req.RequiredICUBeds},
			AmbulanceCapacity: Check{Required: req.RequiredAmbulanceCapacity},
		},
		Reason:    ReasonDownstreamUnavailable,
		Message:   unavailableMessage,
		Timestamp: now,
	}
	if cause != nil {
		result.Error = cause.Error()
	}
	return result
}
