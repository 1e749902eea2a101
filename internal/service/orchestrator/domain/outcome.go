package domain

import (
	"time"

	pooldomain "emergency-nexus/internal/service/pool/domain"
	validationdomain "emergency-nexus/internal/service/validation/domain"
)

// Request 是一次紧急调度请求
type Request struct {
	LocationKey               string `json:"location"`
	RequiredICUBeds           int    `json:"requiredIcuBeds"`
	RequiredAmbulanceCapacity int    `json:"requiredAmbulanceCapacity"`
}

// Reason 是失败结果中机器可读的原因，人看的说明放在 Message 里
type Reason string

const (
	ReasonInsufficientResources Reason = Reason(validationdomain.ReasonInsufficientResources)
	ReasonDownstreamUnavailable Reason = Reason(validationdomain.ReasonDownstreamUnavailable)
	// ReasonReservationFailed 预占阶段失败，已执行补偿
	ReasonReservationFailed Reason = "RESERVATION_FAILED"
)

// Allocations 是两类资源各自的分配结果
type Allocations struct {
	Hospital  *pooldomain.AllocationResult `json:"hospital"`
	Ambulance *pooldomain.AllocationResult `json:"ambulance"`
}

// CommittedData 是成功编排的详细结果
type CommittedData struct {
	Request
	Status      string                  `json:"status"`
	Validation  validationdomain.Result `json:"validation"`
	Allocations Allocations             `json:"allocations"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Outcome 是编排的最终结果。Success 为 true 时只有 Data 有意义，否则看 Reason 和 Step。
// FailedStep 和 ErrorKind 只在预占失败时填写
type Outcome struct {
	Success    bool           `json:"success"`
	SagaID     string         `json:"sagaId"`
	State      State          `json:"state"`
	Message    string         `json:"message,omitempty"`
	Data       *CommittedData `json:"data,omitempty"`
	Reason     Reason         `json:"reason,omitempty"`
	Step       string         `json:"step,omitempty"`
	FailedStep string         `json:"failedStep,omitempty"`
	ErrorKind  string         `json:"errorKind,omitempty"`

	CompensationErrors []string `json:"compensationErrors,omitempty"`
}

// SagaEvent 在每次编排到达终态时发布，供审计方消费
type SagaEvent struct {
	SagaID                    string       `json:"sagaId"`
	State                     State        `json:"state"`
	LocationKey               string       `json:"location"`
	RequiredICUBeds           int          `json:"requiredIcuBeds"`
	RequiredAmbulanceCapacity int          `json:"requiredAmbulanceCapacity"`
	Reason                    Reason       `json:"reason,omitempty"`
	Step                      string       `json:"step,omitempty"`
	Steps                     []StepRecord `json:"steps"`
	CompensationErrors        []string     `json:"compensationErrors,omitempty"`
	At                        time.Time    `json:"at"`
}

// CompensationTask 是投递到重试 topic 的补偿任务
type CompensationTask struct {
	SagaID   string              `json:"sagaId"`
	Reversal pooldomain.Reversal `json:"reversal"`
}
