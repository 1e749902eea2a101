package domain

import (
	"time"

	"emergency-nexus/internal/pkg/apperr"
	pooldomain "emergency-nexus/internal/service/pool/domain"
)

// Step 名称，出现在失败结果的 step 字段中
const (
	StepValidation   = "validation"
	StepICUBeds      = "reserve_icu_beds"
	StepAmbulances   = "reserve_ambulances"
	StepCompensation = "compensation"
)

// StepRecord 记录一次状态迁移
type StepRecord struct {
	Name  string    `json:"name"`
	State State     `json:"state"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// Saga 只在一次编排调用期间存在，不做持久化。
// reversals 的长度始终等于已成功预占的步骤数，补偿按后进先出执行。
type Saga struct {
	ID          string
	LocationKey string
	State       State
	Steps       []StepRecord

	// CompensationErrors 记录补偿失败，不会中断后续补偿
	CompensationErrors []string

	reversals []pooldomain.Reversal
}

func NewSaga(id, location string, now time.Time) *Saga {
	return &Saga{
		ID:          id,
		LocationKey: location,
		State:       StateInit,
		Steps:       []StepRecord{{Name: "start", State: StateInit, At: now}},
	}
}

// Transition 迁移到 to 状态并记录步骤，非法迁移是程序错误
func (s *Saga) Transition(to State, step string, cause error, now time.Time) error {
	if s.State.IsTerminal() {
		return apperr.New(apperr.KindInternal, "saga.Transition", "saga already finished in %s", s.State)
	}
	if !CanTransition(s.State, to) {
		return apperr.New(apperr.KindInternal, "saga.Transition", "illegal saga transition %s -> %s", s.State, to)
	}
	rec := StepRecord{Name: step, State: to, At: now}
	if cause != nil {
		rec.Error = cause.Error()
	}
	s.State = to
	s.Steps = append(s.Steps, rec)
	return nil
}

// PushReversal 在一次预占成功后压入它的补偿
func (s *Saga) PushReversal(r pooldomain.Reversal) {
	s.reversals = append(s.reversals, r)
}

// PopReversal 弹出最近一次压入的补偿
func (s *Saga) PopReversal() (pooldomain.Reversal, bool) {
	if len(s.reversals) == 0 {
		return pooldomain.Reversal{}, false
	}
	last := s.reversals[len(s.reversals)-1]
	s.reversals = s.reversals[:len(s.reversals)-1]
	return last, true
}

// PendingReversals 是尚未执行的补偿数量
func (s *Saga) PendingReversals() int { return len(s.reversals) }

