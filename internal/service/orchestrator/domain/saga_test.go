package domain

import (
	"errors"
	"testing"
	"time"

	"emergency-nexus/internal/pkg/apperr"
	pooldomain "emergency-nexus/internal/service/pool/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaga_HappyPathTransitions(t *testing.T) {
	now := time.Now()
	s := NewSaga("s1", "pune", now)

	for _, to := range []State{StateValidating, StateReservingICUBeds, StateReservingAmbulances, StateCommitted} {
		require.NoError(t, s.Transition(to, "step", nil, now))
	}
	assert.Equal(t, StateCommitted, s.State)
	assert.True(t, s.State.IsTerminal())
	assert.Len(t, s.Steps, 5)

	// 终态之后任何迁移都是程序错误
	err := s.Transition(StateCompensating, StepCompensation, nil, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already finished")
	assert.Len(t, s.Steps, 5)
}

func TestSaga_IllegalTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateInit, StateReservingICUBeds},
		{StateValidating, StateCompensating},
		{StateReservingICUBeds, StateCommitted},
		{StateRejected, StateValidating},
		{StateCommitted, StateCompensating},
		{StateFailed, StateInit},
	}
	for _, tt := range tests {
		s := &Saga{State: tt.from}
		err := s.Transition(tt.to, "x", nil, time.Now())
		require.Error(t, err, "%s -> %s", tt.from, tt.to)
		assert.True(t, apperr.Is(err, apperr.KindInternal))
		assert.Equal(t, tt.from, s.State)
	}
}

func TestSaga_RecordsStepError(t *testing.T) {
	s := NewSaga("s1", "pune", time.Now())
	require.NoError(t, s.Transition(StateValidating, StepValidation, nil, time.Now()))
	require.NoError(t, s.Transition(StateRejected, StepValidation, errors.New("timeout"), time.Now()))
	assert.Equal(t, "timeout", s.Steps[len(s.Steps)-1].Error)
}

func TestSaga_ReversalsAreLIFO(t *testing.T) {
	s := NewSaga("s1", "pune", time.Now())
	s.PushReversal(pooldomain.Reversal{AllocationID: "icu"})
	s.PushReversal(pooldomain.Reversal{AllocationID: "amb"})
	assert.Equal(t, 2, s.PendingReversals())
	assert.Equal(t, "icu", s.reversals[0].AllocationID)

	first, ok := s.PopReversal()
	require.True(t, ok)
	assert.Equal(t, "amb", first.AllocationID)
	second, ok := s.PopReversal()
	require.True(t, ok)
	assert.Equal(t, "icu", second.AllocationID)

	_, ok = s.PopReversal()
	assert.False(t, ok)
	assert.Zero(t, s.PendingReversals())
}
