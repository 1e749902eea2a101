package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/service/validation/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type fixedReader struct {
	capacity int
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (r *fixedReader) AvailableCapacity(ctx context.Context, location string) (int, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return r.capacity, r.err
}

type denyAll struct{}

func (denyAll) Admit(context.Context, string, int, int) (bool, error) { return false, nil }

func newService(icu, amb *fixedReader, opts ...Option) *ValidationService {
	return NewValidationService(icu, amb, noop.NewTracerProvider().Tracer("test"), opts...)
}

func TestValidationService_Approves(t *testing.T) {
	svc := newService(&fixedReader{capacity: 80}, &fixedReader{capacity: 10})

	result, err := svc.Validate(context.Background(), "X", 50, 8)
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.Equal(t, "x", result.LocationKey)
	assert.Equal(t, 80, result.Resources.ICUBeds.Available)
}

func TestValidationService_RejectsOnShortage(t *testing.T) {
	svc := newService(&fixedReader{capacity: 10}, &fixedReader{capacity: 10})

	result, err := svc.Validate(context.Background(), "x", 50, 5)
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, domain.ReasonInsufficientResources, result.Reason)
	assert.Contains(t, result.Message, "need 50, have 10")
}

func TestValidationService_FailSafeDeny(t *testing.T) {
	cause := apperr.New(apperr.KindDownstreamUnavailable, "test", "Hospital Service unavailable: connection refused")
	svc := newService(&fixedReader{err: cause}, &fixedReader{capacity: 10})

	result, err := svc.Validate(context.Background(), "x", 1, 1)
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, domain.ReasonDownstreamUnavailable, result.Reason)
	assert.Contains(t, result.Error, "Hospital Service unavailable")
}

func TestValidationService_ReadTimeoutDenies(t *testing.T) {
	slow := &fixedReader{capacity: 100, delay: time.Second}
	svc := newService(&fixedReader{capacity: 100}, slow, WithReadTimeout(20*time.Millisecond))

	start := time.Now()
	result, err := svc.Validate(context.Background(), "x", 1, 1)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, result.Approved)
	assert.Contains(t, result.Error, "deadline exceeded")
}

func TestValidationService_InputErrors(t *testing.T) {
	icu, amb := &fixedReader{capacity: 1}, &fixedReader{capacity: 1}
	svc := newService(icu, amb)

	_, err := svc.Validate(context.Background(), "", 1, 1)
	assert.True(t, apperr.Is(err, apperr.KindValidationInput))

	_, err = svc.Validate(context.Background(), "x", -1, 1)
	assert.True(t, apperr.Is(err, apperr.KindValidationInput))

	assert.Zero(t, icu.calls.Load())
	assert.Zero(t, amb.calls.Load())
}

func TestValidationService_AdmissionPolicy(t *testing.T) {
	icu := &fixedReader{capacity: 1}
	svc := newService(icu, &fixedReader{capacity: 1}, WithAdmissionPolicy(denyAll{}))

	_, err := svc.Validate(context.Background(), "x", 1, 1)
	assert.True(t, apperr.Is(err, apperr.KindValidationInput))
	assert.Zero(t, icu.calls.Load())
}
