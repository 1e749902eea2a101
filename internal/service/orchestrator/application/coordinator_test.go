package application

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/lock"
	"emergency-nexus/internal/service/orchestrator/domain"
	"emergency-nexus/internal/service/orchestrator/infrastructure/adapter"
	poolapp "emergency-nexus/internal/service/pool/application"
	pooldomain "emergency-nexus/internal/service/pool/domain"
	poolinfra "emergency-nexus/internal/service/pool/infrastructure"
	validationapp "emergency-nexus/internal/service/validation/application"
	validationdomain "emergency-nexus/internal/service/validation/domain"
	validationadapter "emergency-nexus/internal/service/validation/infrastructure/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var tracer trace.Tracer = noop.NewTracerProvider().Tracer("test")

type fixture struct {
	icu        *poolapp.PoolService
	ambulances *poolapp.PoolService
	validator  *validationapp.ValidationService
}

func newPool(t *testing.T, kind pooldomain.Kind, capacities ...int) *poolapp.PoolService {
	t.Helper()
	svc := poolapp.NewPoolService(kind, poolinfra.NewMemoryProviderRepository(), lock.NewLocalLocker(), tracer)
	for i, capacity := range capacities {
		id := string(kind) + "-" + string(rune('a'+i))
		p, err := pooldomain.NewProvider(id, id, kind, "pune", capacity)
		require.NoError(t, err)
		require.NoError(t, svc.Register(context.Background(), p))
	}
	return svc
}

func newFixture(t *testing.T, icu, ambulances []int) *fixture {
	t.Helper()
	f := &fixture{
		icu:        newPool(t, pooldomain.KindICUBed, icu...),
		ambulances: newPool(t, pooldomain.KindAmbulance, ambulances...),
	}
	f.validator = validationapp.NewValidationService(
		validationadapter.NewPoolLocalReader(f.icu),
		validationadapter.NewPoolLocalReader(f.ambulances),
		tracer,
	)
	return f
}

func (f *fixture) coordinator(opts ...Option) *Coordinator {
	return NewCoordinator(f.validator, adapter.NewPoolLocalAdapter(f.icu), adapter.NewPoolLocalAdapter(f.ambulances), tracer, opts...)
}

func available(t *testing.T, svc *poolapp.PoolService) int {
	t.Helper()
	n, err := svc.TotalAvailable(context.Background(), "pune")
	require.NoError(t, err)
	return n
}

type approveAll struct{}

func (approveAll) Validate(_ context.Context, location string, icu, amb int) (validationdomain.Result, error) {
	return validationdomain.Decide(validationdomain.Request{LocationKey: location, RequiredICUBeds: icu, RequiredAmbulanceCapacity: amb}, icu, amb, time.Now()), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SagaEvent
}

func (p *recordingPublisher) PublishSagaEvent(_ context.Context, e domain.SagaEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type recordingRetrier struct {
	tasks []domain.CompensationTask
}

func (r *recordingRetrier) ScheduleCompensation(_ context.Context, task domain.CompensationTask) error {
	r.tasks = append(r.tasks, task)
	return nil
}

// failingRelease 预占正常，归还总是失败
type failingRelease struct {
	*adapter.PoolLocalAdapter
}

func (failingRelease) Release(context.Context, pooldomain.Reversal) error {
	return apperr.New(apperr.KindDownstreamUnavailable, "test", "Hospital Service unavailable")
}

func TestCoordinator_Commits(t *testing.T) {
	f := newFixture(t, []int{30, 50}, []int{4, 6})
	publisher := &recordingPublisher{}

	outcome, err := f.coordinator(WithEventPublisher(publisher)).Orchestrate(context.Background(), "Pune", 60, 8)
	require.NoError(t, err)
	require.True(t, outcome.Success, outcome.Message)
	assert.Equal(t, domain.StateCommitted, outcome.State)
	assert.NotEmpty(t, outcome.SagaID)
	assert.Equal(t, 60, outcome.Data.Allocations.Hospital.TotalAllocated())
	assert.Equal(t, 8, outcome.Data.Allocations.Ambulance.TotalAllocated())
	assert.True(t, outcome.Data.Validation.Approved)

	assert.Equal(t, 20, available(t, f.icu))
	assert.Equal(t, 2, available(t, f.ambulances))

	require.Len(t, publisher.events, 1)
	assert.Equal(t, domain.StateCommitted, publisher.events[0].State)
	assert.Equal(t, outcome.SagaID, publisher.events[0].SagaID)
}

func TestCoordinator_RejectsWithoutTouchingPools(t *testing.T) {
	f := newFixture(t, []int{10}, []int{10})

	outcome, err := f.coordinator().Orchestrate(context.Background(), "pune", 50, 5)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, domain.StateRejected, outcome.State)
	assert.Equal(t, domain.StepValidation, outcome.Step)
	assert.Equal(t, domain.ReasonInsufficientResources, outcome.Reason)
	assert.Contains(t, outcome.Message, "need 50, have 10")

	assert.Equal(t, 10, available(t, f.icu))
	assert.Equal(t, 10, available(t, f.ambulances))
}

func TestCoordinator_ValidatorUnreachable(t *testing.T) {
	f := newFixture(t, []int{10}, []int{10})
	down := validatorFunc(func() error {
		return apperr.New(apperr.KindDownstreamUnavailable, "test", "Validation Service unavailable")
	})

	outcome, err := NewCoordinator(down, adapter.NewPoolLocalAdapter(f.icu), adapter.NewPoolLocalAdapter(f.ambulances), tracer).
		Orchestrate(context.Background(), "pune", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRejected, outcome.State)
	assert.Equal(t, domain.ReasonDownstreamUnavailable, outcome.Reason)
	assert.Equal(t, domain.StepValidation, outcome.Step)
}

func TestCoordinator_RemoteInputErrorPropagates(t *testing.T) {
	f := newFixture(t, []int{10}, []int{10})
	invalid := validatorFunc(func() error {
		return apperr.New(apperr.KindValidationInput, "test", "Request rejected by admission rule")
	})

	_, err := NewCoordinator(invalid, adapter.NewPoolLocalAdapter(f.icu), adapter.NewPoolLocalAdapter(f.ambulances), tracer).
		Orchestrate(context.Background(), "pune", 1, 1)
	assert.True(t, apperr.Is(err, apperr.KindValidationInput))
}

// 床位预占成功、救护车预占失败时，床位必须被完整归还
func TestCoordinator_PartialFailureCompensates(t *testing.T) {
	f := newFixture(t, []int{30, 50}, []int{2})

	c := NewCoordinator(approveAll{}, adapter.NewPoolLocalAdapter(f.icu), adapter.NewPoolLocalAdapter(f.ambulances), tracer)
	outcome, err := c.Orchestrate(context.Background(), "pune", 60, 5)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, domain.StateFailed, outcome.State)
	assert.Equal(t, domain.StepCompensation, outcome.Step)
	assert.Equal(t, domain.ReasonReservationFailed, outcome.Reason)
	assert.Equal(t, domain.StepAmbulances, outcome.FailedStep)
	assert.Equal(t, "INSUFFICIENT_CAPACITY", outcome.ErrorKind)
	assert.Contains(t, outcome.Message, "Failed to reserve ambulance capacity")
	assert.Empty(t, outcome.CompensationErrors)

	assert.Equal(t, 80, available(t, f.icu))
	assert.Equal(t, 2, available(t, f.ambulances))
}

func TestCoordinator_FirstReservationFailsNothingToUndo(t *testing.T) {
	f := newFixture(t, []int{5}, []int{10})

	c := NewCoordinator(approveAll{}, adapter.NewPoolLocalAdapter(f.icu), adapter.NewPoolLocalAdapter(f.ambulances), tracer)
	outcome, err := c.Orchestrate(context.Background(), "pune", 6, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, outcome.State)
	assert.Equal(t, domain.ReasonReservationFailed, outcome.Reason)
	assert.Equal(t, domain.StepICUBeds, outcome.FailedStep)
	assert.Equal(t, "INSUFFICIENT_CAPACITY", outcome.ErrorKind)
	assert.Contains(t, outcome.Message, "Failed to reserve hospital beds")
	assert.Equal(t, 10, available(t, f.ambulances))
}

func TestCoordinator_CompensationFailureIsScheduledForRetry(t *testing.T) {
	f := newFixture(t, []int{30}, []int{1})
	retrier := &recordingRetrier{}
	publisher := &recordingPublisher{}

	icu := failingRelease{adapter.NewPoolLocalAdapter(f.icu)}
	c := NewCoordinator(approveAll{}, icu, adapter.NewPoolLocalAdapter(f.ambulances), tracer,
		WithCompensationRetrier(retrier), WithEventPublisher(publisher))

	outcome, err := c.Orchestrate(context.Background(), "pune", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, outcome.State)
	require.Len(t, outcome.CompensationErrors, 1)
	require.Len(t, retrier.tasks, 1)
	assert.Equal(t, outcome.SagaID, retrier.tasks[0].SagaID)
	assert.Equal(t, pooldomain.KindICUBed, retrier.tasks[0].Reversal.Kind)
	assert.Equal(t, 10, retrier.tasks[0].Reversal.Total())
	require.Len(t, publisher.events, 1)
	assert.Len(t, publisher.events[0].CompensationErrors, 1)

	// 异步重试走正常的归还
	healthy := f.coordinator()
	require.NoError(t, healthy.Compensate(context.Background(), retrier.tasks[0]))
	assert.Equal(t, 30, available(t, f.icu))

	// 重复投递是安全的
	require.NoError(t, healthy.Compensate(context.Background(), retrier.tasks[0]))
	assert.Equal(t, 30, available(t, f.icu))
}

func TestCoordinator_CompensateUnknownKind(t *testing.T) {
	f := newFixture(t, []int{1}, []int{1})
	err := f.coordinator().Compensate(context.Background(), domain.CompensationTask{
		Reversal: pooldomain.Reversal{AllocationID: "x", Kind: "OXYGEN", LocationKey: "pune"},
	})
	assert.True(t, apperr.Is(err, apperr.KindValidationInput))
}

func TestCoordinator_InputErrors(t *testing.T) {
	f := newFixture(t, []int{1}, []int{1})
	_, err := f.coordinator().Orchestrate(context.Background(), "", 1, 1)
	assert.True(t, apperr.Is(err, apperr.KindValidationInput))
	_, err = f.coordinator().Orchestrate(context.Background(), "pune", 1, -1)
	assert.True(t, apperr.Is(err, apperr.KindValidationInput))
}

func TestCoordinator_FreshSagaIDPerCall(t *testing.T) {
	f := newFixture(t, []int{100}, []int{100})
	c := f.coordinator()
	first, err := c.Orchestrate(context.Background(), "pune", 1, 1)
	require.NoError(t, err)
	second, err := c.Orchestrate(context.Background(), "pune", 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.SagaID, second.SagaID)
}

// 并发编排下，两个池被扣减的总量恰好等于成功编排的需求之和
func TestCoordinator_ConcurrentAllOrNothing(t *testing.T) {
	f := newFixture(t, []int{20, 15, 10}, []int{6, 4, 3})
	c := NewCoordinator(approveAll{}, adapter.NewPoolLocalAdapter(f.icu), adapter.NewPoolLocalAdapter(f.ambulances), tracer)
	rng := rand.New(rand.NewSource(42))

	type req struct{ icu, amb int }
	reqs := make([]req, 40)
	for i := range reqs {
		reqs[i] = req{icu: rng.Intn(8), amb: rng.Intn(4)}
	}

	var (
		wg                  sync.WaitGroup
		mu                  sync.Mutex
		usedICU, usedAmbCap int
	)
	for _, r := range reqs {
		wg.Add(1)
		go func(r req) {
			defer wg.Done()
			outcome, err := c.Orchestrate(context.Background(), "pune", r.icu, r.amb)
			if !assert.NoError(t, err) {
				return
			}
			if outcome.Success {
				mu.Lock()
				usedICU += r.icu
				usedAmbCap += r.amb
				mu.Unlock()
				return
			}
			assert.Equal(t, domain.StateFailed, outcome.State)
			assert.Empty(t, outcome.CompensationErrors)
		}(r)
	}
	wg.Wait()

	assert.Equal(t, 45-usedICU, available(t, f.icu))
	assert.Equal(t, 13-usedAmbCap, available(t, f.ambulances))
}

type validatorFunc func() error

func (f validatorFunc) Validate(context.Context, string, int, int) (validationdomain.Result, error) {
	return validationdomain.Result{}, f()
}
