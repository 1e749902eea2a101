package application

import (
	"context"
	"fmt"
	"time"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/logger"
	"emergency-nexus/internal/pkg/metrics"
	"emergency-nexus/internal/service/orchestrator/domain"
	"emergency-nexus/internal/service/orchestrator/domain/port"
	pooldomain "emergency-nexus/internal/service/pool/domain"
	validationdomain "emergency-nexus/internal/service/validation/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultStepTimeout = 5 * time.Second
	successMessage     = "Emergency request orchestrated successfully"
)

// Coordinator 按 校验 -> 预占床位 -> 预占救护车 的顺序编排，失败时逆序补偿
type Coordinator struct {
	validator  port.Validator
	icuBeds    port.PoolReserver
	ambulances port.PoolReserver
	tracer     trace.Tracer

	publisher   port.EventPublisher
	retrier     port.CompensationRetrier
	stepTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

type Option func(*Coordinator)

// WithEventPublisher 每次编排到达终态后发布事件
func WithEventPublisher(p port.EventPublisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

// WithCompensationRetrier 补偿失败时交给异步重试
func WithCompensationRetrier(r port.CompensationRetrier) Option {
	return func(c *Coordinator) {
		c.retrier = r
	}
}

// WithStepTimeout 设置每一次跨服务调用的超时时间
func WithStepTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.stepTimeout = d
		}
	}
}

func NewCoordinator(validator port.Validator, icuBeds, ambulances port.PoolReserver, tracer trace.Tracer, opts ...Option) *Coordinator {
	c := &Coordinator{
		validator:   validator,
		icuBeds:     icuBeds,
		ambulances:  ambulances,
		tracer:      tracer,
		stepTimeout: defaultStepTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Orchestrate 执行一次编排。只有非法输入会返回 error，
// 其余任何失败都以 Success=false 的 Outcome 返回。
func (c *Coordinator) Orchestrate(ctx context.Context, location string, icuBeds, ambulanceCapacity int) (*domain.Outcome, error) {
	vreq, err := validationdomain.NewRequest(location, icuBeds, ambulanceCapacity)
	if err != nil {
		return nil, err
	}
	req := domain.Request{
		LocationKey:               vreq.LocationKey,
		RequiredICUBeds:           vreq.RequiredICUBeds,
		RequiredAmbulanceCapacity: vreq.RequiredAmbulanceCapacity,
	}

	// 一旦开始就执行到底，调用方断开连接不会打断预占和补偿
	ctx = context.WithoutCancel(ctx)
	saga := domain.NewSaga(c.newID(), req.LocationKey, c.now())

	ctx, span := c.tracer.Start(ctx, "saga.Orchestrate")
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.id", saga.ID),
		attribute.String("saga.location", req.LocationKey),
	)
	ctx = logger.WithContext(ctx, zerolog.Ctx(ctx).With().Str("saga_id", saga.ID).Str("location", req.LocationKey).Logger())
	logger.Ctx(ctx).Info().Int("icu_beds", req.RequiredICUBeds).Int("ambulance_capacity", req.RequiredAmbulanceCapacity).Msg("Starting saga orchestration")

	outcome, err := c.run(ctx, saga, req)
	if err != nil {
		// 校验服务判定为非法输入，或者出现了非法状态迁移
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	outcome.CompensationErrors = saga.CompensationErrors
	span.SetAttributes(attribute.String("saga.state", string(saga.State)))
	metrics.SagaOutcomes.WithLabelValues(string(saga.State)).Inc()
	c.publish(ctx, saga, req, outcome)
	return outcome, nil
}

func (c *Coordinator) run(ctx context.Context, saga *domain.Saga, req domain.Request) (*domain.Outcome, error) {
	// 1. 校验
	if err := saga.Transition(domain.StateValidating, domain.StepValidation, nil, c.now()); err != nil {
		return nil, err
	}
	validation, err := c.validate(ctx, req)
	if apperr.Is(err, apperr.KindValidationInput) {
		return nil, err
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Validation service call failed")
		if err := saga.Transition(domain.StateRejected, domain.StepValidation, err, c.now()); err != nil {
			return nil, err
		}
		return c.rejected(saga, domain.ReasonDownstreamUnavailable, "Failed to validate resources: "+apperr.Message(err)), nil
	}
	if !validation.Approved {
		logger.Ctx(ctx).Warn().Str("reason", string(validation.Reason)).Msg("Validation failed")
		if err := saga.Transition(domain.StateRejected, domain.StepValidation, nil, c.now()); err != nil {
			return nil, err
		}
		return c.rejected(saga, domain.Reason(validation.Reason), validation.Message), nil
	}

	// 2. 预占 ICU 床位
	if err := saga.Transition(domain.StateReservingICUBeds, domain.StepICUBeds, nil, c.now()); err != nil {
		return nil, err
	}
	hospital, err := c.reserve(ctx, c.icuBeds, domain.StepICUBeds, req.LocationKey, req.RequiredICUBeds)
	if err != nil {
		return c.fail(ctx, saga, "Failed to reserve hospital beds", err)
	}
	saga.PushReversal(hospital.Reversal())

	// 3. 预占救护车，必须在床位之后
	if err := saga.Transition(domain.StateReservingAmbulances, domain.StepAmbulances, nil, c.now()); err != nil {
		return nil, err
	}
	ambulance, err := c.reserve(ctx, c.ambulances, domain.StepAmbulances, req.LocationKey, req.RequiredAmbulanceCapacity)
	if err != nil {
		return c.fail(ctx, saga, "Failed to reserve ambulance capacity", err)
	}
	saga.PushReversal(ambulance.Reversal())

	if err := saga.Transition(domain.StateCommitted, "commit", nil, c.now()); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Str("hospital_allocation_id", hospital.AllocationID).
		Str("ambulance_allocation_id", ambulance.AllocationID).
		Msg("Saga completed successfully")

	return &domain.Outcome{
		Success: true,
		SagaID:  saga.ID,
		State:   saga.State,
		Message: successMessage,
		Data: &domain.CommittedData{
			Request:     req,
			Status:      "APPROVED",
			Validation:  validation,
			Allocations: domain.Allocations{Hospital: hospital, Ambulance: ambulance},
			Timestamp:   c.now(),
		},
	}, nil
}

func (c *Coordinator) validate(ctx context.Context, req domain.Request) (validationdomain.Result, error) {
	ctx, span := c.tracer.Start(ctx, "saga.Validate")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	result, err := c.validator.Validate(ctx, req.LocationKey, req.RequiredICUBeds, req.RequiredAmbulanceCapacity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation call failed")
		return validationdomain.Result{}, err
	}
	span.SetAttributes(attribute.Bool("validation.approved", result.Approved))
	return result, nil
}

func (c *Coordinator) reserve(ctx context.Context, pool port.PoolReserver, step, location string, amount int) (*pooldomain.AllocationResult, error) {
	ctx, span := c.tracer.Start(ctx, "saga."+step)
	defer span.End()
	span.SetAttributes(attribute.Int("pool.amount", amount))
	ctx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	result, err := pool.Allocate(ctx, location, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		logger.Ctx(ctx).Error().Err(err).Str("step", step).Msg("Reservation failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("pool.allocation_id", result.AllocationID))
	return result, nil
}

func (c *Coordinator) rejected(saga *domain.Saga, reason domain.Reason, message string) *domain.Outcome {
	if reason == "" {
		reason = domain.ReasonInsufficientResources
	}
	return &domain.Outcome{
		Success: false,
		SagaID:  saga.ID,
		State:   saga.State,
		Reason:  reason,
		Message: message,
		Step:    domain.StepValidation,
	}
}

// fail 进入补偿状态，逆序执行所有已压入的补偿，再进入 FAILED
func (c *Coordinator) fail(ctx context.Context, saga *domain.Saga, stage string, cause error) (*domain.Outcome, error) {
	failedStep := saga.Steps[len(saga.Steps)-1].Name
	if err := saga.Transition(domain.StateCompensating, domain.StepCompensation, cause, c.now()); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Error().Err(cause).Int("compensations", saga.PendingReversals()).Msg("Saga failed, executing compensations")

	c.compensate(ctx, saga)

	if err := saga.Transition(domain.StateFailed, domain.StepCompensation, nil, c.now()); err != nil {
		return nil, err
	}
	return &domain.Outcome{
		Success: false,
		SagaID:  saga.ID,
		State:   saga.State,
		Reason:     domain.ReasonReservationFailed,
		Message:    fmt.Sprintf("Orchestration failed: %s: %s", stage, apperr.Message(cause)),
		Step:       domain.StepCompensation,
		FailedStep: failedStep,
		ErrorKind:  apperr.KindOf(cause).String(),
	}, nil
}

// compensate 尽力而为：某一个补偿失败不影响其余补偿
func (c *Coordinator) compensate(ctx context.Context, saga *domain.Saga) {
	ctx, span := c.tracer.Start(ctx, "saga.Compensate")
	defer span.End()

	for {
		reversal, ok := saga.PopReversal()
		if !ok {
			break
		}
		if err := c.release(ctx, reversal); err != nil {
			saga.CompensationErrors = append(saga.CompensationErrors,
				fmt.Sprintf("%s %s: %s", reversal.Kind, reversal.AllocationID, err.Error()))
			metrics.CompensationFailures.WithLabelValues(string(reversal.Kind)).Inc()
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).
				Str("allocation_id", reversal.AllocationID).
				Str("kind", string(reversal.Kind)).
				Msg("Compensation failed")
			c.scheduleRetry(ctx, saga.ID, reversal)
			continue
		}
		logger.Ctx(ctx).Info().Str("allocation_id", reversal.AllocationID).Int("amount", reversal.Total()).Msg("Compensation applied")
	}
	logger.Ctx(ctx).Info().Int("failures", len(saga.CompensationErrors)).Msg("All compensations executed")
}

func (c *Coordinator) release(ctx context.Context, reversal pooldomain.Reversal) error {
	pool, err := c.poolFor(reversal.Kind)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()
	return pool.Release(ctx, reversal)
}

func (c *Coordinator) scheduleRetry(ctx context.Context, sagaID string, reversal pooldomain.Reversal) {
	if c.retrier == nil {
		return
	}
	if err := c.retrier.ScheduleCompensation(ctx, domain.CompensationTask{SagaID: sagaID, Reversal: reversal}); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("allocation_id", reversal.AllocationID).Msg("CRITICAL: failed to schedule compensation retry")
	}
}

// Compensate 重新执行一次补偿，供重试消费者调用
func (c *Coordinator) Compensate(ctx context.Context, task domain.CompensationTask) error {
	ctx, span := c.tracer.Start(ctx, "saga.RetryCompensation")
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.id", task.SagaID),
		attribute.String("pool.allocation_id", task.Reversal.AllocationID),
	)

	if err := c.release(ctx, task.Reversal); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.Ctx(ctx).Info().Str("saga_id", task.SagaID).Str("allocation_id", task.Reversal.AllocationID).Msg("Compensation retry applied")
	return nil
}

func (c *Coordinator) poolFor(kind pooldomain.Kind) (port.PoolReserver, error) {
	switch kind {
	case pooldomain.KindICUBed:
		return c.icuBeds, nil
	case pooldomain.KindAmbulance:
		return c.ambulances, nil
	}
	return nil, apperr.New(apperr.KindValidationInput, "saga.Compensate", "unknown pool kind %q", kind)
}

func (c *Coordinator) publish(ctx context.Context, saga *domain.Saga, req domain.Request, outcome *domain.Outcome) {
	// 只发布终态，审计方不关心中间状态
	if c.publisher == nil || !saga.State.IsTerminal() {
		return
	}
	event := domain.SagaEvent{
		SagaID:                    saga.ID,
		State:                     saga.State,
		LocationKey:               req.LocationKey,
		RequiredICUBeds:           req.RequiredICUBeds,
		RequiredAmbulanceCapacity: req.RequiredAmbulanceCapacity,
		Reason:                    outcome.Reason,
		Step:                      outcome.Step,
		Steps:                     saga.Steps,
		CompensationErrors:        saga.CompensationErrors,
		At:                        c.now(),
	}
	if err := c.publisher.PublishSagaEvent(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to publish saga event")
	}
}
