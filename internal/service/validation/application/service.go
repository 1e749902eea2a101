package application

import (
	"context"
	"time"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/logger"
	"emergency-nexus/internal/pkg/metrics"
	"emergency-nexus/internal/service/validation/domain"
	"emergency-nexus/internal/service/validation/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultReadTimeout = 5 * time.Second

// ValidationService 只读地判断一个位置能否同时满足两类资源需求
type ValidationService struct {
	icuBeds    port.CapacityReader
	ambulances port.CapacityReader
	tracer     trace.Tracer

	policy  port.AdmissionPolicy
	timeout time.Duration
	now     func() time.Time
}

type Option func(*ValidationService)

// WithAdmissionPolicy 在读取容量前先过一遍准入规则
func WithAdmissionPolicy(p port.AdmissionPolicy) Option {
	return func(s *ValidationService) {
		s.policy = p
	}
}

// WithReadTimeout 设置每一次容量读取的超时时间
func WithReadTimeout(d time.Duration) Option {
	return func(s *ValidationService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewValidationService 创建一个新的校验服务实例
func NewValidationService(icuBeds, ambulances port.CapacityReader, tracer trace.Tracer, opts ...Option) *ValidationService {
	s := &ValidationService{
		icuBeds:    icuBeds,
		ambulances: ambulances,
		tracer:     tracer,
		timeout:    defaultReadTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate 并发读取两个资源池的可用容量并给出结论。
// 只有非法输入会返回 error，下游不可用时返回一个拒绝的 Result。
func (s *ValidationService) Validate(ctx context.Context, location string, icuBeds, ambulanceCapacity int) (domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, "service.Validate")
	defer span.End()
	start := time.Now()

	req, err := domain.NewRequest(location, icuBeds, ambulanceCapacity)
	if err != nil {
		return domain.Result{}, err
	}
	span.SetAttributes(
		attribute.String("validation.location", req.LocationKey),
		attribute.Int("validation.icu_beds", req.RequiredICUBeds),
		attribute.Int("validation.ambulance_capacity", req.RequiredAmbulanceCapacity),
	)

	if s.policy != nil {
		admitted, err := s.policy.Admit(ctx, req.LocationKey, req.RequiredICUBeds, req.RequiredAmbulanceCapacity)
		if err != nil {
			return domain.Result{}, apperr.Wrap(apperr.KindInternal, "validation.Admit", err, "failed to evaluate admission rule")
		}
		if !admitted {
			return domain.Result{}, apperr.New(apperr.KindValidationInput, "validation.Admit", "Request rejected by admission rule")
		}
	}

	logger.Ctx(ctx).Info().Str("location", req.LocationKey).
		Int("icu_beds", req.RequiredICUBeds).
		Int("ambulance_capacity", req.RequiredAmbulanceCapacity).
		Msg("Validating resources")

	var availableICU, availableAmbulance int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.read(gctx, s.icuBeds, req.LocationKey)
		availableICU = n
		return err
	})
	g.Go(func() error {
		n, err := s.read(gctx, s.ambulances, req.LocationKey)
		availableAmbulance = n
		return err
	})

	var result domain.Result
	if err := g.Wait(); err != nil {
		// 无法确认的资源一律按不足处理
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Ctx(ctx).Error().Err(err).Str("location", req.LocationKey).Msg("Validation failed, denying request")
		result = domain.Unavailable(req, err, s.now())
		metrics.ValidationRequests.WithLabelValues("error", req.LocationKey).Inc()
	} else {
		result = domain.Decide(req, availableICU, availableAmbulance, s.now())
		label := "approved"
		if !result.Approved {
			label = "rejected"
		}
		metrics.ValidationRequests.WithLabelValues(label, req.LocationKey).Inc()
		logger.Ctx(ctx).Info().Str("location", req.LocationKey).
			Bool("approved", result.Approved).
			Int("available_icu_beds", availableICU).
			Int("available_ambulance_capacity", availableAmbulance).
			Msg("Validation completed")
	}

	metrics.ValidationDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Bool("validation.approved", result.Approved))
	return result, nil
}

func (s *ValidationService) read(ctx context.Context, reader port.CapacityReader, location string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return reader.AvailableCapacity(ctx, location)
}
