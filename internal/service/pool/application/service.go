package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/lock"
	"emergency-nexus/internal/pkg/logger"
	"emergency-nexus/internal/pkg/metrics"
	"emergency-nexus/internal/service/pool/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxConflictRetries = 3

// PoolService 定义了一个资源池提供的所有用例
type PoolService struct {
	kind   domain.Kind
	repo   domain.ProviderRepository
	locker lock.Locker
	tracer trace.Tracer

	sink               domain.EventSink
	maxConflictRetries int
	lockTimeout        time.Duration
	now                func() time.Time
}

type Option func(*PoolService)

// WithEventSink 每次容量变化后推送事件
func WithEventSink(sink domain.EventSink) Option {
	return func(s *PoolService) {
		s.sink = sink
	}
}

// WithMaxConflictRetries 乐观锁冲突后的最大重试次数
func WithMaxConflictRetries(n int) Option {
	return func(s *PoolService) {
		if n >= 0 {
			s.maxConflictRetries = n
		}
	}
}

// WithLockTimeout 等待位置锁的最长时间
func WithLockTimeout(d time.Duration) Option {
	return func(s *PoolService) {
		s.lockTimeout = d
	}
}

// NewPoolService 创建一个新的资源池服务实例
func NewPoolService(kind domain.Kind, repo domain.ProviderRepository, locker lock.Locker, tracer trace.Tracer, opts ...Option) *PoolService {
	s := &PoolService{
		kind:               kind,
		repo:               repo,
		locker:             locker,
		tracer:             tracer,
		maxConflictRetries: defaultMaxConflictRetries,
		lockTimeout:        5 * time.Second,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PoolService) Kind() domain.Kind { return s.kind }

// List 查询某位置的提供方。status 为空时返回全部，只对救护车池有意义
func (s *PoolService) List(ctx context.Context, location string, status domain.Occupancy) ([]domain.Provider, error) {
	providers, err := s.repo.FindByLocation(ctx, s.kind, domain.NormalizeLocation(location))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "pool.List", err, "failed to load providers")
	}
	if status == domain.OccupancyNone || !s.kind.TracksOccupancy() {
		return providers, nil
	}
	return domain.FilterByOccupancy(providers, status), nil
}

// TotalAvailable 返回某位置可参与分配的容量总和
func (s *PoolService) TotalAvailable(ctx context.Context, location string) (int, error) {
	providers, err := s.List(ctx, location, domain.OccupancyNone)
	if err != nil {
		return 0, err
	}
	return domain.TotalCapacity(domain.FilterCandidates(providers)), nil
}

// Register 新增一个提供方，已存在的提供方保持不变，目前只用于从配置中预置数据
func (s *PoolService) Register(ctx context.Context, p *domain.Provider) error {
	if p.Kind != s.kind {
		return apperr.New(apperr.KindValidationInput, "pool.Register", "provider %s is %s, pool is %s", p.ID, p.Kind, s.kind)
	}
	created, err := s.repo.Register(ctx, p)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "pool.Register", err, "failed to register provider")
	}
	if created {
		s.publish(ctx, domain.EventRegistered, p.LocationKey, "", p.AvailableCapacity)
	}
	return nil
}

// Allocate 在某位置按贪心算法扣减 amount 个单位。
// 同一位置的分配通过 locker 串行化，写入时再用版本号校验快照没有过期。
func (s *PoolService) Allocate(ctx context.Context, location string, amount int) (*domain.AllocationResult, error) {
	const op = "pool.Allocate"
	ctx, span := s.tracer.Start(ctx, "service.Allocate")
	defer span.End()

	location = domain.NormalizeLocation(location)
	span.SetAttributes(
		attribute.String("pool.kind", string(s.kind)),
		attribute.String("pool.location", location),
		attribute.Int("pool.amount", amount),
	)

	if location == "" {
		return nil, apperr.New(apperr.KindValidationInput, op, "location is required")
	}
	if amount < 0 {
		return nil, apperr.New(apperr.KindValidationInput, op, "amount must be non-negative")
	}

	result := &domain.AllocationResult{
		AllocationID: uuid.NewString(),
		Kind:         s.kind,
		LocationKey:  location,
		Requested:    amount,
		Records:      []domain.AllocationRecord{},
		CreatedAt:    s.now(),
	}
	if amount == 0 {
		return result, nil
	}

	unlock, err := s.lock(ctx, location)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		// 1. 读取最新快照
		providers, err := s.repo.FindByLocation(ctx, s.kind, location)
		if err != nil {
			return nil, s.fail(ctx, span, apperr.Wrap(apperr.KindInternal, op, err, "failed to load providers"))
		}

		// 2. 纯函数计算扣减方案
		records, err := domain.Allocate(s.kind, providers, amount)
		if err != nil {
			return nil, s.fail(ctx, span, err)
		}
		result.Records = records

		// 3. 带版本校验地写入
		_, err = s.repo.ApplyAllocation(ctx, result)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, s.fail(ctx, span, apperr.Wrap(apperr.KindInternal, op, err, "failed to apply allocation"))
		}
		if attempt >= s.maxConflictRetries {
			return nil, s.fail(ctx, span, apperr.Wrap(apperr.KindConflict, op, err,
				fmt.Sprintf("%s in %s changed concurrently, retry later", s.kind.Noun(), location)))
		}
		logger.Ctx(ctx).Warn().Int("attempt", attempt+1).Str("location", location).Msg("version conflict, retrying allocation")
	}

	metrics.PoolAllocations.WithLabelValues(string(s.kind), "success").Inc()
	logger.Ctx(ctx).Info().
		Str("allocation_id", result.AllocationID).
		Str("location", location).
		Int("amount", amount).
		Int("providers", len(result.Records)).
		Msgf("%s allocated", s.kind.Noun())
	span.AddEvent("allocation committed")

	s.publish(ctx, domain.EventAllocated, location, result.AllocationID, amount)
	return result, nil
}

// Release 归还一次分配，重复调用是安全的
func (s *PoolService) Release(ctx context.Context, reversal domain.Reversal) (bool, error) {
	const op = "pool.Release"
	ctx, span := s.tracer.Start(ctx, "service.Release")
	defer span.End()

	reversal.LocationKey = domain.NormalizeLocation(reversal.LocationKey)
	span.SetAttributes(
		attribute.String("pool.allocation_id", reversal.AllocationID),
		attribute.String("pool.location", reversal.LocationKey),
	)

	if reversal.AllocationID == "" || reversal.LocationKey == "" {
		return false, apperr.New(apperr.KindValidationInput, op, "allocationId and location are required")
	}
	if reversal.Kind != "" && reversal.Kind != s.kind {
		return false, apperr.New(apperr.KindValidationInput, op, "reversal for %s sent to %s pool", reversal.Kind, s.kind)
	}
	for _, e := range reversal.Entries {
		if e.ProviderID == "" || e.Amount < 0 {
			return false, apperr.New(apperr.KindValidationInput, op, "invalid reversal entry for provider %q", e.ProviderID)
		}
	}
	if reversal.IsEmpty() {
		return false, nil
	}

	unlock, err := s.lock(ctx, reversal.LocationKey)
	if err != nil {
		return false, s.fail(ctx, span, err)
	}
	defer unlock()

	applied, err := s.repo.ApplyRelease(ctx, reversal)
	if err != nil {
		if !errors.Is(err, domain.ErrProviderNotFound) {
			err = apperr.Wrap(apperr.KindInternal, op, err, "failed to apply release")
		} else {
			err = apperr.Wrap(apperr.KindNotFound, op, err, "reversal references an unknown provider")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	logger.Ctx(ctx).Info().
		Str("allocation_id", reversal.AllocationID).
		Str("location", reversal.LocationKey).
		Bool("applied", applied).
		Msgf("%s released", s.kind.Noun())
	if applied {
		s.publish(ctx, domain.EventReleased, reversal.LocationKey, reversal.AllocationID, reversal.Total())
	}
	return applied, nil
}

func (s *PoolService) lock(ctx context.Context, location string) (lock.Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	unlock, err := s.locker.Lock(lockCtx, fmt.Sprintf("pool:%s:%s", s.kind, location))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConflict, "pool.lock", err, "location is busy, retry later")
	}
	return unlock, nil
}

func (s *PoolService) fail(ctx context.Context, span trace.Span, err error) error {
	result := "error"
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		result = "not_found"
	case apperr.KindInsufficientCapacity:
		result = "insufficient"
	case apperr.KindConflict:
		result = "conflict"
	}
	metrics.PoolAllocations.WithLabelValues(string(s.kind), result).Inc()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Ctx(ctx).Warn().Err(err).Str("kind", string(s.kind)).Msg("pool operation failed")
	return err
}

// publish 刷新容量指标并推送事件，失败不影响主流程
func (s *PoolService) publish(ctx context.Context, typ domain.EventType, location, allocationID string, amount int) {
	providers, err := s.repo.FindByLocation(ctx, s.kind, location)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to refresh pool snapshot")
		return
	}
	total := domain.TotalCapacity(domain.FilterCandidates(providers))
	metrics.PoolAvailableCapacity.WithLabelValues(string(s.kind), location).Set(float64(total))

	if s.sink == nil {
		return
	}
	s.sink.Publish(domain.PoolEvent{
		Type:          typ,
		Kind:          s.kind,
		LocationKey:   location,
		AllocationID:  allocationID,
		Amount:        amount,
		Providers:     providers,
		TotalCapacity: total,
		At:            s.now(),
	})
}
