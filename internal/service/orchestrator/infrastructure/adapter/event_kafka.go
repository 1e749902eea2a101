package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"emergency-nexus/internal/pkg/logger"
	"emergency-nexus/internal/pkg/mq"
	"emergency-nexus/internal/service/orchestrator/domain"
)

// SagaEventKafkaAdapter 实现了 port.EventPublisher 接口，以 sagaId 为 key 写入事件 topic
type SagaEventKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewSagaEventKafkaAdapter(writer mq.MessageWriter) *SagaEventKafkaAdapter {
	return &SagaEventKafkaAdapter{writer: writer}
}

func (a *SagaEventKafkaAdapter) PublishSagaEvent(ctx context.Context, event domain.SagaEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal saga event: %w", err)
	}
	// mq.ProduceMessage 会把追踪上下文注入消息头
	return mq.ProduceMessage(ctx, a.writer, []byte(event.SagaID), value)
}

// CompensationKafkaAdapter 实现了 port.CompensationRetrier 接口，把补偿任务写入重试 topic
type CompensationKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewCompensationKafkaAdapter(writer mq.MessageWriter) *CompensationKafkaAdapter {
	return &CompensationKafkaAdapter{writer: writer}
}

func (a *CompensationKafkaAdapter) ScheduleCompensation(ctx context.Context, task domain.CompensationTask) error {
	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal compensation task: %w", err)
	}
	// 同一个分配的补偿落在同一个分区，保证顺序
	return mq.ProduceMessage(ctx, a.writer, []byte(task.Reversal.AllocationID), value)
}

// LogEventPublisher 在没有配置 Kafka 时只把事件写进日志
type LogEventPublisher struct{}

func (LogEventPublisher) PublishSagaEvent(ctx context.Context, event domain.SagaEvent) error {
	logger.Ctx(ctx).Info().
		Str("saga_id", event.SagaID).
		Str("state", string(event.State)).
		Str("location", event.LocationKey).
		Str("reason", string(event.Reason)).
		Int("steps", len(event.Steps)).
		Msg("Saga finished")
	return nil
}
