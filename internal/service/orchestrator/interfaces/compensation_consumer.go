package interfaces

import (
	"context"
	"encoding/json"

	"emergency-nexus/internal/pkg/mq"
	"emergency-nexus/internal/service/orchestrator/application"
	"emergency-nexus/internal/service/orchestrator/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// NewCompensationConsumer 消费重试 topic 中的补偿任务。
// 归还是幂等的，重复消费同一个任务是安全的；失败的任务由 failureHandler 重新投递或转入死信。
func NewCompensationConsumer(reader mq.MessageReader, coordinator *application.Coordinator, failureHandler *mq.FailureHandler, opts ...mq.ConsumerOption) *mq.Consumer {
	handle := func(ctx context.Context, msg kafka.Message) error {
		var task domain.CompensationTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			return errors.Wrap(err, "malformed compensation task")
		}
		return coordinator.Compensate(ctx, task)
	}
	opts = append([]mq.ConsumerOption{mq.WithFailureHandler(failureHandler)}, opts...)
	return mq.NewConsumer("compensation-retry", reader, handle, opts...)
}
