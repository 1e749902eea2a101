package interfaces

import (
	"context"

	"emergency-nexus/internal/pkg/logger"
	"emergency-nexus/internal/pkg/mq"

	"github.com/segmentio/kafka-go"
)

// NewDeadLetterConsumer 监听补偿死信队列并记录日志，这些补偿需要人工介入
func NewDeadLetterConsumer(reader mq.MessageReader) *mq.Consumer {
	return mq.NewConsumer("compensation-dlt", reader, func(ctx context.Context, msg kafka.Message) error {
		logDeadLetter(ctx, msg)
		// 死信消息记录日志即视为处理完成
		return nil
	})
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_compensation").
		Str("original_topic", headers[mq.HeaderOriginalTopic]).
		Str("original_partition", headers[mq.HeaderOriginalPartition]).
		Str("original_offset", headers[mq.HeaderOriginalOffset]).
		Str("retry_count", headers[mq.HeaderRetryCount]).
		Str("exception_fqcn", headers[mq.HeaderExceptionFqcn]).
		Str("exception_message", headers[mq.HeaderExceptionMessage]).
		Str("allocation_id", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("CRITICAL: compensation moved to dead letter topic")
}
