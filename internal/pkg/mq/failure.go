package mq

import (
	"context"
	"fmt"
	"strconv"

	"emergency-nexus/internal/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// 失败消息转投时附加的消息头
const (
	HeaderRetryCount        = "x-retry-count"
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"
)

// FailureHandler 把处理失败的消息投递到重试 topic，超过最大重试次数后投递到死信 topic
type FailureHandler struct {
	retryWriter MessageWriter
	dltWriter   MessageWriter
	maxRetries  int
}

func NewFailureHandler(retryWriter, dltWriter MessageWriter, maxRetries int) *FailureHandler {
	return &FailureHandler{retryWriter: retryWriter, dltWriter: dltWriter, maxRetries: maxRetries}
}

// RetryCount 返回消息已经被重试的次数
func RetryCount(msg kafka.Message) int {
	carrier := KafkaHeaderCarrier(msg.Headers)
	n, err := strconv.Atoi(carrier.Get(HeaderRetryCount))
	if err != nil {
		return 0
	}
	return n
}

// Handle 决定失败消息的去向，返回投递本身的错误
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) error {
	retries := RetryCount(msg)

	carrier := KafkaHeaderCarrier(append([]kafka.Header(nil), msg.Headers...))
	if carrier.Get(HeaderOriginalTopic) == "" {
		carrier.Set(HeaderOriginalTopic, msg.Topic)
		carrier.Set(HeaderOriginalPartition, strconv.Itoa(msg.Partition))
		carrier.Set(HeaderOriginalOffset, strconv.FormatInt(msg.Offset, 10))
	}
	carrier.Set(HeaderExceptionFqcn, fmt.Sprintf("%T", cause))
	carrier.Set(HeaderExceptionMessage, cause.Error())

	target, dest := h.retryWriter, "retry"
	if retries >= h.maxRetries {
		target, dest = h.dltWriter, "dead-letter"
	} else {
		carrier.Set(HeaderRetryCount, strconv.Itoa(retries+1))
	}

	logger.Ctx(ctx).Warn().Err(cause).
		Int("retries", retries).
		Str("destination", dest).
		Str("key", string(msg.Key)).
		Msg("message processing failed, forwarding")

	return target.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: carrier,
	})
}
