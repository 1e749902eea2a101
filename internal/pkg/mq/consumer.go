package mq

import (
	"context"
	"sync"
	"time"

	"emergency-nexus/internal/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// HandlerFunc 处理一条消息，返回错误时消息交给 FailureHandler
type HandlerFunc func(ctx context.Context, msg kafka.Message) error

// Consumer 是一个长期运行的消费循环
type Consumer struct {
	name           string
	reader         MessageReader
	handle         HandlerFunc
	failureHandler *FailureHandler
	delay          time.Duration
	backoff        time.Duration
	maxBackoff     time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type ConsumerOption func(*Consumer)

// WithFailureHandler 处理失败的消息转投到重试/死信 topic
func WithFailureHandler(h *FailureHandler) ConsumerOption {
	return func(c *Consumer) {
		c.failureHandler = h
	}
}

// WithDelay 消息在写入 delay 时长之后才被处理，用于重试 topic 的退避
func WithDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.delay = d
	}
}

// WithForwardBackoff 设置转投失败后原地重试的初始间隔和上限
func WithForwardBackoff(initial, max time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.backoff = initial
		c.maxBackoff = max
	}
}

func NewConsumer(name string, reader MessageReader, handle HandlerFunc, opts ...ConsumerOption) *Consumer {
	c := &Consumer{name: name, reader: reader, handle: handle, backoff: 500 * time.Millisecond, maxBackoff: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 开始在后台消费，直到 Stop 被调用
func (c *Consumer) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("consumer", c.name).Msg("Kafka consumer started")
		for {
			// 使用 FetchMessage 而不是 ReadMessage，处理完再手动提交 offset
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Str("consumer", c.name).Msg("Kafka consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Str("consumer", c.name).Msg("could not read message, retrying")
				if !sleepCtx(ctx, time.Second) {
					return
				}
				continue
			}

			if c.delay > 0 && !msg.Time.IsZero() {
				if !sleepCtx(ctx, time.Until(msg.Time.Add(c.delay))) {
					return
				}
			}

			msgCtx := ExtractContext(ctx, msg)
			if err := c.handle(msgCtx, msg); err != nil {
				if c.failureHandler == nil {
					logger.Ctx(msgCtx).Error().Err(err).Str("consumer", c.name).Msg("message processing failed")
				} else if !c.forward(msgCtx, msg, err) {
					return
				}
			}

			// 无论成功或失败（已移交），都提交 offset
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("consumer", c.name).Msg("failed to commit message")
			}
		}
	}()
}

// forward 把失败消息转投出去，失败时原地退避重试。
// offset 按分区递增提交，跳过这条消息去处理后面的消息会让它永远丢失。
func (c *Consumer) forward(ctx context.Context, msg kafka.Message, cause error) bool {
	wait := c.backoff
	for {
		ferr := c.failureHandler.Handle(ctx, msg, cause)
		if ferr == nil {
			return true
		}
		logger.Ctx(ctx).Error().Err(ferr).Str("consumer", c.name).Dur("backoff", wait).Msg("failed to forward failed message, retrying")
		if !sleepCtx(ctx, wait) {
			return false
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

// Stop 优雅地停止消费者
func (c *Consumer) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	err := c.reader.Close()
	logger.Ctx(ctx).Info().Str("consumer", c.name).Msg("Kafka consumer stopped")
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
