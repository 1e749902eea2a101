// Package orchestrator 组装编排服务：校验通过后依次预占两类资源，失败时逆序补偿。
package orchestrator

import (
	"context"
	"time"

	"emergency-nexus/internal/pkg/bootstrap"
	"emergency-nexus/internal/pkg/httpclient"
	"emergency-nexus/internal/pkg/mq"
	"emergency-nexus/internal/pkg/ratelimit"
	"emergency-nexus/internal/service/orchestrator/application"
	"emergency-nexus/internal/service/orchestrator/infrastructure/adapter"
	"emergency-nexus/internal/service/orchestrator/interfaces"

	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// retryDelay 是重试 topic 中补偿任务的最小延迟
const retryDelay = 5 * time.Second

// Wire 创建下游适配器、Kafka 生产者和消费者并注册路由
func Wire(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config

	clientOpts := []httpclient.Option{httpclient.WithTimeout(cfg.HTTP.RequestTimeout)}
	if appCtx.Nacos != nil {
		clientOpts = append(clientOpts, httpclient.WithDiscoverer(appCtx.Nacos))
	}
	client := httpclient.NewClient(appCtx.Tracer, clientOpts...)

	opts := []application.Option{application.WithStepTimeout(cfg.HTTP.RequestTimeout)}

	kafkaCfg := cfg.Infra.Kafka
	var writers []*kafka.Writer
	if kafkaCfg.Enabled {
		eventWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.SagaEventsTopic)
		retryWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.RetryTopic)
		dltWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.DeadLetterTopic)
		writers = append(writers, eventWriter, retryWriter, dltWriter)
		opts = append(opts,
			application.WithEventPublisher(adapter.NewSagaEventKafkaAdapter(eventWriter)),
			application.WithCompensationRetrier(adapter.NewCompensationKafkaAdapter(retryWriter)),
		)
	} else {
		opts = append(opts, application.WithEventPublisher(adapter.LogEventPublisher{}))
	}

	coordinator := application.NewCoordinator(
		adapter.NewValidationHTTPAdapter(client, cfg.Orchestrator.ValidationService),
		adapter.NewHospitalAdapter(client, cfg.Orchestrator.HospitalService),
		adapter.NewAmbulanceAdapter(client, cfg.Orchestrator.AmbulanceService),
		appCtx.Tracer,
		opts...,
	)

	if kafkaCfg.Enabled {
		// writers 最后关闭，消费者转投失败消息时还要用到它们
		appCtx.AddCloser("kafka-writers", func(context.Context) error {
			for _, w := range writers {
				if err := w.Close(); err != nil {
					zlog.Error().Err(err).Str("topic", w.Topic).Msg("failed to close kafka writer")
				}
			}
			return nil
		})

		failureHandler := mq.NewFailureHandler(writers[1], writers[2], kafkaCfg.MaxRetries)
		retryConsumer := interfaces.NewCompensationConsumer(
			mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.RetryTopic, kafkaCfg.ConsumerGroup),
			coordinator, failureHandler, mq.WithDelay(retryDelay))
		dltConsumer := interfaces.NewDeadLetterConsumer(
			mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.DeadLetterTopic, kafkaCfg.ConsumerGroup+"-dlt"))

		retryConsumer.Start(context.Background())
		dltConsumer.Start(context.Background())
		appCtx.AddCloser("compensation-retry-consumer", retryConsumer.Stop)
		appCtx.AddCloser("compensation-dlt-consumer", dltConsumer.Stop)
		zlog.Info().Strs("brokers", kafkaCfg.Brokers).Msg("Saga events and compensation retries enabled")
	}

	limiter := ratelimit.New(cfg.HTTP.RateLimit.RPS, cfg.HTTP.RateLimit.Burst)
	interfaces.NewOrchestratorHandler(coordinator, limiter.Middleware).RegisterRoutes(appCtx.Mux)
	return nil
}
