// Package metrics 定义了所有服务共用的 Prometheus 指标，通过 /metrics 暴露。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationRequests 按结果(approved/rejected)和位置统计校验请求
	ValidationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_requests_total",
		Help: "Total number of validation requests",
	}, []string{"result", "location"})

	ValidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "validation_duration_seconds",
		Help:    "Duration of validation requests in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5},
	})

	// DownstreamErrors 统计对资源池服务的失败调用
	DownstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "downstream_service_errors_total",
		Help: "Total number of errors when calling downstream services",
	}, []string{"service"})

	PoolAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pool_allocations_total",
		Help: "Total number of allocate calls by pool kind and result",
	}, []string{"kind", "result"})

	PoolAvailableCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pool_available_capacity",
		Help: "Available capacity per pool kind and location",
	}, []string{"kind", "location"})

	SagaOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_outcomes_total",
		Help: "Terminal saga states",
	}, []string{"state"})

	CompensationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_compensation_failures_total",
		Help: "Compensations that failed on the first attempt, by pool kind",
	}, []string{"kind"})
)
