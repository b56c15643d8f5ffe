// Package metrics 提供 Prometheus 指标定义与业务侧的指标采集接口
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "risk"

// Metrics 指标集合
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 缓存命中/未命中与回写失败
	CacheRequestsTotal      *prometheus.CounterVec
	CacheWriteFailuresTotal *prometheus.CounterVec

	// 央行征信接口
	CreditCallsTotal     *prometheus.CounterVec
	CreditCallDuration   prometheus.Histogram
	CreditFallbacksTotal prometheus.Counter
	CircuitStateChanges  *prometheus.CounterVec
	CircuitState         *prometheus.GaugeVec
	RetryAttemptFailures *prometheus.CounterVec

	// 评估
	AssessmentsTotal   *prometheus.CounterVec
	AssessmentDuration prometheus.Histogram

	// 消息
	EventsPublishedTotal *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec

	// 后台任务
	BackgroundTasksTotal *prometheus.CounterVec
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		CacheRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by cache name and result",
		}, []string{"cache", "result"}),
		CacheWriteFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "cache_write_failures_total",
			Help:      "Failed cache writes by cache name",
		}, []string{"cache"}),
		CreditCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "credit_bureau_calls_total",
			Help:      "Credit bureau calls by outcome",
		}, []string{"outcome"}),
		CreditCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "credit_bureau_call_duration_seconds",
			Help:      "Credit bureau call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CreditFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "credit_bureau_fallbacks_total",
			Help:      "Credit reports served from the fallback value",
		}),
		CircuitStateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"name", "from", "to"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "circuit_breaker_open",
			Help:      "1 when the circuit breaker is not closed",
		}, []string{"name"}),
		RetryAttemptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "retry_attempt_failures_total",
			Help:      "Failed downstream attempts inside a retry loop",
		}, []string{"name"}),
		AssessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "assessments_total",
			Help:      "Risk assessments by decision",
		}, []string{"decision"}),
		AssessmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "assessment_duration_seconds",
			Help:      "End-to-end risk assessment duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 45, 60},
		}),
		EventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "events_published_total",
			Help:      "Published events by topic and result",
		}, []string{"topic", "result"}),
		EventsConsumedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "events_consumed_total",
			Help:      "Consumed events by topic and result",
		}, []string{"topic", "result"}),
		BackgroundTasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "background_tasks_total",
			Help:      "Detached background tasks by task and result",
		}, []string{"task", "result"}),
	}
}

// Register 注册到指定的 Registerer
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheRequestsTotal,
		m.CacheWriteFailuresTotal,
		m.CreditCallsTotal,
		m.CreditCallDuration,
		m.CreditFallbacksTotal,
		m.CircuitStateChanges,
		m.CircuitState,
		m.RetryAttemptFailures,
		m.AssessmentsTotal,
		m.AssessmentDuration,
		m.EventsPublishedTotal,
		m.EventsConsumedTotal,
		m.BackgroundTasksTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler 返回 /metrics 处理器
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// MetricsCollector 业务侧的指标采集接口
type MetricsCollector interface {
	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration)
	RecordCacheRequest(cache string, hit bool)
	RecordCacheWriteFailure(cache string)
	RecordCreditCall(outcome string, duration time.Duration)
	RecordCreditFallback()
	RecordCircuitStateChange(name, from, to string)
	RecordRetryAttemptFailure(name string)
	RecordAssessment(decision string, duration time.Duration)
	RecordEventPublished(topic string, success bool)
	RecordEventConsumed(topic string, success bool)
	RecordBackgroundTask(task string, success bool)
}

// DefaultMetricsCollector 基于 Prometheus 的采集实现
type DefaultMetricsCollector struct {
	metrics *Metrics
}

// NewDefaultMetricsCollector 创建默认指标采集器
func NewDefaultMetricsCollector(m *Metrics) *DefaultMetricsCollector {
	return &DefaultMetricsCollector{metrics: m}
}

func (c *DefaultMetricsCollector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	c.metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *DefaultMetricsCollector) RecordCacheRequest(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.metrics.CacheRequestsTotal.WithLabelValues(cache, result).Inc()
}

func (c *DefaultMetricsCollector) RecordCacheWriteFailure(cache string) {
	c.metrics.CacheWriteFailuresTotal.WithLabelValues(cache).Inc()
}

func (c *DefaultMetricsCollector) RecordCreditCall(outcome string, duration time.Duration) {
	c.metrics.CreditCallsTotal.WithLabelValues(outcome).Inc()
	c.metrics.CreditCallDuration.Observe(duration.Seconds())
}

func (c *DefaultMetricsCollector) RecordCreditFallback() {
	c.metrics.CreditFallbacksTotal.Inc()
}

func (c *DefaultMetricsCollector) RecordCircuitStateChange(name, from, to string) {
	c.metrics.CircuitStateChanges.WithLabelValues(name, from, to).Inc()
	open := 1.0
	if to == "CLOSED" {
		open = 0
	}
	c.metrics.CircuitState.WithLabelValues(name).Set(open)
}

func (c *DefaultMetricsCollector) RecordRetryAttemptFailure(name string) {
	c.metrics.RetryAttemptFailures.WithLabelValues(name).Inc()
}

func (c *DefaultMetricsCollector) RecordAssessment(decision string, duration time.Duration) {
	c.metrics.AssessmentsTotal.WithLabelValues(decision).Inc()
	c.metrics.AssessmentDuration.Observe(duration.Seconds())
}

func (c *DefaultMetricsCollector) RecordEventPublished(topic string, success bool) {
	c.metrics.EventsPublishedTotal.WithLabelValues(topic, result(success)).Inc()
}

func (c *DefaultMetricsCollector) RecordEventConsumed(topic string, success bool) {
	c.metrics.EventsConsumedTotal.WithLabelValues(topic, result(success)).Inc()
}

func (c *DefaultMetricsCollector) RecordBackgroundTask(task string, success bool) {
	c.metrics.BackgroundTasksTotal.WithLabelValues(task, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
