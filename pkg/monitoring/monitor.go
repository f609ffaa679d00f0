package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 进程内指标注册表。作为显式依赖注入到各组件中，
// 生命周期跟随进程，不使用包级可变状态。
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	LockAcquireTotal *prometheus.CounterVec // labels: kind, result
	LockHoldSeconds  *prometheus.HistogramVec

	RateLimitTotal *prometheus.CounterVec // labels: operation, result

	AnswerFlushTotal   *prometheus.CounterVec // labels: result
	AnswerPublishTotal *prometheus.CounterVec // labels: result
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		LockAcquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_lock_acquire_total",
				Help: "Distributed lock acquire attempts by kind and result",
			},
			[]string{"kind", "result"},
		),
		LockHoldSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exam_lock_hold_seconds",
				Help:    "Distributed lock hold time",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 3, 5, 10},
			},
			[]string{"kind"},
		),
		RateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_rate_limit_total",
				Help: "Per-user admission checks by operation and result",
			},
			[]string{"operation", "result"},
		),
		AnswerFlushTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_answer_flush_total",
				Help: "Buffered answer flushes by result",
			},
			[]string{"result"},
		),
		AnswerPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_answer_publish_total",
				Help: "Answer message publishes by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.LockAcquireTotal,
		m.LockHoldSeconds,
		m.RateLimitTotal,
		m.AnswerFlushTotal,
		m.AnswerPublishTotal,
	)

	return m
}

func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		m.RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func (m *Metrics) PrometheusHandler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
