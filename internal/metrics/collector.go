// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 crews.Recorder
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Crew 指标
	crewRunsTotal     *prometheus.CounterVec
	crewRunDuration   *prometheus.HistogramVec
	crewTasksTotal    *prometheus.CounterVec
	crewTaskDuration  *prometheus.HistogramVec
	crewInvocations   *prometheus.CounterVec
	crewRateLimitWait *prometheus.HistogramVec

	// 定义重载指标
	reloadsTotal       *prometheus.CounterVec
	definitionsVersion prometheus.Gauge

	logger *zap.Logger
}

var _ crews.Recorder = (*Collector)(nil)

// NewCollector 创建指标收集器，注册到 prometheus.DefaultRegisterer
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建注册到 reg 的指标收集器
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// Crew 指标
	c.crewRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_runs_total",
			Help:      "Total number of crew runs by final status",
		},
		[]string{"crew", "status"},
	)

	c.crewRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crew_run_duration_seconds",
			Help:      "Crew run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"crew"},
	)

	c.crewTasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_tasks_total",
			Help:      "Total number of task units by final status",
		},
		[]string{"crew", "task", "agent", "status"},
	)

	c.crewTaskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crew_task_duration_seconds",
			Help:      "Task unit duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"crew", "agent"},
	)

	c.crewInvocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_invocations_total",
			Help:      "Total number of capability invocations, delegated calls included",
		},
		[]string{"crew", "agent", "delegated"},
	)

	c.crewRateLimitWait = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crew_rate_limit_wait_seconds",
			Help:      "Time spent waiting for the crew rate budget",
			Buckets:   []float64{0, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
		[]string{"crew"},
	)

	// 定义重载指标
	c.reloadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "definitions_reloads_total",
			Help:      "Total number of definition reload attempts by result",
		},
		[]string{"result"},
	)

	c.definitionsVersion = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "definitions_version",
			Help:      "Version of the published definition snapshot",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 Crew 指标记录
// =============================================================================

// RecordRun 记录一次 crew 运行
func (c *Collector) RecordRun(crewID string, status crews.CrewStatus, d time.Duration) {
	c.crewRunsTotal.WithLabelValues(crewID, string(status)).Inc()
	c.crewRunDuration.WithLabelValues(crewID).Observe(d.Seconds())
}

// RecordTask 记录一个任务单元的终态
func (c *Collector) RecordTask(crewID, taskID, agentID string, status crews.TaskStatus, d time.Duration) {
	c.crewTasksTotal.WithLabelValues(crewID, taskID, agentID, string(status)).Inc()
	c.crewTaskDuration.WithLabelValues(crewID, agentID).Observe(d.Seconds())
}

// RecordInvocation 记录一次能力调用
func (c *Collector) RecordInvocation(crewID, agentID string, delegated bool) {
	c.crewInvocations.WithLabelValues(crewID, agentID, strconv.FormatBool(delegated)).Inc()
}

// RecordRateLimitWait 记录等待速率预算的时间
func (c *Collector) RecordRateLimitWait(crewID string, d time.Duration) {
	c.crewRateLimitWait.WithLabelValues(crewID).Observe(d.Seconds())
}

// RecordReload 记录一次定义重载尝试
func (c *Collector) RecordReload(version uint64, err error) {
	if err != nil {
		c.reloadsTotal.WithLabelValues("error").Inc()
		return
	}
	c.reloadsTotal.WithLabelValues("success").Inc()
	c.definitionsVersion.Set(float64(version))
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
