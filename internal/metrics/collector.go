// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 路由指标
	routeDecisions  *prometheus.CounterVec
	blockedRequests *prometheus.CounterVec
	proxyErrors     *prometheus.CounterVec
	estimatedTokens *prometheus.CounterVec

	// CLI 指标
	cliInvocations *prometheus.CounterVec
	cliDuration    *prometheus.HistogramVec
	cliInFlight    prometheus.Gauge

	// 统计存储指标
	ledgerOpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWith 创建指标收集器，注册到 reg
func NewCollectorWith(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
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
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// 路由指标
	c.routeDecisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Routing decisions by family and route",
		},
		[]string{"family", "route"},
	)

	c.blockedRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_requests_total",
			Help:      "Requests rejected by the gate",
		},
		[]string{"reason"}, // reason: path, method, body_size, rate_limit
	)

	c.proxyErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed requests by error code",
		},
		[]string{"code"},
	)

	c.estimatedTokens = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimated_tokens_total",
			Help:      "Estimated tokens reported on the local route",
		},
		[]string{"type"}, // type: input, output
	)

	// CLI 指标
	c.cliInvocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cli_invocations_total",
			Help:      "Local CLI invocations by outcome",
		},
		[]string{"executable", "outcome"},
	)

	c.cliDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cli_invocation_duration_seconds",
			Help:      "Local CLI wall time in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"executable"},
	)

	c.cliInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cli_invocations_in_flight",
			Help:      "Local CLI invocations currently running",
		},
	)

	c.ledgerOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Stats ledger operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"driver", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔀 路由指标记录
// =============================================================================

// RecordRoute 记录一次路由决策
func (c *Collector) RecordRoute(family, route string) {
	c.routeDecisions.WithLabelValues(family, route).Inc()
}

// RecordBlocked 记录被拦截的请求
func (c *Collector) RecordBlocked(reason string) {
	c.blockedRequests.WithLabelValues(reason).Inc()
}

// RecordError 记录失败请求
func (c *Collector) RecordError(code string) {
	c.proxyErrors.WithLabelValues(code).Inc()
}

// RecordEstimatedTokens 记录本地路径的估算 token
func (c *Collector) RecordEstimatedTokens(input, output int) {
	c.estimatedTokens.WithLabelValues("input").Add(float64(input))
	c.estimatedTokens.WithLabelValues("output").Add(float64(output))
}

// =============================================================================
// 🖥️ CLI 指标记录
// =============================================================================

// RecordCLIInvocation 记录 CLI 调用，签名与 cli.Observer 一致
func (c *Collector) RecordCLIInvocation(executable, outcome string, duration time.Duration) {
	c.cliInvocations.WithLabelValues(executable, outcome).Inc()
	if duration > 0 {
		c.cliDuration.WithLabelValues(executable).Observe(duration.Seconds())
	}
}

// TrackCLI 标记一次 CLI 调用开始，返回结束回调
func (c *Collector) TrackCLI() func() {
	c.cliInFlight.Inc()
	return c.cliInFlight.Dec
}

// RecordLedgerOp 记录统计存储操作耗时
func (c *Collector) RecordLedgerOp(driver, operation string, duration time.Duration) {
	c.ledgerOpDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

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
