// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/internal/cache"
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

	// 防护指标
	inboundDecisions    *prometheus.CounterVec
	outboundValidations *prometheus.CounterVec
	pipelineDuration    *prometheus.HistogramVec
	violationsTotal     *prometheus.CounterVec
	degradationsTotal   *prometheus.CounterVec

	// 情绪与会话指标
	moodAnalyses   *prometheus.CounterVec
	activeSessions prometheus.Gauge

	namespace string
	logger    *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		namespace: namespace,
		logger:    logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 防护指标
	c.inboundDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_decisions_total",
			Help:      "Total number of inbound guardrail decisions",
		},
		[]string{"response_type", "risk_level"},
	)

	c.outboundValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_validations_total",
			Help:      "Total number of outbound response validations",
		},
		[]string{"safe", "fallback_used", "risk_level"},
	)

	c.pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Guardrail pipeline duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"direction"},
	)

	c.violationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Total number of guardrail violations",
		},
		[]string{"direction", "category", "kind"},
	)

	c.degradationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_degradations_total",
			Help:      "Total number of detector fallbacks",
		},
		[]string{"detector"},
	)

	// 情绪与会话指标
	c.moodAnalyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mood_analyses_total",
			Help:      "Total number of mood analyses",
		},
		[]string{"source", "support_needed"},
	)

	c.activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of conversation sessions held in memory",
		},
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
// 🛡️ 防护指标记录
// =============================================================================

// RecordInboundDecision 记录一次输入侧决策
func (c *Collector) RecordInboundDecision(responseType, riskLevel string, duration time.Duration) {
	c.inboundDecisions.WithLabelValues(responseType, riskLevel).Inc()
	c.pipelineDuration.WithLabelValues("inbound").Observe(duration.Seconds())
}

// RecordOutboundValidation 记录一次输出侧校验
func (c *Collector) RecordOutboundValidation(safe, fallbackUsed bool, riskLevel string, duration time.Duration) {
	c.outboundValidations.WithLabelValues(strconv.FormatBool(safe), strconv.FormatBool(fallbackUsed), riskLevel).Inc()
	c.pipelineDuration.WithLabelValues("outbound").Observe(duration.Seconds())
}

// RecordViolation 记录一条违规
func (c *Collector) RecordViolation(direction, category, kind string) {
	c.violationsTotal.WithLabelValues(direction, category, kind).Inc()
}

// RecordDegradation 记录一次检测器回退
func (c *Collector) RecordDegradation(detector string) {
	c.degradationsTotal.WithLabelValues(detector).Inc()
}

// RecordMoodAnalysis 记录一次情绪分析
func (c *Collector) RecordMoodAnalysis(source string, supportNeeded bool) {
	c.moodAnalyses.WithLabelValues(source, strconv.FormatBool(supportNeeded)).Inc()
}

// SetActiveSessions 更新内存中的会话数
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RegisterCacheStats 以缓存自身的访问统计导出命中、未命中、错误计数与命中率。
// 同一 cacheType 只能注册一次。
func (c *Collector) RegisterCacheStats(cacheType string, stats func() cache.Stats) {
	labels := prometheus.Labels{"cache_type": cacheType}

	promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   c.namespace,
		Name:        "cache_hits_total",
		Help:        "Total number of cache hits",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Hits) })

	promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   c.namespace,
		Name:        "cache_misses_total",
		Help:        "Total number of cache misses",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Misses) })

	promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   c.namespace,
		Name:        "cache_errors_total",
		Help:        "Total number of cache backend errors",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Errors) })

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   c.namespace,
		Name:        "cache_hit_ratio",
		Help:        "Cache hit ratio since process start",
		ConstLabels: labels,
	}, func() float64 { return stats().HitRate() })
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
