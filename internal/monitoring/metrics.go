package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slicing_inbox"

// Metrics 监控指标。所有 Record 方法对 nil 接收者安全。
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 收件箱指标
	EventsIngested    *prometheus.CounterVec // outcome: created|duplicate|auto_linked|invalid|error
	Transitions       *prometheus.CounterVec // action, result
	ProductSyncErrors *prometheus.CounterVec // mode: manual|automated
	DedupRetries      prometheus.Counter
	IngestDuration    prometheus.Histogram
	WebsocketClients  prometheus.Gauge
	HookRejected      *prometheus.CounterVec // reason: unauthorized|invalid|rate_limited
	PanicsTotal       prometheus.Counter
	ListCacheLookups  *prometheus.CounterVec // result: hit|miss
}

// NewMetrics 在给定注册表上创建监控指标；reg 为 nil 时使用默认注册表。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		EventsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Slicing events processed by ingestion, by outcome",
			},
			[]string{"outcome"},
		),

		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Inbox lifecycle transitions, by action and result",
			},
			[]string{"action", "result"},
		),

		ProductSyncErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "product_sync_errors_total",
				Help:      "Failed production metadata writes, by mode",
			},
			[]string{"mode"},
		),

		DedupRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_retries_total",
				Help:      "Create attempts retried after a concurrent dedup claim",
			},
		),

		IngestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "Duration of slicing event ingestion",
				Buckets:   prometheus.DefBuckets,
			},
		),

		WebsocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Connected operator feed clients",
			},
		),

		HookRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_rejected_total",
				Help:      "Slicer hook requests rejected before ingestion",
			},
			[]string{"reason"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panics_total",
				Help:      "Total number of recovered panics",
			},
		),

		ListCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "list_cache_lookups_total",
				Help:      "Inbox list snapshot cache lookups",
			},
			[]string{"result"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordIngest 记录一次事件摄取结果
func (m *Metrics) RecordIngest(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.EventsIngested.WithLabelValues(outcome).Inc()
	m.IngestDuration.Observe(duration.Seconds())
}

// RecordTransition 记录一次状态迁移
func (m *Metrics) RecordTransition(action, result string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, result).Inc()
}

// RecordProductSyncError 记录生产元数据同步失败
func (m *Metrics) RecordProductSyncError(mode string) {
	if m == nil {
		return
	}
	m.ProductSyncErrors.WithLabelValues(mode).Inc()
}

// RecordDedupRetry 记录去重冲突重试
func (m *Metrics) RecordDedupRetry() {
	if m == nil {
		return
	}
	m.DedupRetries.Inc()
}

// RecordHookRejected 记录被拒绝的上报
func (m *Metrics) RecordHookRejected(reason string) {
	if m == nil {
		return
	}
	m.HookRejected.WithLabelValues(reason).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordListCache 记录列表缓存命中情况
func (m *Metrics) RecordListCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ListCacheLookups.WithLabelValues(result).Inc()
}

// SetWebsocketClients 更新 WebSocket 连接数
func (m *Metrics) SetWebsocketClients(count int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Set(float64(count))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
