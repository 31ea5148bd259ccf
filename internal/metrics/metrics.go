// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordAuthAttempt(method string, success bool)
	RecordGuardDecision(kind string, allowed bool)
	RecordUploadBytes(kind string, bytes int64)
	RecordUploadLatency(duration time.Duration)
	RecordCatalogMutation(operation string)
	RecordHTTPStatus(statusCode int)
	SetStreamClients(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts    *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
	uploadBytes     *prometheus.CounterVec
	uploadLatency   prometheus.Histogram
	catalogMutation *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	streamClients   prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolvault_auth_attempts_total",
			Help: "認証試行の合計数（方式別・成否別）",
		}, []string{"method", "result"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolvault_guard_decisions_total",
			Help: "ルートガード判定の合計数（種別・結果別）",
		}, []string{"kind", "result"}),
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolvault_upload_bytes_total",
			Help: "アップロードされたアセットの合計バイト数（種別別）",
		}, []string{"kind"}),
		uploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolvault_upload_latency_seconds",
			Help:    "アセットアップロードのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		catalogMutation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolvault_catalog_mutations_total",
			Help: "カタログ変更操作の合計数（操作別）",
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolvault_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolvault_stream_clients",
			Help: "接続中のカタログストリームクライアント数",
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.guardDecisions,
		c.uploadBytes,
		c.uploadLatency,
		c.catalogMutation,
		c.httpStatus,
		c.streamClients,
	)

	return c
}

// RecordAuthAttempt は認証試行を記録する。methodは"password"か"google"。
func (c *Collector) RecordAuthAttempt(method string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttempts.WithLabelValues(method, result).Inc()
}

// RecordGuardDecision はルートガード判定を記録する。kindは"public"か"private"。
func (c *Collector) RecordGuardDecision(kind string, allowed bool) {
	result := "redirect"
	if allowed {
		result = "allow"
	}
	c.guardDecisions.WithLabelValues(kind, result).Inc()
}

// RecordUploadBytes はアップロードされたバイト数を記録する。
func (c *Collector) RecordUploadBytes(kind string, bytes int64) {
	c.uploadBytes.WithLabelValues(kind).Add(float64(bytes))
}

// RecordUploadLatency はアップロードのレイテンシを記録する。
func (c *Collector) RecordUploadLatency(duration time.Duration) {
	c.uploadLatency.Observe(duration.Seconds())
}

// RecordCatalogMutation はカタログ変更操作を記録する。
// operationは"create"、"update"、"delete"、"favorite"のいずれか。
func (c *Collector) RecordCatalogMutation(operation string) {
	c.catalogMutation.WithLabelValues(operation).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetStreamClients は接続中のストリームクライアント数を設定する。
func (c *Collector) SetStreamClients(count int) {
	c.streamClients.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
