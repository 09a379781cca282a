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
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordSignup()
	RecordCheckoutSuccess()
	RecordCheckoutFailure(reason string)
	RecordTradeCreated()
	RecordCatalogLookup(found bool)
	RecordCatalogLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signups         prometheus.Counter
	checkoutSuccess prometheus.Counter
	checkoutFail    *prometheus.CounterVec
	tradesCreated   prometheus.Counter
	catalogLookups  *prometheus.CounterVec
	catalogLatency  prometheus.Histogram
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhystic_signups_total",
			Help: "ユーザー登録成功の合計数",
		}),
		checkoutSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhystic_checkout_success_total",
			Help: "チェックアウト成功の合計数",
		}),
		checkoutFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhystic_checkout_fail_total",
			Help: "チェックアウト失敗の理由別合計数",
		}, []string{"reason"}),
		tradesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhystic_trades_created_total",
			Help: "作成された出品の合計数",
		}),
		catalogLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhystic_catalog_lookup_total",
			Help: "外部カタログ照会の結果別合計数",
		}, []string{"result"}),
		catalogLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rhystic_catalog_latency_seconds",
			Help:    "外部カタログ照会のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhystic_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.signups,
		c.checkoutSuccess,
		c.checkoutFail,
		c.tradesCreated,
		c.catalogLookups,
		c.catalogLatency,
		c.httpStatus,
	)

	return c
}

// RecordSignup はユーザー登録成功を記録する。
func (c *Collector) RecordSignup() {
	c.signups.Inc()
}

// RecordCheckoutSuccess はチェックアウト成功を記録する。
func (c *Collector) RecordCheckoutSuccess() {
	c.checkoutSuccess.Inc()
}

// RecordCheckoutFailure はチェックアウト失敗を理由付きで記録する。
func (c *Collector) RecordCheckoutFailure(reason string) {
	c.checkoutFail.WithLabelValues(reason).Inc()
}

// RecordTradeCreated は出品作成を記録する。
func (c *Collector) RecordTradeCreated() {
	c.tradesCreated.Inc()
}

// RecordCatalogLookup はカタログ照会の結果を記録する。
func (c *Collector) RecordCatalogLookup(found bool) {
	result := "found"
	if !found {
		result = "not_found"
	}
	c.catalogLookups.WithLabelValues(result).Inc()
}

// RecordCatalogLatency はカタログ照会のレイテンシを記録する。
func (c *Collector) RecordCatalogLatency(duration time.Duration) {
	c.catalogLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
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
