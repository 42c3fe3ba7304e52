// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 外部API呼び出しの結果ラベル
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomePayload   = "payload"
)

// 正規化で破棄された投稿の理由ラベル
const (
	DropReasonFiltered  = "filtered"
	DropReasonDuplicate = "duplicate"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 外部APIクライアントやフィードセッションから利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(provider, outcome string, duration time.Duration)
	RecordItemsAppended(count int)
	RecordItemsDropped(reason string, count int)
	SetActiveFeedSessions(count int)
	RecordCaptionResult(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	itemsAppended    prometheus.Counter
	itemsDropped     *prometheus.CounterVec
	feedSessions     prometheus.Gauge
	captionResults   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memeify_upstream_requests_total",
			Help: "外部API呼び出しの結果別の合計数",
		}, []string{"provider", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memeify_upstream_latency_seconds",
			Help:    "外部API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		itemsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memeify_feed_items_appended_total",
			Help: "フィードセッションに追加された投稿の合計数",
		}),
		itemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memeify_feed_items_dropped_total",
			Help: "正規化で破棄された投稿の理由別の合計数",
		}, []string{"reason"}),
		feedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memeify_feed_sessions_active",
			Help: "アクティブなフィードセッション数",
		}),
		captionResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memeify_caption_results_total",
			Help: "キャプション生成の成否別の合計数",
		}, []string{"success"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.itemsAppended,
		c.itemsDropped,
		c.feedSessions,
		c.captionResults,
	)

	return c
}

// RecordUpstreamRequest は外部API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstreamRequest(provider, outcome string, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(provider, outcome).Inc()
	c.upstreamLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordItemsAppended は追加された投稿数を記録する。
func (c *Collector) RecordItemsAppended(count int) {
	c.itemsAppended.Add(float64(count))
}

// RecordItemsDropped は破棄された投稿数を記録する。
func (c *Collector) RecordItemsDropped(reason string, count int) {
	if count <= 0 {
		return
	}
	c.itemsDropped.WithLabelValues(reason).Add(float64(count))
}

// SetActiveFeedSessions はアクティブなフィードセッション数を設定する。
func (c *Collector) SetActiveFeedSessions(count int) {
	c.feedSessions.Set(float64(count))
}

// RecordCaptionResult はキャプション生成の成否を記録する。
func (c *Collector) RecordCaptionResult(success bool) {
	c.captionResults.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
