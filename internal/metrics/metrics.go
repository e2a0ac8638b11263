// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// パイプラインのオーケストレーターから利用する。
type MetricsCollector interface {
	RecordItemsFetched(source string, count int)
	RecordFetchFailure(source string)
	RecordFetchLatency(source string, duration time.Duration)
	RecordItemsFiltered(count int)
	RecordItemsNew(count int)
	RecordNotificationSent()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	itemsFetched  *prometheus.CounterVec
	fetchFail     *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	itemsFiltered prometheus.Counter
	itemsNew      prometheus.Counter
	notifications prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		itemsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendsieve_items_fetched_total",
			Help: "収集元別のフェッチ済みアイテム合計数",
		}, []string{"source"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendsieve_fetch_fail_total",
			Help: "収集元別のフェッチ失敗合計数",
		}, []string{"source"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendsieve_fetch_latency_seconds",
			Help:    "収集元別のフェッチレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		itemsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendsieve_items_filtered_total",
			Help: "関連性フィルタを通過したアイテムの合計数",
		}),
		itemsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendsieve_items_new_total",
			Help: "新規に観測されたアイテムの合計数",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendsieve_notifications_sent_total",
			Help: "送信された通知の合計数",
		}),
	}

	reg.MustRegister(
		c.itemsFetched,
		c.fetchFail,
		c.fetchLatency,
		c.itemsFiltered,
		c.itemsNew,
		c.notifications,
	)

	return c
}

// RecordItemsFetched は収集元別のフェッチ済みアイテム数を記録する。
func (c *Collector) RecordItemsFetched(source string, count int) {
	c.itemsFetched.WithLabelValues(source).Add(float64(count))
}

// RecordFetchFailure は収集元全体のフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(source string) {
	c.fetchFail.WithLabelValues(source).Inc()
}

// RecordFetchLatency は収集元別のフェッチレイテンシを記録する。
func (c *Collector) RecordFetchLatency(source string, duration time.Duration) {
	c.fetchLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordItemsFiltered はフィルタを通過したアイテム数を記録する。
func (c *Collector) RecordItemsFiltered(count int) {
	c.itemsFiltered.Add(float64(count))
}

// RecordItemsNew は新規観測アイテム数を記録する。
func (c *Collector) RecordItemsNew(count int) {
	c.itemsNew.Add(float64(count))
}

// RecordNotificationSent は通知送信を記録する。
func (c *Collector) RecordNotificationSent() {
	c.notifications.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// ルーターが/metricsパスにマウントする。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
