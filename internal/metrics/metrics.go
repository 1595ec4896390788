// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// スクレイプオーケストレーターやサービス層から利用する。
type MetricsCollector interface {
	RecordScrapeSuccess(platform string, listingCount int)
	RecordScrapeFailure(platform string)
	RecordListingsUpserted(count int)
	RecordItemSkipped(platform string)
	RecordFetchLatency(duration time.Duration)
	RecordRelayFetch()
	RecordAlertMatched()
	RecordNotificationSent(channel string)
	RecordNotificationFailed(channel string)
	RecordRunDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	scrapeSuccess      *prometheus.CounterVec
	scrapeFail         *prometheus.CounterVec
	listingsUpserted   prometheus.Counter
	itemsSkipped       *prometheus.CounterVec
	fetchLatency       prometheus.Histogram
	relayFetches       prometheus.Counter
	alertsMatched      prometheus.Counter
	notificationsSent  *prometheus.CounterVec
	notificationsFail  *prometheus.CounterVec
	runDuration        prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scrapeSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketscout_scrape_success_total",
			Help: "プラットフォーム別のスクレイプ成功の合計数",
		}, []string{"platform"}),
		scrapeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketscout_scrape_fail_total",
			Help: "プラットフォーム別のスクレイプ失敗の合計数",
		}, []string{"platform"}),
		listingsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_listings_upserted_total",
			Help: "アップサートされた出品の合計数",
		}),
		itemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketscout_items_skipped_total",
			Help: "パース失敗などでスキップされたアイテムの合計数",
		}, []string{"platform"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketscout_fetch_latency_seconds",
			Help:    "ページフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		relayFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_relay_fetch_total",
			Help: "バイパスリレー経由で実行されたフェッチの合計数",
		}),
		alertsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_alerts_matched_total",
			Help: "アラートにマッチした出品の合計数",
		}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketscout_notifications_sent_total",
			Help: "チャネル別の通知送信成功の合計数",
		}, []string{"channel"}),
		notificationsFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketscout_notifications_fail_total",
			Help: "チャネル別の通知送信失敗の合計数",
		}, []string{"channel"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketscout_run_duration_seconds",
			Help:    "スクレイプ実行全体の所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	reg.MustRegister(
		c.scrapeSuccess,
		c.scrapeFail,
		c.listingsUpserted,
		c.itemsSkipped,
		c.fetchLatency,
		c.relayFetches,
		c.alertsMatched,
		c.notificationsSent,
		c.notificationsFail,
		c.runDuration,
	)

	return c
}

// RecordScrapeSuccess はプラットフォームのスクレイプ成功を記録する。
func (c *Collector) RecordScrapeSuccess(platform string, listingCount int) {
	c.scrapeSuccess.WithLabelValues(platform).Inc()
}

// RecordScrapeFailure はプラットフォームのスクレイプ失敗を記録する。
func (c *Collector) RecordScrapeFailure(platform string) {
	c.scrapeFail.WithLabelValues(platform).Inc()
}

// RecordListingsUpserted はアップサートされた出品数を記録する。
func (c *Collector) RecordListingsUpserted(count int) {
	c.listingsUpserted.Add(float64(count))
}

// RecordItemSkipped はスキップされたアイテムを記録する。
func (c *Collector) RecordItemSkipped(platform string) {
	c.itemsSkipped.WithLabelValues(platform).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordRelayFetch はバイパスリレー経由のフェッチを記録する。
func (c *Collector) RecordRelayFetch() {
	c.relayFetches.Inc()
}

// RecordAlertMatched はアラートマッチを記録する。
func (c *Collector) RecordAlertMatched() {
	c.alertsMatched.Inc()
}

// RecordNotificationSent は通知送信成功を記録する。
func (c *Collector) RecordNotificationSent(channel string) {
	c.notificationsSent.WithLabelValues(channel).Inc()
}

// RecordNotificationFailed は通知送信失敗を記録する。
func (c *Collector) RecordNotificationFailed(channel string) {
	c.notificationsFail.WithLabelValues(channel).Inc()
}

// RecordRunDuration はスクレイプ実行全体の所要時間を記録する。
func (c *Collector) RecordRunDuration(duration time.Duration) {
	c.runDuration.Observe(duration.Seconds())
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

var _ MetricsCollector = (*Collector)(nil)

// NopCollector は何も記録しないMetricsCollector実装。テストで使用する。
type NopCollector struct{}

func (NopCollector) RecordScrapeSuccess(platform string, listingCount int) {}
func (NopCollector) RecordScrapeFailure(platform string)                  {}
func (NopCollector) RecordListingsUpserted(count int)                     {}
func (NopCollector) RecordItemSkipped(platform string)                    {}
func (NopCollector) RecordFetchLatency(duration time.Duration)            {}
func (NopCollector) RecordRelayFetch()                                    {}
func (NopCollector) RecordAlertMatched()                                  {}
func (NopCollector) RecordNotificationSent(channel string)                {}
func (NopCollector) RecordNotificationFailed(channel string)              {}
func (NopCollector) RecordRunDuration(duration time.Duration)             {}

var _ MetricsCollector = NopCollector{}
