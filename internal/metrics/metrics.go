// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/hireman/internal/model"
)

// Collector はPrometheusメトリクスを収集する実装。
// ワークフローエンジンと同期オーケストレータから利用する。
type Collector struct {
	syncRuns         *prometheus.CounterVec
	syncDuration     prometheus.Histogram
	interviewsSynced prometheus.Counter
	eventsSkipped    prometheus.Counter
	eventErrors      prometheus.Counter
	statusChanges    *prometheus.CounterVec
	notifyFailures   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hireman_sync_runs_total",
			Help: "面接同期実行の合計数（結果別）",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hireman_sync_duration_seconds",
			Help:    "面接同期1回の実行時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		interviewsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hireman_interviews_synced_total",
			Help: "同期で作成された面接レコードの合計数",
		}),
		eventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hireman_sync_events_skipped_total",
			Help: "同期でスキップされたイベントの合計数",
		}),
		eventErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hireman_sync_event_errors_total",
			Help: "同期中にイベント単位で回復されたエラーの合計数",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hireman_status_transitions_total",
			Help: "応募ステータス遷移の合計数（遷移先別）",
		}, []string{"to_status"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hireman_notify_failures_total",
			Help: "候補者通知の送信失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.syncRuns,
		c.syncDuration,
		c.interviewsSynced,
		c.eventsSkipped,
		c.eventErrors,
		c.statusChanges,
		c.notifyFailures,
	)

	return c
}

// ObserveSyncRun は同期実行1回の結果と実行時間を記録する。
func (c *Collector) ObserveSyncRun(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.syncRuns.WithLabelValues(result).Inc()
	c.syncDuration.Observe(duration.Seconds())
}

// AddSyncResults は同期実行1回の取り込み内訳を記録する。
func (c *Collector) AddSyncResults(created, skipped, eventErrors int) {
	c.interviewsSynced.Add(float64(created))
	c.eventsSkipped.Add(float64(skipped))
	c.eventErrors.Add(float64(eventErrors))
}

// RecordStatusTransition は応募ステータス遷移を遷移先別に記録する。
func (c *Collector) RecordStatusTransition(to model.ApplicationStatus) {
	c.statusChanges.WithLabelValues(string(to)).Inc()
}

// RecordNotifyFailure は候補者通知の送信失敗を記録する。
func (c *Collector) RecordNotifyFailure() {
	c.notifyFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
