// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する。
// nilレシーバーでも安全に呼び出せるため、メトリクスが不要な
// テストではnilを渡してよい。
type Collector struct {
	ingestSuccess     prometheus.Counter
	ingestFail        prometheus.Counter
	ingestLatency     prometheus.Histogram
	questionsUpserted prometheus.Counter
	sessionsCreated   prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qanda_ingest_success_total",
			Help: "ドキュメント取り込み成功の合計数",
		}),
		ingestFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qanda_ingest_fail_total",
			Help: "ドキュメント取り込み失敗の合計数",
		}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qanda_ingest_latency_seconds",
			Help:    "ドキュメント取り込みのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		questionsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qanda_questions_upserted_total",
			Help: "アップサートされた設問の合計数",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qanda_sessions_created_total",
			Help: "新規発行されたセッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qanda_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.ingestSuccess,
		c.ingestFail,
		c.ingestLatency,
		c.questionsUpserted,
		c.sessionsCreated,
		c.httpStatus,
	)

	return c
}

// RecordIngest は取り込みの成否とレイテンシを記録する。
func (c *Collector) RecordIngest(success bool, duration time.Duration) {
	if c == nil {
		return
	}
	if success {
		c.ingestSuccess.Inc()
	} else {
		c.ingestFail.Inc()
	}
	c.ingestLatency.Observe(duration.Seconds())
}

// RecordQuestionUpserted は設問のアップサートを記録する。
func (c *Collector) RecordQuestionUpserted() {
	if c == nil {
		return
	}
	c.questionsUpserted.Inc()
}

// RecordSessionCreated は新規セッションの発行を記録する。
func (c *Collector) RecordSessionCreated() {
	if c == nil {
		return
	}
	c.sessionsCreated.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	if c == nil {
		return
	}
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetupMetricsRoute はPrometheusメトリクス公開用のHTTPハンドラーを返す。
func SetupMetricsRoute(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
