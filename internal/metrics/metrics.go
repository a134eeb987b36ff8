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
// ハンドラやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(statusCode int, duration time.Duration)
	ObserveCatalogFetch(duration time.Duration, success bool)
	RecordLoginSuccess()
	RecordLoginFailure()
	IncRateLimitRejection()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	httpLatency    prometheus.Histogram
	catalogSuccess prometheus.Counter
	catalogFail    prometheus.Counter
	catalogLatency prometheus.Histogram
	loginSuccess   prometheus.Counter
	loginFail      prometheus.Counter
	rateLimited    prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gleh_http_requests_total",
			Help: "HTTPステータスコード別のリクエスト数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gleh_http_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		catalogSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gleh_catalog_fetch_success_total",
			Help: "カタログフィード取得成功の合計数",
		}),
		catalogFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gleh_catalog_fetch_fail_total",
			Help: "カタログフィード取得失敗の合計数",
		}),
		catalogLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gleh_catalog_fetch_latency_seconds",
			Help:    "カタログフィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gleh_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gleh_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gleh_rate_limit_rejections_total",
			Help: "レート制限による拒否の合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.httpLatency,
		c.catalogSuccess,
		c.catalogFail,
		c.catalogLatency,
		c.loginSuccess,
		c.loginFail,
		c.rateLimited,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストのステータスとレイテンシを記録する。
func (c *Collector) RecordHTTPRequest(statusCode int, duration time.Duration) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// ObserveCatalogFetch はカタログフィード取得の結果とレイテンシを記録する。
func (c *Collector) ObserveCatalogFetch(duration time.Duration, success bool) {
	if success {
		c.catalogSuccess.Inc()
	} else {
		c.catalogFail.Inc()
	}
	c.catalogLatency.Observe(duration.Seconds())
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// IncRateLimitRejection はレート制限による拒否を記録する。
func (c *Collector) IncRateLimitRejection() {
	c.rateLimited.Inc()
}

// httpRecorder はステータスコードを記録するResponseWriterラッパー。
type httpRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (hr *httpRecorder) WriteHeader(code int) {
	if !hr.written {
		hr.statusCode = code
		hr.written = true
	}
	hr.ResponseWriter.WriteHeader(code)
}

func (hr *httpRecorder) Write(b []byte) (int, error) {
	if !hr.written {
		hr.statusCode = http.StatusOK
		hr.written = true
	}
	return hr.ResponseWriter.Write(b)
}

// Middleware は全HTTPリクエストのステータスとレイテンシを記録するミドルウェアを返す。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &httpRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPRequest(rec.statusCode, time.Since(start))
		})
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
