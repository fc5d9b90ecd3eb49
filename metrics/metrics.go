// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline and its HTTP surface.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_analyses_total",
		Help: "Completed analysis requests by source type, mode and outcome.",
	}, []string{"source_type", "mode", "status"})

	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyzer_analysis_duration_seconds",
		Help:    "End to end analysis duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source_type"})

	modelFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_model_fallbacks_total",
		Help: "Smart tier requests that fell back to the lexicon tier.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_http_requests_total",
		Help: "HTTP requests by path and status code.",
	}, []string{"path", "method", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyzer_http_request_duration_seconds",
		Help:    "HTTP request duration by path.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
)

// ObserveAnalysis records one completed (or failed) analysis.
func ObserveAnalysis(sourceType, mode, status string, elapsed time.Duration) {
	analysesTotal.WithLabelValues(sourceType, mode, status).Inc()
	analysisDuration.WithLabelValues(sourceType).Observe(elapsed.Seconds())
}

// ObserveFallback records a silent smart-to-fast tier downgrade.
func ObserveFallback() {
	modelFallbacks.Inc()
}

// ObserveHTTP records one served HTTP request.
func ObserveHTTP(path, method string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(path, method, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// RegisterDB exports database/sql pool statistics. Registration errors
// are ignored so repeated server construction in tests stays quiet.
func RegisterDB(db *sql.DB, name string) {
	_ = prometheus.DefaultRegisterer.Register(collectors.NewDBStatsCollector(db, name))
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
