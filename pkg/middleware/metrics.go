package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "Current number of HTTP requests being processed",
		},
	)

	votesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mistake_votes_total",
			Help: "Votes cast on mistake reports by direction",
		},
		[]string{"direction"},
	)

	reportsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mistake_reports_submitted_total",
			Help: "Mistake reports submitted by AI tool",
		},
		[]string{"ai_tool"},
	)

	moderations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mistake_moderations_total",
			Help: "Moderation transitions by resulting status",
		},
		[]string{"status"},
	)

	sseClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_clients_connected",
			Help: "Currently connected event stream clients",
		},
	)

	registerOnce sync.Once
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			httpRequestsInProgress,
			votesTotal,
			reportsSubmitted,
			moderations,
			sseClients,
		)
	})
}

func RecordVote(direction string)    { votesTotal.WithLabelValues(direction).Inc() }
func RecordSubmission(aiTool string) { reportsSubmitted.WithLabelValues(aiTool).Inc() }
func RecordModeration(status string) { moderations.WithLabelValues(status).Inc() }
func SSEClientConnected()            { sseClients.Inc() }
func SSEClientDisconnected()         { sseClients.Dec() }

// SSEClients reads the connected-clients gauge.
func SSEClients() float64 {
	var m dto.Metric
	if err := sseClients.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// normalizePath folds ids out of the path so label cardinality stays bounded.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) > 20 || (len(part) > 0 && part[0] >= '0' && part[0] <= '9') {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")

	if len(normalized) > 100 {
		normalized = normalized[:100]
	}
	return normalized
}

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		httpRequestsInProgress.Inc()
		defer httpRequestsInProgress.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
