package v1

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gobooks",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gobooks",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
	entriesPostedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gobooks",
		Name:      "journal_entries_posted_total",
		Help:      "Journal entries posted through the API",
	})
	documentsApprovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gobooks",
		Name:      "documents_approved_total",
		Help:      "Invoices and payments approved",
	}, []string{"kind"})
	reconciliationsFinalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gobooks",
		Name:      "reconciliations_finalized_total",
		Help:      "Bank reconciliations finalized",
	})
	recurringGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gobooks",
		Name:      "recurring_entries_generated_total",
		Help:      "Journal entries generated from recurring patterns",
	})
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := strconv.Itoa(ww.Status())
		httpRequestsTotal.WithLabelValues(r.Method, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, status).Observe(time.Since(start).Seconds())
	})
}
