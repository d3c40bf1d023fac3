// metrics.go - Prometheus instrumentation for the HTTP API.
//
// Counters are registered on the default registry and served at /metrics.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	claimsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fund_claims_submitted_total",
		Help: "Claims moved into the submitted state.",
	})

	claimsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_claims_decided_total",
		Help: "Committee decisions recorded, labeled by action.",
	}, []string{"action"})

	paymentsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fund_payments_reconciled_total",
		Help: "Payout records marked reconciled.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fund_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// metricsMiddleware observes request latency per chi route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
