// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lms",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lms",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	ReturnCodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lms",
		Name:      "return_codes_total",
		Help:      "API envelope return codes.",
	}, []string{"code"})

	RoundsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lms",
		Name:      "rounds_processed_total",
		Help:      "Rounds whose eliminations were computed.",
	})

	PlayersEliminated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lms",
		Name:      "players_eliminated_total",
		Help:      "Players eliminated by round processing.",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lms",
		Name:      "notifications_total",
		Help:      "Notification deliveries by channel and result.",
	}, []string{"channel", "result"})

	NotificationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lms",
		Name:      "notification_queue_depth",
		Help:      "Notifications waiting for delivery.",
	})
)

// Instrument records request counts and latency keyed by the chi route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
