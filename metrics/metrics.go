package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SweepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_sweeps_total",
		Help: "Sweep cycles run, by result",
	}, []string{"result"})
	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_sweep_duration_seconds",
		Help:    "Duration of a sweep cycle",
		Buckets: prometheus.DefBuckets,
	})
	DueMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_due_messages",
		Help: "Due pending messages found by the last sweep",
	})
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_deliveries_total",
		Help: "Scheduled delivery attempts, by outcome",
	}, []string{"outcome"})
	SendNowTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "send_now_total",
		Help: "Immediate sends, by outcome",
	}, []string{"outcome"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(SweepsTotal, SweepDuration, DueMessages, DeliveriesTotal, SendNowTotal,
		HttpRequestsTotal, HttpRequestDuration)
}

// Middleware records basic request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{"method": r.Method, "path": path, "status": strconv.Itoa(status)}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
