// Package metrics provides Prometheus instrumentation for the desk engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side"})

	// RFQsTotal counts RFQ lifecycle transitions by resulting status.
	RFQsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_rfqs_total",
		Help: "RFQ status transitions",
	}, []string{"status"})

	// HardBreachRejections counts trades blocked by a hard risk limit.
	HardBreachRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_hard_breach_rejections_total",
		Help: "Trades rejected by hard risk limits",
	})

	// SoftBreaches counts soft limit breaches recorded on executions.
	SoftBreaches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_soft_breaches_total",
		Help: "Soft risk limit breaches on executed trades",
	})

	// WSClients tracks connected WebSocket clients per channel.
	WSClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "desk_websocket_clients",
		Help: "Number of connected WebSocket clients",
	}, []string{"channel"})

	// TickIterations counts market data generator iterations.
	TickIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_tick_iterations_total",
		Help: "Market data generator iterations",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "desk_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
