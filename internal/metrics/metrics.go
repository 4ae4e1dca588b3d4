// Package metrics provides Prometheus instrumentation for the yield farm.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StakesTotal counts successful stakes, partitioned by reward mode
	// ("mint" or "compound").
	StakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_stakes_total",
		Help: "Total number of stakes executed",
	}, []string{"mode"})

	// WithdrawalsTotal counts successful withdrawals.
	WithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farm_withdrawals_total",
		Help: "Total number of withdrawals executed",
	})

	// OperationLatency tracks end-to-end latency of pool operations.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "farm_operation_latency_seconds",
		Help:    "Pool operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// Rejections counts operations refused before any state change.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_rejections_total",
		Help: "Operations rejected by a precondition",
	}, []string{"op", "reason"})

	// RewardsDistributed tracks cumulative reward units, minted or compounded.
	RewardsDistributed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_rewards_distributed_total",
		Help: "Cumulative reward units distributed",
	}, []string{"pool_id", "mode"})

	// FeesCollected tracks cumulative withdrawal fees paid to the treasury.
	FeesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_fees_collected_total",
		Help: "Cumulative withdrawal fees collected",
	}, []string{"pool_id"})

	// PoolLiquidity is the current total_liquidity of each pool.
	PoolLiquidity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "farm_pool_liquidity",
		Help: "Recorded liquidity per pool",
	}, []string{"pool_id"})

	// PoolPaused is 1 while a pool's circuit breaker is engaged.
	PoolPaused = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "farm_pool_paused",
		Help: "Whether a pool is paused (1) or active (0)",
	}, []string{"pool_id"})

	// ActivePools tracks the number of initialized pools.
	ActivePools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "farm_active_pools",
		Help: "Number of initialized pools",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "farm_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "farm_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// SetPoolState refreshes the per-pool gauges.
func SetPoolState(poolID string, liquidity uint64, paused bool) {
	PoolLiquidity.WithLabelValues(poolID).Set(float64(liquidity))
	v := 0.0
	if paused {
		v = 1
	}
	PoolPaused.WithLabelValues(poolID).Set(v)
}

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

		// Label by route pattern so pool addresses don't blow up cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets the WebSocket upgrade pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
