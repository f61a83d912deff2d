// Package metrics exposes Prometheus metrics and the health endpoint for
// the detection engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	BarsEvaluated   *prometheus.CounterVec // labels: symbol, tf
	SweepsDetected  *prometheus.CounterVec // labels: symbol, direction
	MSSDetections   *prometheus.CounterVec // labels: symbol, side, tf_role (htf|ltf)
	BiasSets        *prometheus.CounterVec // labels: symbol, side
	Invalidations   *prometheus.CounterVec // labels: symbol, reason
	SignalsAdmitted *prometheus.CounterVec // labels: symbol, preset
	SignalsRejected *prometheus.CounterVec // labels: symbol, reason
	TradesClosed    *prometheus.CounterVec // labels: symbol, outcome (win|loss)

	GateOpen     *prometheus.GaugeVec // labels: module; 0 or 1
	SignalScore  prometheus.Histogram
	EvalDuration prometheus.Histogram
}

// New registers and returns all engine metrics.
func New() *Metrics {
	m := &Metrics{
		BarsEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mss_bars_evaluated_total",
			Help: "Closed bars evaluated by the engine",
		}, []string{"symbol", "tf"}),
		SweepsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mss_sweeps_detected_total",
			Help: "Liquidity sweeps detected",
		}, []string{"symbol", "direction"}),
		MSSDetections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mss_detections_total",
			Help: "Market structure shifts detected",
		}, []string{"symbol", "side", "tf_role"}),
		BiasSets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mss_bias_sets_total",
			Help: "Daily bias confirmations",
		}, []string{"symbol", "side"}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mss_invalidations_total",
			Help: "Bias or context invalidations by reason",
		}, []string{"symbol", "reason"}),
		SignalsAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mss_signals_admitted_total",
			Help: "Trade signals admitted by the preset layer",
		}, []string{"symbol", "preset"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mss_signals_rejected_total",
			Help: "Trade signals rejected by gate or preset, by reason",
		}, []string{"symbol", "reason"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mss_trades_closed_total",
			Help: "Simulated trades closed",
		}, []string{"symbol", "outcome"}),
		GateOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mss_gate_open",
			Help: "Module gate state (1=open)",
		}, []string{"module"}),
		SignalScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mss_signal_score",
			Help:    "Scores of staged signals",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		EvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mss_eval_duration_seconds",
			Help:    "Per-bar evaluation latency",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	prometheus.MustRegister(
		m.BarsEvaluated,
		m.SweepsDetected,
		m.MSSDetections,
		m.BiasSets,
		m.Invalidations,
		m.SignalsAdmitted,
		m.SignalsRejected,
		m.TradesClosed,
		m.GateOpen,
		m.SignalScore,
		m.EvalDuration,
	)
	return m
}

// HealthStatus tracks dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	LastBarTime    time.Time `json:"last_bar_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Symbols        []string  `json:"symbols"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(symbols []string) *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), Symbols: symbols}
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if db != nil {
					h.CheckSQLite(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.RedisConnected || !h.SQLiteOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	out := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		Symbols         []string `json:"symbols"`
		LastBarTime     string   `json:"last_bar_time"`
		BarAge          string   `json:"bar_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Symbols:         h.Symbols,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(out)
}

// Server exposes /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates the metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Handle registers an extra route (the WS gateway mounts itself here).
func (s *Server) Handle(pattern string, h http.Handler) {
	s.srv.Handler.(*http.ServeMux).Handle(pattern, h)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
