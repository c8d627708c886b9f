package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the watcher engine.
type Metrics struct {
	TradesTotal       prometheus.Counter
	CandlesTotal      prometheus.Counter
	AlertsSentTotal   prometheus.Counter
	AlertsFailedTotal prometheus.Counter
	WSReconnects      prometheus.Counter
	JanitorSweeps     prometheus.Counter

	EvaluateDur prometheus.Histogram
	NotifyDur   prometheus.Histogram

	RegisteredAlarms    prometheus.Gauge
	ActiveSymbols       prometheus.Gauge
	CircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open

	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_trades_total",
			Help: "Total trades received from exchange streams",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_candles_total",
			Help: "Total candles finalized by the boundary task",
		}),
		AlertsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_alerts_sent_total",
			Help: "Total alerts successfully delivered",
		}),
		AlertsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_alerts_failed_total",
			Help: "Total alert delivery attempts that failed",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_ws_reconnects_total",
			Help: "Total exchange WebSocket reconnection attempts",
		}),
		JanitorSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_janitor_sweeps_total",
			Help: "Total janitor sweep cycles run",
		}),

		EvaluateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watcher_evaluate_duration_seconds",
			Help:    "Per-alarm condition evaluation latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		NotifyDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watcher_notify_duration_seconds",
			Help:    "Notifier delivery latency",
			Buckets: prometheus.DefBuckets,
		}),

		RegisteredAlarms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_registered_alarms",
			Help: "Number of alarms currently registered and watched",
		}),
		ActiveSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_active_symbols",
			Help: "Number of (exchange, symbol) pairs with an active watch task",
		}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_circuit_breaker_state",
			Help: "Notifier circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_fanout_drops_total",
			Help: "Events dropped by a FanOut bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "watcher_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
	}

	prometheus.MustRegister(
		m.TradesTotal,
		m.CandlesTotal,
		m.AlertsSentTotal,
		m.AlertsFailedTotal,
		m.WSReconnects,
		m.JanitorSweeps,
		m.EvaluateDur,
		m.NotifyDur,
		m.RegisteredAlarms,
		m.ActiveSymbols,
		m.CircuitBreakerState,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	ExchangesConnected map[string]bool `json:"exchanges_connected"`
	LastTradeTime      time.Time       `json:"last_trade_time"`
	StoreConnected     bool            `json:"store_connected"`
	NotifierOK         bool            `json:"notifier_ok"`

	StoreLatencyMs float64   `json:"store_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:          time.Now(),
		ExchangesConnected: make(map[string]bool),
	}
}

func (h *HealthStatus) SetExchangeConnected(exchange string, v bool) {
	h.mu.Lock()
	h.ExchangesConnected[exchange] = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTradeTime(t time.Time) {
	h.mu.Lock()
	h.LastTradeTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetNotifierOK(v bool) {
	h.mu.Lock()
	h.NotifierOK = v
	h.mu.Unlock()
}

// CheckStore runs a trivial query against the AlarmStore's database and
// records latency + health.
func (h *HealthStatus) CheckStore(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreConnected = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if db != nil {
					h.CheckStore(probeCtx, db)
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

	overallStatus := "healthy"
	httpCode := http.StatusOK

	anyExchangeDown := false
	for _, ok := range h.ExchangesConnected {
		if !ok {
			anyExchangeDown = true
		}
	}
	if anyExchangeDown || !h.StoreConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.StoreConnected && len(h.ExchangesConnected) > 0 && allDown(h.ExchangesConnected) {
		overallStatus = "unhealthy"
	}

	tradeAge := ""
	if !h.LastTradeTime.IsZero() {
		tradeAge = time.Since(h.LastTradeTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status             string          `json:"status"`
		Uptime             string          `json:"uptime"`
		ExchangesConnected map[string]bool `json:"exchanges_connected"`
		LastTradeTime      string          `json:"last_trade_time"`
		TradeAge           string          `json:"trade_age"`
		StoreConnected     bool            `json:"store_connected"`
		StoreLatencyMs     float64         `json:"store_latency_ms"`
		NotifierOK         bool            `json:"notifier_ok"`
		LastCheckAt        string          `json:"last_check_at"`
	}{
		Status:             overallStatus,
		Uptime:             time.Since(h.StartedAt).Round(time.Second).String(),
		ExchangesConnected: h.ExchangesConnected,
		LastTradeTime:      h.LastTradeTime.Format(time.RFC3339),
		TradeAge:           tradeAge,
		StoreConnected:     h.StoreConnected,
		StoreLatencyMs:     h.StoreLatencyMs,
		NotifierOK:         h.NotifierOK,
		LastCheckAt:        h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

func allDown(m map[string]bool) bool {
	for _, ok := range m {
		if ok {
			return false
		}
	}
	return true
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
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

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
