// Package telemetry is the optional Prometheus metrics surface, served
// on /metrics when the CLI is run with -serve. Grounded on
// abdoElHodaky-tradSys/internal/metrics/websocket_metrics.go's
// registry-plus-Record* shape, without that repo's fx dependency
// injection: this is a single-binary CLI, and fx appears nowhere else
// in the corpus this module draws from.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the counters and gauges emitted across a session's
// lifetime: trade/cancel counts from the exchange and live book depth
// from the session loop. StrategyReplacements and SessionsRunning are
// registered and exported, but nothing in this module updates them.
type Metrics struct {
	Registry *prometheus.Registry

	Trades               prometheus.Counter
	Cancels              prometheus.Counter
	BidDepth             prometheus.Gauge
	AskDepth             prometheus.Gauge
	StrategyReplacements prometheus.Counter
	SessionsRunning      prometheus.Gauge
}

// New builds a fresh registry and the session's metric set.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bsesim_trades_total",
			Help: "Total number of completed trades.",
		}),
		Cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bsesim_cancels_total",
			Help: "Total number of order cancellations.",
		}),
		BidDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bsesim_bid_depth",
			Help: "Number of live orders resting on the bid side.",
		}),
		AskDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bsesim_ask_depth",
			Help: "Number of live orders resting on the ask side.",
		}),
		StrategyReplacements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bsesim_strategy_replacements_total",
			Help: "Total number of adaptive strategy-population replacements (PRSH/PRDE/ZIPSH/ZIPDE).",
		}),
		SessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bsesim_sessions_running",
			Help: "Number of sessions currently executing in this process.",
		}),
	}
	reg.MustRegister(m.Trades, m.Cancels, m.BidDepth, m.AskDepth, m.StrategyReplacements, m.SessionsRunning)
	return m
}

// Server wraps an HTTP server exposing /metrics over m's registry.
type Server struct {
	http *http.Server
	log  *zap.SugaredLogger
}

// NewServer builds (but does not start) a /metrics server at addr.
// extra, if given, is mounted alongside /metrics on the same mux (e.g.
// internal/live.Hub's ServeHTTP on /ws/lob) so the session's telemetry
// and live-view endpoints share one listener.
func NewServer(addr string, m *Metrics, log *zap.SugaredLogger, extra map[string]http.Handler) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	for path, h := range extra {
		mux.Handle(path, h)
	}
	return &Server{http: &http.Server{Addr: addr, Handler: mux}, log: log}
}

// Start runs the server in a background goroutine, logging (not
// panicking) on unexpected shutdown.
func (s *Server) Start() {
	s.log.Infow("starting telemetry server", "addr", s.http.Addr)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("telemetry server error", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
