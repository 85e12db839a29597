// Package session implements the single-threaded, time-stepped session
// driver from spec.md §4.9: it owns one Exchange, one trader
// population, the customer-order generator and its pending queue, the
// output sinks, and the session's sole RNG stream. Grounded on
// internal/sim/runner.go's Runner/NewRunner/Run shape (output
// directory setup, SHA-256 log hashing for the determinism check),
// generalized from a two-agent latency simulation into the full
// population-polling loop spec.md describes.
package session

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dniure/BSE-IntelligentAgents/internal/config"
	"github.com/dniure/BSE-IntelligentAgents/internal/customer"
	"github.com/dniure/BSE-IntelligentAgents/internal/exchange"
	"github.com/dniure/BSE-IntelligentAgents/internal/live"
	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
	"github.com/dniure/BSE-IntelligentAgents/internal/simerr"
	"github.com/dniure/BSE-IntelligentAgents/internal/sinks"
	"github.com/dniure/BSE-IntelligentAgents/internal/telemetry"
	"github.com/dniure/BSE-IntelligentAgents/internal/trader"
)

const lobFrameInterval = 10.0 // simulated seconds, per spec.md §4.9 step (h)

// Result summarizes one completed session for the CLI and report
// packages.
type Result struct {
	SessionID  string
	OutputDir  string
	TradeCount int
	TapeHash   string
	FinalMid   float64
}

// Session is one running instance of the market simulation: a single
// exchange, trader population, and output bundle, advancing on its own
// logical clock with no shared state across sessions (spec.md §5).
type Session struct {
	id        string
	cfg       *config.Session
	constants market.Constants

	exchange   *exchange.Exchange
	population []trader.Trader
	byID       map[string]trader.Trader

	gen   *customer.Generator
	cycle customer.Cycle
	queue *customer.Queue
	rng   *rng.Stream
	seed  int64

	tape      *sinks.TapeSink
	lobFrames *sinks.LOBFrameSink
	balances  *sinks.BalancesSink
	blotter   *sinks.BlotterSink

	timestep      float64
	lastFrameTime float64
	tradeCount    int

	outDir  string
	log     *zap.SugaredLogger
	metrics *telemetry.Metrics
	hub     *live.Hub
}

// New builds a session from a resolved configuration. seed is this
// session's RNG seed (baseSeed + sessionIndex for a sweep); outDir is
// created if it does not already exist.
func New(cfg *config.Session, id string, seed int64, outDir string, m *telemetry.Metrics, hub *live.Hub, log *zap.SugaredLogger) (*Session, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create output dir: %w", err)
	}

	constants := cfg.System.Constants()
	stream := rng.New(seed)

	var trades, cancels prometheus.Counter
	if m != nil {
		trades, cancels = m.Trades, m.Cancels
	}
	ex := exchange.New(constants, log, trades, cancels)

	buyers, err := config.BuildPopulation(cfg.Buyers, "B", constants, stream, 0)
	if err != nil {
		return nil, err
	}
	sellers, err := config.BuildPopulation(cfg.Sellers, "S", constants, stream, 0)
	if err != nil {
		return nil, err
	}
	population := append(buyers, sellers...)
	if len(population) == 0 {
		return nil, simerr.Configf("session.New", "empty trader population")
	}
	byID := make(map[string]trader.Trader, len(population))
	for _, t := range population {
		byID[t.ID()] = t
	}

	cycle, err := cfg.Schedule.Build()
	if err != nil {
		return nil, err
	}

	ext := ""
	if cfg.Output.Compress {
		ext = ".gz"
	}
	tape, err := sinks.NewTapeSink(filepath.Join(outDir, "tape.csv"+ext), cfg.Output.Compress)
	if err != nil {
		return nil, err
	}
	lobFrames, err := sinks.NewLOBFrameSink(filepath.Join(outDir, "lob_frames.csv"+ext), cfg.Output.Compress)
	if err != nil {
		return nil, err
	}
	balances, err := sinks.NewBalancesSink(filepath.Join(outDir, "balances.csv"+ext), cfg.Output.Compress)
	if err != nil {
		return nil, err
	}
	blotter, err := sinks.NewBlotterSink(filepath.Join(outDir, "blotter.csv"+ext), cfg.Output.Compress)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id: id, cfg: cfg, constants: constants,
		exchange: ex, population: population, byID: byID,
		gen: customer.New(constants, stream), cycle: cycle, queue: customer.NewQueue(), rng: stream, seed: seed,
		tape: tape, lobFrames: lobFrames, balances: balances, blotter: blotter,
		timestep: 1.0 / float64(len(population)),
		outDir:   outDir, log: log, metrics: m, hub: hub,
	}

	ex.OnTapeEvent(s.onTapeEvent)
	return s, nil
}

// Population returns the session's trader population, for callers that
// compute post-session statistics (internal/metrics.Compute).
func (s *Session) Population() []trader.Trader {
	return s.population
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) onTapeEvent(ev market.TapeEvent) {
	switch ev.Kind {
	case market.EventTrade:
		s.tape.WriteTrade(ev.Trade.Time, ev.Trade.Price)
	case market.EventCancel:
		s.tape.WriteCancel(ev.Cancel.Time, ev.Cancel.QID, ev.Cancel.Side, ev.Cancel.Price)
	}
}

// Run executes the session to completion, per spec.md §4.9's per-tick
// ordering: queue drain, cancellations, one random poll, matching,
// bookkeeping, periodic LOB frame, broadcast.
func (s *Session) Run() (*Result, error) {
	nextReplenish := 0.0
	for t := 0.0; t < s.cfg.Duration; t += s.timestep {
		if t >= nextReplenish {
			batch, err := s.gen.Generate(s.cycle, t)
			if err != nil {
				return nil, err
			}
			s.queue.PushAll(batch)
			if s.cycle.Timing.Interval <= 0 {
				nextReplenish = s.cfg.Duration + 1
			} else {
				nextReplenish += s.cycle.Timing.Interval
			}
		}

		for _, a := range s.queue.DrainDue(t) {
			tr, ok := s.byID[a.TraderID]
			if !ok {
				continue
			}
			if tr.Assign(a) == market.LOBCancel {
				s.exchange.DelOrder(t, a.Side, a.TraderID)
			}
		}

		tr := s.population[s.rng.IntN(len(s.population))]
		lob := s.exchange.PublishLOB(t)
		countdown := s.countdownFor(tr, t)

		order, ok := tr.GetOrder(t, countdown, lob)
		if ok {
			if err := s.submit(t, tr, *order); err != nil {
				return nil, err
			}
		}

		if t-s.lastFrameTime >= lobFrameInterval {
			s.emitFrame(t)
			s.lastFrameTime = t
		}

		snap := s.exchange.PublishLOB(t)
		lastTrade := snap.LastTrade()
		for _, tr := range s.population {
			tr.Respond(t, snap, lastTrade)
		}

		if s.metrics != nil {
			s.metrics.BidDepth.Set(float64(s.exchange.Bids.NOrders))
			s.metrics.AskDepth.Set(float64(s.exchange.Asks.NOrders))
		}
	}

	return s.finish()
}

// countdownFor computes the fraction of an assignment's remaining
// lifetime in [0, 1], used by SNPR-family strategies. An assignment's
// lifetime is taken as one replenishment interval, counted from its
// issue time.
func (s *Session) countdownFor(tr trader.Trader, t float64) float64 {
	a := tr.Assignment()
	interval := s.cycle.Timing.Interval
	if a == nil || interval <= 0 {
		return 0
	}
	left := 1 - (t-a.Time)/interval
	if left < 0 {
		return 0
	}
	if left > 1 {
		return 1
	}
	return left
}

// submit validates order against its trader's assignment limit (spec.md
// §4.9 step (e)), sends it to the matching engine, and bookkeeps any
// resulting trade against both counterparties.
func (s *Session) submit(t float64, tr trader.Trader, order market.Order) error {
	if a := tr.Assignment(); a != nil {
		if err := trader.CheckLimit(order.Side, order.Price, a.Price); err != nil {
			return err
		}
	}

	trade, err := s.exchange.ProcessOrder(t, order)
	if err != nil {
		return err
	}
	if trade == nil {
		return nil
	}
	s.tradeCount++

	maker, makerOK := s.byID[trade.Party1]
	taker, takerOK := s.byID[trade.Party2]
	if makerOK {
		if err := maker.Bookkeep(t, *trade); err != nil {
			return err
		}
		s.writeBalanceSample(t, maker)
	}
	if takerOK {
		if err := taker.Bookkeep(t, *trade); err != nil {
			return err
		}
		s.writeBalanceSample(t, taker)
	}
	return nil
}

func (s *Session) writeBalanceSample(t float64, tr trader.Trader) {
	snap := s.exchange.PublishLOB(t)
	s.balances.WriteRow(s.id, t, snap.Bids.Best, snap.Asks.Best, tr.ID(), tr.Balance(), tr.NetWorth())
}

func (s *Session) emitFrame(t float64) {
	snap := s.exchange.PublishLOB(t)
	line, changed := s.exchange.LOBFrameString(snap)
	if !changed {
		return
	}
	s.lobFrames.WriteFrame(line)
	if s.hub != nil {
		s.hub.Publish(live.Frame{SessionID: s.id, Time: t, Line: line})
	}
}

func (s *Session) finish() (*Result, error) {
	for _, tr := range s.population {
		if err := s.blotter.WriteTrader(tr.ID(), tr.Blotter()); err != nil {
			return nil, fmt.Errorf("session: write blotter: %w", err)
		}
	}

	if err := s.tape.Close(); err != nil {
		return nil, err
	}
	if err := s.lobFrames.Close(); err != nil {
		return nil, err
	}
	if err := s.balances.Close(); err != nil {
		return nil, err
	}
	if err := s.blotter.Close(); err != nil {
		return nil, err
	}

	tapePath := filepath.Join(s.outDir, "tape.csv")
	if s.cfg.Output.Compress {
		tapePath += ".gz"
	}
	hash, err := hashFile(tapePath)
	if err != nil {
		return nil, fmt.Errorf("session: hash tape: %w", err)
	}

	manifest := map[string]any{
		"session_id": s.id,
		"seed":       s.seed,
		"duration":   s.cfg.Duration,
		"n_traders":  len(s.population),
	}
	data, _ := json.MarshalIndent(manifest, "", "  ")
	if err := os.WriteFile(filepath.Join(s.outDir, "session.json"), data, 0o644); err != nil {
		s.log.Warnw("write session manifest", "error", err)
	}

	finalSnap := s.exchange.PublishLOB(s.cfg.Duration)
	finalMid := 0.0
	if finalSnap.Bids.Best > 0 && finalSnap.Asks.Best > 0 {
		finalMid = float64(finalSnap.Bids.Best+finalSnap.Asks.Best) / 2.0
	}

	return &Result{
		SessionID: s.id, OutputDir: s.outDir,
		TradeCount: s.tradeCount, TapeHash: hash, FinalMid: finalMid,
	}, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h), nil
}
