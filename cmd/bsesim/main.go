// Command bsesim runs continuous-double-auction market sessions: a
// single session, a concurrent sweep of N independent sessions, or a
// deterministic replay check against a prior run. Subcommand dispatch
// and flag parsing follow cmd/fairsim/main.go's manual os.Args loop
// exactly (run/report/demo/replay/help), generalized from a two-trader
// latency demo into a config-driven population simulator.
package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dniure/BSE-IntelligentAgents/internal/config"
	"github.com/dniure/BSE-IntelligentAgents/internal/live"
	"github.com/dniure/BSE-IntelligentAgents/internal/metrics"
	"github.com/dniure/BSE-IntelligentAgents/internal/report"
	"github.com/dniure/BSE-IntelligentAgents/internal/session"
	"github.com/dniure/BSE-IntelligentAgents/internal/telemetry"
	"github.com/dniure/BSE-IntelligentAgents/internal/trader"
)

const defaultRunsDir = "runs"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "sweep", "demo":
		cmdSweep(os.Args[2:])
	case "report":
		cmdReport(os.Args[2:])
	case "replay":
		cmdReplay(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: bsesim <command> [options]

Commands:
  run      Run a single session
  sweep    Run N independent sessions concurrently
  report   Print a session's report.md
  replay   Re-run a session and verify the tape hash matches
  help     Show this message

Run options:
  --config <path>    Session document (required)
  --seed <n>          Override the config's seed
  --out <dir>         Output directory (default: runs/<session-id>)
  --serve             Start the Prometheus/websocket telemetry server

Sweep options:
  --config <path>    Session document (required)
  --sessions <n>      Number of sessions to run (default: 4)
  --base-seed <n>     Seed for session 0; session i uses base-seed+i

Report options:
  --last-run          Use the most recently written session
  --dir <path>        Path to a specific session's output directory

Replay options:
  --config <path>    Session document used for the original run (required)
  --seed <n>          Seed used for the original run (required)
  --dir <path>        Path to the original run's output directory (required)`)
}

func newLogger(cfg *config.Session) *zap.SugaredLogger {
	zc := zap.NewProductionConfig()
	if cfg != nil && cfg.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	l, err := zc.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

func cmdRun(args []string) {
	configPath, seedOverride, out, serve := parseRunFlags(args)
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --config is required")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	seed := cfg.Seed
	if seedOverride != nil {
		seed = *seedOverride
	}

	id := uuid.NewString()
	if out == "" {
		out = filepath.Join(defaultRunsDir, id)
	}

	log := newLogger(cfg)
	defer log.Sync()

	var m *telemetry.Metrics
	var hub *live.Hub
	var srv *telemetry.Server
	if serve || cfg.Telemetry.Serve {
		m = telemetry.New()
		hub = live.NewHub(log)
		stop := make(chan struct{})
		go hub.Run(stop)
		defer close(stop)

		srv = telemetry.NewServer(cfg.Telemetry.Addr, m, log, map[string]http.Handler{"/ws/lob": hub})
		srv.Start()
		defer srv.Stop(context.Background())
	}

	result, err := runOne(cfg, id, seed, out, m, hub, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running session: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Session complete.\n")
	fmt.Printf("  Trades:     %d\n", result.TradeCount)
	fmt.Printf("  Final mid:  %.2f\n", result.FinalMid)
	fmt.Printf("  Tape hash:  %s\n", result.TapeHash)
	fmt.Printf("  Output:     %s\n", result.OutputDir)

	if err := os.MkdirAll(defaultRunsDir, 0o755); err == nil {
		os.WriteFile(filepath.Join(defaultRunsDir, "last-run"), []byte(out), 0o644)
	}
}

func runOne(cfg *config.Session, id string, seed int64, out string, m *telemetry.Metrics, hub *live.Hub, log *zap.SugaredLogger) (*session.Result, error) {
	sess, err := session.New(cfg, id, seed, out, m, hub, log)
	if err != nil {
		return nil, err
	}
	result, err := sess.Run()
	if err != nil {
		return nil, err
	}

	summary := metrics.Compute(sess.Population())
	rep := report.New(id, result, summary, out)
	if err := rep.Generate(); err != nil {
		log.Warnw("generate report", "error", err)
	}
	return result, nil
}

func parseRunFlags(args []string) (configPath string, seed *int64, out string, serve bool) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i < len(args) {
				configPath = args[i]
			}
		case "--seed":
			i++
			if i < len(args) {
				var s int64
				if _, err := fmt.Sscanf(args[i], "%d", &s); err == nil {
					seed = &s
				}
			}
		case "--out":
			i++
			if i < len(args) {
				out = args[i]
			}
		case "--serve":
			serve = true
		}
	}
	return
}

// qTablePool carries a sweep's RL traders' learned Q-tables across
// sessions: each new session's RL agents are seeded from the pool's
// current average before it runs, and their learned tables are folded
// back into the average once it finishes, so a sweep of many short
// sessions accumulates the same tabular-Q experience a single long
// session would.
type qTablePool struct {
	mu      sync.Mutex
	avg     map[string]float64
	samples int
}

func newQTablePool() *qTablePool {
	return &qTablePool{}
}

func (p *qTablePool) seed(population []trader.Trader) {
	p.mu.Lock()
	warm := p.avg
	p.mu.Unlock()
	if warm == nil {
		return
	}
	for _, tr := range population {
		if rl, ok := tr.(*trader.RL); ok {
			rl.ImportQTable(warm)
		}
	}
}

func (p *qTablePool) absorb(population []trader.Trader) {
	for _, tr := range population {
		rl, ok := tr.(*trader.RL)
		if !ok {
			continue
		}
		learned := rl.ExportQTable()

		p.mu.Lock()
		if p.avg == nil {
			p.avg = learned
		} else {
			for k, v := range learned {
				p.avg[k] = (p.avg[k]*float64(p.samples) + v) / float64(p.samples+1)
			}
		}
		p.samples++
		p.mu.Unlock()
	}
}

func cmdSweep(args []string) {
	configPath := ""
	nSessions := 4
	baseSeed := int64(1)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i < len(args) {
				configPath = args[i]
			}
		case "--sessions":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &nSessions)
			}
		case "--base-seed":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &baseSeed)
			}
		}
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --config is required")
		os.Exit(1)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg)
	defer log.Sync()

	sweepDir := filepath.Join(defaultRunsDir, "sweep-"+time.Now().Format("20060102-150405"))

	type job struct {
		index int
	}
	jobs := make(chan job, nSessions)
	results := make([]report.SweepResult, nSessions)
	var wg sync.WaitGroup

	workers := runtime.GOMAXPROCS(0)
	if workers > nSessions {
		workers = nSessions
	}
	var mu sync.Mutex
	var firstErr error
	qpool := newQTablePool()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				seed := baseSeed + int64(j.index)
				id := fmt.Sprintf("sweep-%03d-%s", j.index, uuid.NewString()[:8])
				out := filepath.Join(sweepDir, id)

				sess, err := session.New(cfg, id, seed, out, nil, nil, log)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}
				qpool.seed(sess.Population())
				result, err := sess.Run()
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}
				qpool.absorb(sess.Population())
				summary := metrics.Compute(sess.Population())
				rep := report.New(id, result, summary, out)
				rep.Generate()

				results[j.index] = report.SweepResult{SessionID: id, Result: result, Summary: summary}
			}
		}()
	}
	for i := 0; i < nSessions; i++ {
		jobs <- job{index: i}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		fmt.Fprintf(os.Stderr, "Error running sweep: %v\n", firstErr)
		os.Exit(1)
	}

	cross := report.NewCrossReport(results, sweepDir)
	if err := cross.Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cross-session report failed: %v\n", err)
	} else {
		fmt.Printf("Sweep complete: %d sessions.\n", nSessions)
		fmt.Printf("Cross-session report: %s\n", filepath.Join(sweepDir, "cross-session-report.md"))
	}
}

func cmdReport(args []string) {
	dir := ""
	lastRun := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--last-run":
			lastRun = true
		case "--dir":
			i++
			if i < len(args) {
				dir = args[i]
			}
		}
	}
	if lastRun {
		data, err := os.ReadFile(filepath.Join(defaultRunsDir, "last-run"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: no last run found. Run a session first.")
			os.Exit(1)
		}
		dir = string(data)
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "Error: --last-run or --dir required")
		os.Exit(1)
	}

	data, err := os.ReadFile(filepath.Join(dir, "report.md"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func cmdReplay(args []string) {
	configPath := ""
	dir := ""
	var seed int64
	seedSet := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i < len(args) {
				configPath = args[i]
			}
		case "--dir":
			i++
			if i < len(args) {
				dir = args[i]
			}
		case "--seed":
			i++
			if i < len(args) {
				if _, err := fmt.Sscanf(args[i], "%d", &seed); err == nil {
					seedSet = true
				}
			}
		}
	}
	if configPath == "" || dir == "" || !seedSet {
		fmt.Fprintln(os.Stderr, "Error: --config, --seed and --dir are required")
		os.Exit(1)
	}

	targetHash, err := hashFile(tapePathFor(dir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing target tape: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg)
	defer log.Sync()

	tmpDir, err := os.MkdirTemp("", "bsesim-replay-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	result, err := runOne(cfg, "replay", seed, tmpDir, nil, nil, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running replay: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Target tape hash:  %s\n", targetHash)
	fmt.Printf("Replay tape hash:  %s\n", result.TapeHash)
	if targetHash == result.TapeHash {
		fmt.Println("Deterministic replay: MATCH")
	} else {
		fmt.Println("Deterministic replay: MISMATCH")
		os.Exit(1)
	}
}

func tapePathFor(dir string) string {
	gz := filepath.Join(dir, "tape.csv.gz")
	if _, err := os.Stat(gz); err == nil {
		return gz
	}
	return filepath.Join(dir, "tape.csv")
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h), nil
}
