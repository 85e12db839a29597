// Package report (continued) — the cross-session sweep summary, for
// the `-sessions N` worker-pool runner. Adapted from the teacher's
// internal/report/cross.go CrossReport/renderMarkdown column-table
// shape, generalized from a fixed fast/slow comparison across named
// scenarios into an arbitrary-width table of one row per swept session
// and one column per strategy type, each cell holding that session's
// mean PPS for that type.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dniure/BSE-IntelligentAgents/internal/metrics"
	"github.com/dniure/BSE-IntelligentAgents/internal/session"
)

// SweepResult bundles one swept session's result with its computed
// per-strategy-type summary.
type SweepResult struct {
	SessionID string
	Result    *session.Result
	Summary   metrics.Summary
}

// CrossReport consolidates a sweep of sessions into one markdown table.
type CrossReport struct {
	results []SweepResult
	outDir  string
}

// NewCrossReport builds a consolidated sweep report.
func NewCrossReport(results []SweepResult, outDir string) *CrossReport {
	return &CrossReport{results: results, outDir: outDir}
}

// Generate writes cross-session-report.md under outDir.
func (cr *CrossReport) Generate() error {
	if err := os.MkdirAll(cr.outDir, 0o755); err != nil {
		return fmt.Errorf("report: create %s: %w", cr.outDir, err)
	}
	path := filepath.Join(cr.outDir, "cross-session-report.md")
	return os.WriteFile(path, []byte(cr.render()), 0o644)
}

func (cr *CrossReport) render() string {
	var sb strings.Builder

	sb.WriteString("# Cross-Session Sweep Summary\n\n")
	sb.WriteString(fmt.Sprintf("**Sessions:** %d\n\n", len(cr.results)))

	types := cr.allTypes()

	sb.WriteString("## Mean Profit-per-Second by Strategy\n\n")
	sb.WriteString("| Session | Trades |")
	for _, ttype := range types {
		sb.WriteString(fmt.Sprintf(" %s |", ttype))
	}
	sb.WriteString("\n|---------|--------|")
	for range types {
		sb.WriteString("--------|")
	}
	sb.WriteString("\n")

	for _, r := range cr.results {
		sb.WriteString(fmt.Sprintf("| %s | %d |", r.SessionID, r.Result.TradeCount))
		byType := make(map[string]float64, len(r.Summary.ByType))
		for _, g := range r.Summary.ByType {
			byType[g.Type] = g.MeanPPS
		}
		for _, ttype := range types {
			if v, ok := byType[ttype]; ok {
				sb.WriteString(fmt.Sprintf(" %.4f |", v))
			} else {
				sb.WriteString(" - |")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func (cr *CrossReport) allTypes() []string {
	seen := make(map[string]bool)
	for _, r := range cr.results {
		for _, g := range r.Summary.ByType {
			seen[g.Type] = true
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
