// Package report renders the end-of-session markdown summary spec.md
// §6 names: trade count, final mid-price, and the per-strategy-type
// profit-per-second table. Adapted from the teacher's
// internal/report/report.go markdown-table style (renderMarkdown/addRow),
// generalized from a fixed fast-vs-slow comparison into an arbitrary-width
// per-strategy-type table driven by internal/metrics.Summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dniure/BSE-IntelligentAgents/internal/metrics"
	"github.com/dniure/BSE-IntelligentAgents/internal/session"
)

// Report renders one session's markdown summary.
type Report struct {
	sessionID string
	result    *session.Result
	summary   metrics.Summary
	outDir    string
}

// New builds a report generator for a finished session.
func New(sessionID string, result *session.Result, summary metrics.Summary, outDir string) *Report {
	return &Report{sessionID: sessionID, result: result, summary: summary, outDir: outDir}
}

// Generate writes report.md under outDir.
func (r *Report) Generate() error {
	path := filepath.Join(r.outDir, "report.md")
	if err := os.WriteFile(path, []byte(r.render()), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

func (r *Report) render() string {
	var sb strings.Builder

	sb.WriteString("# Session Report\n\n")
	sb.WriteString(fmt.Sprintf("**Session ID:** %s\n\n", r.sessionID))
	sb.WriteString(fmt.Sprintf("**Trades executed:** %d\n\n", r.result.TradeCount))
	sb.WriteString(fmt.Sprintf("**Final mid-price:** %.2f\n\n", r.result.FinalMid))
	sb.WriteString(fmt.Sprintf("**Tape hash:** `%s`\n\n", r.result.TapeHash))

	sb.WriteString("## Per-Strategy Performance\n\n")
	sb.WriteString("| Type | Traders | Trades | Total Balance | Mean PPS | Median PPS | P10 PPS | P90 PPS | StdDev PPS |\n")
	sb.WriteString("|------|---------|--------|---------------|----------|------------|---------|---------|------------|\n")
	for _, g := range r.summary.ByType {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.2f | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
			g.Type, g.NTraders, g.NTrades, g.TotalBalance, g.MeanPPS, g.MedianPPS, g.P10PPS, g.P90PPS, g.StdDevPPS))
	}
	sb.WriteString("\n")

	return sb.String()
}
