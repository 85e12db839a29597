// Package metrics aggregates per-strategy-type performance statistics
// from a finished session's trader population: mean and percentile
// profit-per-second, trade counts, and total realized balance, feeding
// the end-of-session and cross-session reports. Adapted from the teacher's internal/metrics/collector.go
// (which reduced a two-trader event log into one TraderMetrics each);
// generalized here into a many-strategy, population-wide reduction over
// trader.Trader values rather than a replayed event log, and rebuilt on
// gonum/stat for the percentile math instead of hand-rolled sorting.
package metrics

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/dniure/BSE-IntelligentAgents/internal/trader"
)

// StrategyStats summarizes every trader of one strategy type at the end
// of a session.
type StrategyStats struct {
	Type         string  `json:"type"`
	NTraders     int     `json:"n_traders"`
	NTrades      int     `json:"n_trades"`
	TotalBalance float64 `json:"total_balance"`
	MeanPPS      float64 `json:"mean_pps"`
	MedianPPS    float64 `json:"median_pps"`
	P10PPS       float64 `json:"p10_pps"`
	P90PPS       float64 `json:"p90_pps"`
	StdDevPPS    float64 `json:"stddev_pps"`
}

// Summary is the full population breakdown, one StrategyStats per
// distinct trader type, ordered by type name.
type Summary struct {
	ByType []StrategyStats `json:"by_type"`
}

// Compute reduces a finished session's population into a Summary.
func Compute(population []trader.Trader) Summary {
	grouped := make(map[string][]trader.Trader)
	for _, t := range population {
		grouped[t.Type()] = append(grouped[t.Type()], t)
	}

	types := make([]string, 0, len(grouped))
	for ttype := range grouped {
		types = append(types, ttype)
	}
	sort.Strings(types)

	out := Summary{ByType: make([]StrategyStats, 0, len(types))}
	for _, ttype := range types {
		out.ByType = append(out.ByType, computeOne(ttype, grouped[ttype]))
	}
	return out
}

func computeOne(ttype string, traders []trader.Trader) StrategyStats {
	pps := make([]float64, len(traders))
	s := StrategyStats{Type: ttype, NTraders: len(traders)}
	for i, t := range traders {
		pps[i] = t.PPS()
		s.NTrades += t.NTrades()
		s.TotalBalance += t.Balance()
	}

	sort.Float64s(pps)
	s.MeanPPS = stat.Mean(pps, nil)
	s.MedianPPS = stat.Quantile(0.5, stat.Empirical, pps, nil)
	s.P10PPS = stat.Quantile(0.10, stat.Empirical, pps, nil)
	s.P90PPS = stat.Quantile(0.90, stat.Empirical, pps, nil)
	if len(pps) > 1 {
		s.StdDevPPS = stat.StdDev(pps, nil)
	}
	return s
}
