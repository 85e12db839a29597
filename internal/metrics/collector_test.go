package metrics

import (
	"testing"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
	"github.com/dniure/BSE-IntelligentAgents/internal/trader"
)

func gvwy(id string, balance float64, age float64) trader.Trader {
	c := market.Defaults()
	tr := trader.NewGVWY(id, c, rng.New(1), 0)
	bumpBalance(tr, balance, age)
	return tr
}

// bumpBalance drives a trader through a synthetic fill so Balance/PPS
// reflect the requested numbers, without reaching into unexported state.
func bumpBalance(tr trader.Trader, balance, age float64) {
	if balance == 0 {
		return
	}
	a := market.Assignment{Side: market.Bid, Price: 1000000, Time: 0, TraderID: tr.ID()}
	tr.Assign(a)
	trade := market.Trade{Time: age, Price: 1000000 - int(balance), Party1: tr.ID(), Party2: "X"}
	_ = tr.Bookkeep(age, trade)
	tr.Respond(age, market.Snapshot{}, nil)
}

func TestComputeGroupsByTypeAndReportsPercentiles(t *testing.T) {
	population := []trader.Trader{
		gvwy("B00", 10, 10),
		gvwy("B01", 20, 10),
		gvwy("B02", 30, 10),
	}

	summary := Compute(population)
	if len(summary.ByType) != 1 {
		t.Fatalf("expected one strategy group, got %d", len(summary.ByType))
	}
	g := summary.ByType[0]
	if g.Type != "GVWY" {
		t.Errorf("type = %q, want GVWY", g.Type)
	}
	if g.NTraders != 3 {
		t.Errorf("n_traders = %d, want 3", g.NTraders)
	}
	if g.MeanPPS <= 0 {
		t.Errorf("mean pps = %v, want > 0 after profitable fills", g.MeanPPS)
	}
	if g.P90PPS < g.P10PPS {
		t.Errorf("p90 (%v) should be >= p10 (%v)", g.P90PPS, g.P10PPS)
	}
}

func TestComputeEmptyPopulation(t *testing.T) {
	summary := Compute(nil)
	if len(summary.ByType) != 0 {
		t.Errorf("expected no groups for an empty population, got %d", len(summary.ByType))
	}
}
