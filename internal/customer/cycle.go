package customer

import "github.com/dniure/BSE-IntelligentAgents/internal/market"

// Timing holds the replenishment-cycle parameters shared by both sides
// of a schedule (spec.md's top-level timemode/interval/shuffle/
// fittointerval), separate from the per-side price Schedule.
type Timing struct {
	TimeMode      TimeMode
	Interval      float64
	Shuffle       bool
	FitToInterval bool
}

func (t Timing) asSchedule() Schedule {
	return Schedule{TimeMode: t.TimeMode, Interval: t.Interval, Shuffle: t.Shuffle, FitToInterval: t.FitToInterval}
}

// Cycle is one full supply/demand configuration: the buyer (demand) and
// seller (supply) price schedules plus the shared replenishment timing.
type Cycle struct {
	NBuyers  int
	NSellers int
	Demand   Schedule
	Supply   Schedule
	Timing   Timing
}

// Generate produces one replenishment batch of buyer and seller
// assignments, per spec.md §4.8.
func (g *Generator) Generate(c Cycle, now float64) ([]market.Assignment, error) {
	timing := c.Timing.asSchedule()

	buyers, err := g.Batch(market.Bid, c.NBuyers, "B", now, c.Demand, timing)
	if err != nil {
		return nil, err
	}
	sellers, err := g.Batch(market.Ask, c.NSellers, "S", now, c.Supply, timing)
	if err != nil {
		return nil, err
	}
	return append(buyers, sellers...), nil
}
