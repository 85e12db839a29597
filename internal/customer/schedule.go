// Package customer implements the supply/demand schedule DSL and the
// customer-order generator that converts it into timed assignments for
// traders, per spec.md §4.8.
package customer

import (
	"github.com/dniure/BSE-IntelligentAgents/internal/simerr"
)

// OffsetFn is a dynamic price-offset callable attached to a schedule
// range, per spec.md §9's "small closure type" design note. It receives
// the order's issue time and returns an additive price offset.
type OffsetFn func(issueTime float64) float64

// Range is one price interval within a schedule zone. If MaxOffset is
// nil, MinOffset (when non-nil) is applied to both bounds equally, per
// spec.md §4.8's "one shared, or separate min/max offsets" rule.
type Range struct {
	Lo, Hi    int
	MinOffset OffsetFn
	MaxOffset OffsetFn
}

func (r Range) resolve(issueTime float64) (lo, hi float64) {
	lo, hi = float64(r.Lo), float64(r.Hi)
	if lo > hi {
		lo, hi = hi, lo
	}
	if r.MinOffset == nil {
		return lo, hi
	}
	offLo := r.MinOffset(issueTime)
	offHi := offLo
	if r.MaxOffset != nil {
		offHi = r.MaxOffset(issueTime)
	}
	return lo + offLo, hi + offHi
}

// StepMode selects how a buyer/seller index within a schedule maps to a
// concrete price.
type StepMode int

const (
	Fixed StepMode = iota
	Jittered
	Random
)

// TimeMode selects how successive issue times within a replenishment
// interval are spaced.
type TimeMode int

const (
	Periodic TimeMode = iota
	DripFixed
	DripJitter
	DripPoisson
)

// Zone is a time-partitioned schedule segment: while the current time
// falls in [From, To), Ranges and StepMode govern price generation.
type Zone struct {
	From, To  float64
	Ranges    []Range
	StepMode  StepMode
}

// Schedule is the top-level supply/demand configuration for one side
// (buyers or sellers): a list of zones plus shared timing parameters.
type Schedule struct {
	Zones           []Zone
	TimeMode        TimeMode
	Interval        float64
	Shuffle         bool
	FitToInterval   bool
	NoiseLevel      float64 // sigma fraction of price; 0 disables noise
}

// zoneAt resolves the schedule zone active at t, per spec.md's
// getschedmode. Returns an error (a configuration error, per spec.md §7)
// if t falls outside every zone.
func (s Schedule) zoneAt(t float64) (Zone, error) {
	for _, z := range s.Zones {
		if z.From <= t && t < z.To {
			return z, nil
		}
	}
	return Zone{}, simerr.Configf("customer.zoneAt", "time=%.2f not within any schedule zone", t)
}
