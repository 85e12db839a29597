package customer

import (
	"math"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
	"github.com/dniure/BSE-IntelligentAgents/internal/simerr"
)

// Generator converts a Schedule into timed Assignments for a population
// of traders, following the teacher's periodic-event-generation shape in
// the original internal/scenario/generator.go, generalized to the
// stepmode/timemode combinatorics of spec.md §4.8.
type Generator struct {
	constants market.Constants
	rng       *rng.Stream
}

// New creates a customer-order generator using stream as its sole source
// of randomness (no process-global RNG, per spec.md §9).
func New(c market.Constants, stream *rng.Stream) *Generator {
	return &Generator{constants: c, rng: stream}
}

// IssueTimes returns n arrival offsets (relative to now) per spec.md's
// getissuetimes: periodic places all arrivals at +interval; drip-fixed
// spaces them evenly; drip-jitter adds a fractional-step jitter;
// drip-poisson draws successive exponential gaps at rate n/interval.
// When fitToInterval is set, offsets are rescaled so the last arrival
// lands exactly at +interval; when shuffle is set, the assignment of
// offsets to trader indices is randomly permuted.
func (g *Generator) IssueTimes(n int, tm TimeMode, interval float64, shuffle, fitToInterval bool) []float64 {
	if n < 1 {
		return nil
	}
	tstep := interval
	if n > 1 {
		tstep = interval / float64(n-1)
	}

	times := make([]float64, n)
	arr := 0.0
	for i := 0; i < n; i++ {
		switch tm {
		case Periodic:
			arr = interval
		case DripFixed:
			arr = float64(i) * tstep
		case DripJitter:
			arr = float64(i)*tstep + tstep*g.rng.Float64()
		case DripPoisson:
			rate := float64(n) / interval
			arr += g.rng.Expovariate(rate)
		}
		times[i] = arr
	}

	if fitToInterval && arr != interval && arr != 0 {
		for i := range times {
			times[i] = interval * (times[i] / arr)
		}
	}

	if shuffle {
		for i := n - 1; i > 0; i-- {
			j := g.rng.IntN(i + 1)
			times[i], times[j] = times[j], times[i]
		}
	}
	return times
}

// OrderPrice computes the price for the i'th of n orders drawn against
// sched's active zone at now (the current replenishment time, per
// spec.md §4.8 step 4's getschedmode(time, ...)); issueTime is passed
// through only to the zone's dynamic offset closures, matching
// original_source/main/BSE.py's customer_orders, which resolves the
// schedule zone against the replenishment time and reserves the order's
// issue time for the offset functions alone.
func (g *Generator) OrderPrice(i, n int, sched Schedule, now, issueTime float64) (int, error) {
	zone, err := sched.zoneAt(now)
	if err != nil {
		return 0, err
	}
	if len(zone.Ranges) == 0 {
		return 0, simerr.Configf("customer.OrderPrice", "zone has no ranges")
	}

	var price float64
	switch zone.StepMode {
	case Fixed, Jittered:
		lo, hi := zone.Ranges[0].resolve(issueTime)
		prange := hi - lo
		step := 0.0
		if n > 1 {
			step = prange / float64(n-1)
		}
		price = lo + float64(i)*step
		if zone.StepMode == Jittered {
			halfstep := int(math.Round(step / 2.0))
			if halfstep > 0 {
				price += float64(g.rng.UniformInt(-halfstep, halfstep))
			}
		}
	case Random:
		r := zone.Ranges[0]
		if len(zone.Ranges) > 1 {
			r = zone.Ranges[g.rng.IntN(len(zone.Ranges))]
		}
		lo, hi := r.resolve(issueTime)
		loI, hiI := int(lo), int(hi)
		price = float64(g.rng.UniformInt(loI, hiI))
	default:
		return 0, simerr.Configf("customer.OrderPrice", "unknown stepmode %v", zone.StepMode)
	}

	if sched.NoiseLevel > 0 {
		price = math.Round(price + g.rng.Gauss(0, sched.NoiseLevel*price))
	}
	return g.constants.Clip(int(math.Round(price))), nil
}

// Batch produces n assignments (buyer or seller) for one replenishment
// cycle, with issue times computed relative to now and prices drawn from
// sched's zone active at now (each issue time only feeds the zone's
// offset closures).
func (g *Generator) Batch(side market.Side, n int, idPrefix string, now float64, sched Schedule, timing Schedule) ([]market.Assignment, error) {
	offsets := g.IssueTimes(n, timing.TimeMode, timing.Interval, timing.Shuffle, timing.FitToInterval)
	out := make([]market.Assignment, 0, n)
	for i := 0; i < n; i++ {
		issueTime := now + offsets[i]
		price, err := g.OrderPrice(i, n, sched, now, issueTime)
		if err != nil {
			return nil, err
		}
		out = append(out, market.Assignment{
			Side:     side,
			Price:    price,
			Time:     issueTime,
			TraderID: indexedID(idPrefix, i),
		})
	}
	return out, nil
}

func indexedID(prefix string, i int) string {
	return prefix + pad2(i)
}

// pad2 formats i as a zero-padded, at-least-2-digit decimal string,
// matching the reference implementation's 'B%02d'/'S%02d' trader names.
func pad2(i int) string {
	s := itoa(i)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
