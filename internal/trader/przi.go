package trader

import (
	"fmt"
	"math"
	"sort"

	cache "github.com/patrickmn/go-cache"
	"gonum.org/v1/gonum/stat"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
	"github.com/dniure/BSE-IntelligentAgents/internal/simerr"
)

// przDirection selects which half of the CDF formula (buy or sell) a
// lookup table was built for, per spec.md §4.5.
type przDirection int8

const (
	przBuy przDirection = iota
	przSell
)

// cdfEntry is one (price, cumulative probability) pair.
type cdfEntry struct {
	Price   int
	CumProb float64
}

// cdfLUT is a memoized strategy lookup table for one (strategy value,
// direction, pmin, pmax) tuple.
type cdfLUT struct {
	Entries []cdfEntry
}

const (
	przTheta0 = 100.0
	przM      = 4.0
)

// buildCDF implements spec.md §4.5's three-step CDF construction.
func buildCDF(s float64, dirn przDirection, pMin, pMax int) cdfLUT {
	const epsilon = 1e-6

	if pMax <= pMin {
		return cdfLUT{Entries: []cdfEntry{{Price: pMax, CumProb: 1.0}}}
	}

	c := przM * math.Tan(math.Pi*(s+0.5))
	if c > przTheta0 {
		c = przTheta0
	} else if c < -przTheta0 {
		c = -przTheta0
	}
	if math.Abs(c) < epsilon {
		if c >= 0 {
			c = epsilon
		} else {
			c = -epsilon
		}
	}

	d := math.Exp(c) - 1
	pRange := float64(pMax - pMin)

	weights := make([]float64, pMax-pMin+1)
	sum := 0.0
	for p := pMin; p <= pMax; p++ {
		r := float64(p-pMin) / pRange
		var w float64
		switch {
		case s == 0:
			w = 1.0 / (pRange + 1)
		case s > 0:
			if dirn == przBuy {
				w = (math.Exp(c*r) - 1) / d
			} else {
				w = (math.Exp(c*(1-r)) - 1) / d
			}
		default: // s < 0
			var base float64
			if dirn == przBuy {
				base = (math.Exp(c*r) - 1) / d
			} else {
				base = (math.Exp(c*(1-r)) - 1) / d
			}
			w = 1.0 - base
		}
		if w < 0 {
			w = 0
		}
		weights[p-pMin] = w
		sum += w
	}

	entries := make([]cdfEntry, len(weights))
	cum := 0.0
	for i, w := range weights {
		prob := 0.0
		if sum > 0 {
			prob = w / sum
		}
		cum += prob
		entries[i] = cdfEntry{Price: pMin + i, CumProb: cum}
	}
	if len(entries) > 0 {
		entries[len(entries)-1].CumProb = 1.0
	}
	return cdfLUT{Entries: entries}
}

func (l cdfLUT) sample(u float64) int {
	for _, e := range l.Entries {
		if u < e.CumProb {
			return e.Price
		}
	}
	return l.Entries[len(l.Entries)-1].Price
}

// przStrategy is one member of a PRZI trader's strategy population.
type przStrategy struct {
	Value   float64
	StartT  float64
	Active  bool
	Profit  float64
	PPS     float64
}

// przOptimizer selects which meta-optimizer, if any, governs the
// strategy population.
type przOptimizer int8

const (
	przNone przOptimizer = iota
	przPRSH
	przPRDE
)

const przStratWaitTime = 7200.0

// deState is PRDE's two-phase active_s0/active_snew state machine.
type deState struct {
	phase      string // "active_s0" | "active_snew"
	s0Index    int
	snewIndex  int
	f          float64
}

// PRZI is Cliff's Parameterized-Response Zero-Intelligence trader, with
// optional PRSH (stochastic hill-climbing) or PRDE (differential
// evolution) meta-optimization over a population of strategy values,
// per spec.md §4.5.
type PRZI struct {
	Base

	Optimizer przOptimizer
	K         int

	StratRangeMin, StratRangeMax float64
	ActiveStrat                  int
	LastStratChangeTime          float64
	ProfitEpsilon                float64
	Strats                       []przStrategy

	pMax   int
	havePMax bool
	pMaxCI float64

	de deState

	cache *cache.Cache
}

func newPRZIBase(id, ttype string, c market.Constants, s *rng.Stream, birth float64, k int, opt przOptimizer) *PRZI {
	t := &PRZI{
		Base:          NewBase(id, ttype, c, s, birth, false),
		Optimizer:     opt,
		K:             k,
		StratRangeMin: -1.0,
		StratRangeMax: 1.0,
		ProfitEpsilon: 0,
		pMaxCI:        math.Sqrt(float64(s.UniformInt(1, 10))),
		cache:         cache.New(cache.NoExpiration, 0),
	}

	nSlots := k
	if opt == przPRDE {
		nSlots = k + 1 // (k+1)th slot holds PRDE's candidate
	}
	t.Strats = make([]przStrategy, nSlots)
	t.Strats[0] = przStrategy{Value: uniformInRange(s, t.StratRangeMin, t.StratRangeMax), StartT: birth, Active: true}
	for i := 1; i < nSlots; i++ {
		switch opt {
		case przPRSH:
			t.Strats[i] = przStrategy{Value: gaussMutate(s, t.Strats[0].Value, 0.05, -1, 1), StartT: birth}
		case przPRDE:
			t.Strats[i] = przStrategy{Value: uniformInRange(s, -1, 1), StartT: birth}
		default:
			t.Strats[i] = przStrategy{Value: t.Strats[0].Value, StartT: birth}
		}
	}
	if opt == przPRDE {
		t.de = deState{phase: "active_s0", s0Index: 0, snewIndex: k, f: 0.8}
	}
	return t
}

func uniformInRange(s *rng.Stream, lo, hi float64) float64 {
	return lo + s.Float64()*(hi-lo)
}

func gaussMutate(s *rng.Stream, v, sdev, lo, hi float64) float64 {
	nv := v
	for nv == v {
		nv = v + s.Gauss(0, sdev)
		if nv > hi {
			nv = hi
		} else if nv < lo {
			nv = lo
		}
	}
	return nv
}

// NewPRZI creates a non-adaptive PRZI trader with a single fixed
// strategy value drawn uniformly from [-1, 1].
func NewPRZI(id string, c market.Constants, s *rng.Stream, birth float64) *PRZI {
	return newPRZIBase(id, "PRZI", c, s, birth, 1, przNone)
}

// NewPRSH creates a PRZI trader whose k-strategy population is evolved
// by stochastic hill-climbing, per spec.md §4.5.
func NewPRSH(id string, c market.Constants, s *rng.Stream, birth float64, k int) *PRZI {
	if k < 1 {
		k = 1
	}
	return newPRZIBase(id, "PRSH", c, s, birth, k, przPRSH)
}

// NewPRDE creates a PRZI trader whose k-strategy population is evolved
// by differential evolution, per spec.md §4.5. k must be >= 4, per
// spec.md §7's configuration-error list.
func NewPRDE(id string, c market.Constants, s *rng.Stream, birth float64, k int) (*PRZI, error) {
	if k < 4 {
		return nil, simerr.Configf("trader.NewPRDE", "k=%d < 4 required for PRDE", k)
	}
	return newPRZIBase(id, "PRDE", c, s, birth, k, przPRDE), nil
}

func (t *PRZI) Assign(a market.Assignment) market.AssignResult { return t.assign(a) }

func (t *PRZI) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if !t.HasAssignment() {
		return nil, false
	}
	a := t.Assignment()
	limit := a.Price
	strat := t.Strats[t.ActiveStrat].Value
	pShvr := shvrPrice(a.Side, limit, lob)

	minPrice := lob.Bids.Worst
	if !t.havePMax {
		t.pMax = int(float64(limit)*t.pMaxCI + 0.5)
		t.havePMax = true
	} else if lob.SessHi > t.pMax {
		t.pMax = lob.SessHi
	}

	var pMin, pMax int
	var dirn przDirection
	if a.Side == market.Bid {
		dirn = przBuy
		pMax = limit
		if strat > 0 {
			pMin = minPrice
		} else {
			pMin = int(0.5 + (-strat * float64(pShvr)) + (1+strat)*float64(minPrice))
		}
	} else {
		dirn = przSell
		pMin = limit
		if strat > 0 {
			pMax = t.pMax
		} else {
			pMax = int(0.5 + (-strat * float64(pShvr)) + (1+strat)*float64(t.pMax))
			if pMax < pMin {
				pMax = pMin
			}
		}
	}

	key := fmt.Sprintf("%d:%.9f:%d:%d", dirn, strat, pMin, pMax)
	var lut cdfLUT
	if cached, ok := t.cache.Get(key); ok {
		lut = cached.(cdfLUT)
	} else {
		lut = buildCDF(strat, dirn, pMin, pMax)
		t.cache.Set(key, lut, cache.NoExpiration)
	}

	price := lut.sample(t.RNG.Float64())
	o := &market.Order{TraderID: t.TID, Side: a.Side, Price: price, Time: tm}
	t.setQuote(o)
	return o, true
}

func (t *PRZI) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	t.updateProfitPerTime(tm)

	for i := range t.Strats {
		if t.Strats[i].Active {
			t.Strats[i].PPS = pps(tm, t.Strats[i].StartT, t.Strats[i].Profit)
		}
	}

	switch t.Optimizer {
	case przPRSH:
		t.respondPRSH(tm)
	case przPRDE:
		t.respondPRDE(tm)
	}
}

func pps(now, startT, profit float64) float64 {
	alive := now - startT
	if alive <= 0 {
		return profit
	}
	return profit / alive
}

func (t *PRZI) respondPRSH(tm float64) {
	elapsed := tm - t.LastStratChangeTime
	if elapsed > przStratWaitTime {
		t.Strats[t.ActiveStrat].Active = false
		next := t.ActiveStrat + 1
		if next > t.K-1 {
			next = 0
		}
		t.ActiveStrat = next
		t.Strats[next].Active = true
		t.LastStratChangeTime = tm
	}

	allOldEnough := true
	evalTime := float64(t.K) * przStratWaitTime
	for i := range t.Strats {
		if tm-t.Strats[i].StartT < evalTime {
			allOldEnough = false
			break
		}
	}
	if !allOldEnough {
		return
	}

	order := make([]int, len(t.Strats))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return t.Strats[order[i]].PPS > t.Strats[order[j]].PPS })

	best := 0
	if len(order) > 1 {
		diff := t.Strats[order[0]].PPS - t.Strats[order[1]].PPS
		if math.Abs(diff) < t.ProfitEpsilon {
			best = t.RNG.IntN(2)
		}
	}
	eliteIdx := order[best]
	elite := t.Strats[eliteIdx].Value

	sorted := make([]przStrategy, len(t.Strats))
	for i, idx := range order {
		sorted[i] = t.Strats[idx]
	}
	if best == 1 {
		sorted[0], sorted[1] = sorted[1], sorted[0]
	}
	t.Strats = sorted
	_ = elite

	for i := 1; i < t.K; i++ {
		t.Strats[i].Value = gaussMutate(t.RNG, t.Strats[0].Value, 0.05, -1, 1)
		t.Strats[i].StartT = tm
		t.Strats[i].Profit = 0
		t.Strats[i].PPS = 0
	}
	t.Strats[0].StartT = tm
	t.Strats[0].Profit = 0
	t.Strats[0].PPS = 0
	t.ActiveStrat = 0
	t.Strats[0].Active = true
}

func (t *PRZI) respondPRDE(tm float64) {
	activeLifetime := tm - t.Strats[t.ActiveStrat].StartT
	if activeLifetime < przStratWaitTime {
		return
	}

	switch t.de.phase {
	case "active_s0":
		t.Strats[t.ActiveStrat].Active = false
		t.ActiveStrat = t.de.snewIndex
		t.activateStrat(tm, t.ActiveStrat)
		t.de.phase = "active_snew"

	case "active_snew":
		i0, iNew := t.de.s0Index, t.de.snewIndex
		if t.Strats[iNew].PPS >= t.Strats[i0].PPS {
			t.Strats[i0].Value = t.Strats[iNew].Value
		}

		order := t.RNG.Perm(t.K)
		t.de.s0Index = order[0]
		s1, s2, s3 := t.Strats[order[1]].Value, t.Strats[order[2]].Value, t.Strats[order[3]].Value
		newVal := s1 + t.de.f*(s2-s3)
		if newVal > 1 {
			newVal = 1
		} else if newVal < -1 {
			newVal = -1
		}
		t.Strats[t.de.snewIndex].Value = newVal

		values := make([]float64, t.K)
		for i := 0; i < t.K; i++ {
			values[i] = t.Strats[i].Value
		}
		stddev := stat.PopStdDev(values, nil)
		if stddev < 1e-4 {
			idx := t.RNG.IntN(t.K)
			t.Strats[idx].Value = uniformInRange(t.RNG, -1, 1)
		}

		t.ActiveStrat = t.de.s0Index
		t.activateStrat(tm, t.ActiveStrat)
		t.de.phase = "active_s0"
	}
}

func (t *PRZI) activateStrat(tm float64, idx int) {
	t.Strats[idx].StartT = tm
	t.Strats[idx].Active = true
	t.Strats[idx].Profit = 0
	t.Strats[idx].PPS = 0
}

func (t *PRZI) Bookkeep(tm float64, trade market.Trade) error {
	a := t.Assignment()
	profit, err := t.bookkeep(tm, trade, a.Price, a.Side, otherParty(trade, t.TID))
	if err != nil {
		return err
	}
	t.Strats[t.ActiveStrat].Profit += float64(profit)
	return nil
}
