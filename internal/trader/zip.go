package trader

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
	"github.com/dniure/BSE-IntelligentAgents/internal/simerr"
)

// zipStrategy is one member of a ZIPSH/ZIPDE trader's strategy population:
// the six Cliff-1997 margin-learning parameters plus fitness bookkeeping.
type zipStrategy struct {
	MarginBuy, MarginSell float64
	Beta, Momentum        float64
	Ca, Cr                float64

	StartT    float64
	Active    bool
	Evaluated bool
	Profit    float64
	PPS       float64
}

func (s zipStrategy) mutate(stream *rng.Stream) zipStrategy {
	const bigSdev = 0.025
	const smallSdev = 0.0025
	return zipStrategy{
		MarginBuy:  gaussMutate(stream, s.MarginBuy, bigSdev, -1.0, 0.0),
		MarginSell: gaussMutate(stream, s.MarginSell, bigSdev, 0.0, 1.0),
		Beta:       gaussMutate(stream, s.Beta, bigSdev, 0.0, 1.0),
		Momentum:   gaussMutate(stream, s.Momentum, bigSdev, 0.0, 1.0),
		Ca:         gaussMutate(stream, s.Ca, smallSdev, 0.0, 1.0),
		Cr:         gaussMutate(stream, s.Cr, smallSdev, 0.0, 1.0),
	}
}

func initMargin(s *rng.Stream) float64   { return uniformInRange(s, 0.05, 0.35) }
func initBeta(s *rng.Stream) float64     { return uniformInRange(s, 0.1, 0.5) }
func initMomentum(s *rng.Stream) float64 { return uniformInRange(s, 0.0, 0.1) }
func initCaCr(s *rng.Stream) float64     { return uniformInRange(s, 0.01, 0.05) }

func randomZIPStrategy(s *rng.Stream) zipStrategy {
	return zipStrategy{
		MarginBuy:  -1.0 * initMargin(s),
		MarginSell: initMargin(s),
		Beta:       initBeta(s),
		Momentum:   initMomentum(s),
		Ca:         initCaCr(s),
		Cr:         initCaCr(s),
	}
}

// zipOptimizer selects which meta-optimizer, if any, governs a ZIP
// trader's strategy population.
type zipOptimizer int8

const (
	zipNone zipOptimizer = iota
	zipSH
	zipDE
)

// ZIP is Cliff's Zero-Intelligence-Plus margin-learning trader, with
// optional ZIPSH (stochastic hill-climbing) or ZIPDE (differential
// evolution) meta-optimization over a population of strategy vectors,
// per spec.md §4.6.
type ZIP struct {
	Base

	Optimizer zipOptimizer
	K         int
	Strats    []zipStrategy

	StratWaitTime       float64
	LastStratChangeTime float64
	ActiveStrat         int
	ProfitEpsilon       float64

	job    market.Side
	active bool

	prevChange float64
	beta       float64
	momentum   float64
	ca, cr     float64
	marginBuy  float64
	marginSell float64
	margin     float64
	price      float64
	limit      int

	havePrevBid bool
	prevBidP    int
	prevBidQ    int
	havePrevAsk bool
	prevAskP    int
	prevAskQ    int

	de deState
}

func newZIPBase(id, ttype string, c market.Constants, s *rng.Stream, birth float64, k int, opt zipOptimizer) *ZIP {
	t := &ZIP{
		Base:          NewBase(id, ttype, c, s, birth, false),
		Optimizer:     opt,
		K:             k,
		StratWaitTime: 7200 + float64(s.UniformInt(0, 3600)),
		ProfitEpsilon: 0,
		beta:          initBeta(s),
		momentum:      initMomentum(s),
		ca:            initCaCr(s),
		cr:            initCaCr(s),
		marginBuy:     -1.0 * initMargin(s),
		marginSell:    initMargin(s),
	}

	if opt != zipNone && k > 1 {
		nSlots := k
		if opt == zipDE {
			nSlots = k + 1
		}
		t.Strats = make([]zipStrategy, nSlots)
		t.Strats[0] = zipStrategy{
			MarginBuy: t.marginBuy, MarginSell: t.marginSell,
			Beta: t.beta, Momentum: t.momentum, Ca: t.ca, Cr: t.cr,
			StartT: birth, Active: true,
		}
		for i := 1; i < nSlots; i++ {
			t.Strats[i] = randomZIPStrategy(s)
			t.Strats[i].StartT = birth
		}
		if opt == zipDE {
			t.de = deState{phase: "active_s0", s0Index: 0, snewIndex: k, f: 0.8}
		}
	}
	return t
}

// NewZIP creates a non-adaptive ZIP trader with fixed margin-learning
// hyperparameters drawn from the Cliff 1997 initialization ranges.
func NewZIP(id string, c market.Constants, s *rng.Stream, birth float64) *ZIP {
	return newZIPBase(id, "ZIP", c, s, birth, 1, zipNone)
}

// NewZIPSH creates a ZIP trader whose k-strategy population is evolved
// by stochastic hill-climbing, per spec.md §4.6.
func NewZIPSH(id string, c market.Constants, s *rng.Stream, birth float64, k int) *ZIP {
	if k < 1 {
		k = 1
	}
	return newZIPBase(id, "ZIPSH", c, s, birth, k, zipSH)
}

// NewZIPDE creates a ZIP trader whose k-strategy population is evolved
// by differential evolution over the six-dimensional strategy vector,
// generalizing PRDE's scalar DE step. k must be >= 4.
func NewZIPDE(id string, c market.Constants, s *rng.Stream, birth float64, k int) (*ZIP, error) {
	if k < 4 {
		return nil, simerr.Configf("trader.NewZIPDE", "k=%d < 4 required for ZIPDE", k)
	}
	return newZIPBase(id, "ZIPDE", c, s, birth, k, zipDE), nil
}

func (t *ZIP) Assign(a market.Assignment) market.AssignResult { return t.assign(a) }

func (t *ZIP) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if !t.HasAssignment() {
		t.active = false
		return nil, false
	}
	t.active = true
	a := t.Assignment()
	t.limit = a.Price
	t.job = a.Side
	if t.job == market.Bid {
		t.margin = t.marginBuy
	} else {
		t.margin = t.marginSell
	}
	quote := float64(t.limit) * (1 + t.margin)
	t.price = roundHalfAwayFromZero(quote)

	o := &market.Order{TraderID: t.TID, Side: t.job, Price: int(t.price), Time: tm}
	t.setQuote(o)
	return o, true
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int(v + 0.5))
	}
	return float64(int(v - 0.5))
}

func (t *ZIP) targetUp(price float64) float64 {
	ptrbAbs := t.ca * t.RNG.Float64()
	ptrbRel := price * (1.0 + t.cr*t.RNG.Float64())
	return roundHalfAwayFromZero(ptrbRel + ptrbAbs)
}

func (t *ZIP) targetDown(price float64) float64 {
	ptrbAbs := t.ca * t.RNG.Float64()
	ptrbRel := price * (1.0 - t.cr*t.RNG.Float64())
	return roundHalfAwayFromZero(ptrbRel - ptrbAbs)
}

func (t *ZIP) willingToTrade(price float64) bool {
	if t.job == market.Bid && t.active && t.price >= price {
		return true
	}
	if t.job == market.Ask && t.active && t.price <= price {
		return true
	}
	return false
}

// profitAlter is ZIP's momentum-based margin update rule, per spec.md
// §4.6: shift toward the target price by a damped, momentum-blended
// step, then re-derive the margin from the new price and limit.
func (t *ZIP) profitAlter(target float64) {
	oldPrice := t.price
	diff := target - oldPrice
	change := (1.0-t.momentum)*(t.beta*diff) + t.momentum*t.prevChange
	t.prevChange = change
	newMargin := (t.price+change)/float64(t.limit) - 1.0

	if t.job == market.Bid {
		if newMargin < 0.0 {
			t.marginBuy = newMargin
			t.margin = newMargin
		}
	} else {
		if newMargin > 0.0 {
			t.marginSell = newMargin
			t.margin = newMargin
		}
	}
	t.price = roundHalfAwayFromZero(float64(t.limit) * (1.0 + t.margin))
}

func lastTapeWasCancel(lob market.Snapshot) bool {
	if len(lob.LastTape) == 0 {
		return false
	}
	return lob.LastTape[len(lob.LastTape)-1].Kind == market.EventCancel
}

func (t *ZIP) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	t.updateProfitPerTime(tm)

	switch t.Optimizer {
	case zipSH:
		t.respondZIPSH(tm)
	case zipDE:
		t.respondZIPDE(tm)
	}

	bidImproved, bidHit := false, false
	var lobBestBidQ int
	if lob.Bids.N > 0 {
		lobBestBidQ = lob.Bids.LOB[len(lob.Bids.LOB)-1][1]
		if t.havePrevBid && t.prevBidP < lob.Bids.Best {
			bidImproved = true
		} else if lastTrade != nil && t.havePrevBid &&
			(t.prevBidP > lob.Bids.Best || (t.prevBidP == lob.Bids.Best && t.prevBidQ > lobBestBidQ)) {
			bidHit = true
		}
	} else if t.havePrevBid {
		bidHit = !lastTapeWasCancel(lob)
	}

	askImproved, askLifted := false, false
	var lobBestAskQ int
	if lob.Asks.N > 0 {
		lobBestAskQ = lob.Asks.LOB[0][1]
		if t.havePrevAsk && t.prevAskP > lob.Asks.Best {
			askImproved = true
		} else if lastTrade != nil && t.havePrevAsk &&
			(t.prevAskP < lob.Asks.Best || (t.prevAskP == lob.Asks.Best && t.prevAskQ > lobBestAskQ)) {
			askLifted = true
		}
	} else if t.havePrevAsk {
		askLifted = !lastTapeWasCancel(lob)
	}

	deal := bidHit || askLifted

	if t.job == market.Ask {
		if deal {
			tradePrice := float64(lastTrade.Price)
			if t.price <= tradePrice {
				t.profitAlter(t.targetUp(tradePrice))
			} else if askLifted && t.active && !t.willingToTrade(tradePrice) {
				t.profitAlter(t.targetDown(tradePrice))
			}
		} else if askImproved && t.price > float64(lob.Asks.Best) {
			var target float64
			if lob.Bids.N > 0 {
				target = t.targetUp(float64(lob.Bids.Best))
			} else {
				target = float64(lob.Asks.Worst)
			}
			t.profitAlter(target)
		}
	}

	if t.job == market.Bid {
		if deal {
			tradePrice := float64(lastTrade.Price)
			if t.price >= tradePrice {
				t.profitAlter(t.targetDown(tradePrice))
			} else if bidHit && t.active && !t.willingToTrade(tradePrice) {
				t.profitAlter(t.targetUp(tradePrice))
			}
		} else if bidImproved && t.price < float64(lob.Bids.Best) {
			var target float64
			if lob.Asks.N > 0 {
				target = t.targetDown(float64(lob.Asks.Best))
			} else {
				target = float64(lob.Bids.Worst)
			}
			t.profitAlter(target)
		}
	}

	if lob.Bids.N > 0 {
		t.prevBidP, t.prevBidQ, t.havePrevBid = lob.Bids.Best, lobBestBidQ, true
	} else {
		t.havePrevBid = false
	}
	if lob.Asks.N > 0 {
		t.prevAskP, t.prevAskQ, t.havePrevAsk = lob.Asks.Best, lobBestAskQ, true
	} else {
		t.havePrevAsk = false
	}
}

// loadStrat copies a population member's parameter vector into the
// trader's live strategy state and resets its bookkeeping, per spec.md
// §4.6's strategy-cycling behaviour for ZIPSH/ZIPDE.
func (t *ZIP) loadStrat(v zipStrategy, birth float64) {
	t.marginBuy, t.marginSell = v.MarginBuy, v.MarginSell
	t.beta, t.momentum, t.ca, t.cr = v.Beta, v.Momentum, v.Ca, v.Cr
	t.BirthTime = birth
	t.Balance_ = 0
	t.nTrades = 0
	t.profitPerTime = 0
}

func (t *ZIP) respondZIPSH(tm float64) {
	for i := range t.Strats {
		if t.Strats[i].Active {
			t.Strats[i].PPS = pps(tm, t.Strats[i].StartT, t.Strats[i].Profit)
		}
	}

	allEvaluated := true
	for i := range t.Strats {
		if !t.Strats[i].Evaluated {
			allEvaluated = false
			break
		}
	}

	if allEvaluated {
		best := 0
		if len(t.Strats) > 1 {
			diff := t.Strats[0].PPS - t.Strats[1].PPS
			if diff < 0 {
				diff = -diff
			}
			if diff < t.ProfitEpsilon {
				best = t.RNG.IntN(2)
			}
		}
		if best == 1 {
			t.Strats[0], t.Strats[1] = t.Strats[1], t.Strats[0]
		}

		for i := 1; i < t.K; i++ {
			t.Strats[i] = t.Strats[0].mutate(t.RNG)
			t.activateZIPStrat(tm, i)
		}
		t.activateZIPStrat(tm, 0)
		t.loadStrat(t.Strats[0], tm)
		t.ActiveStrat = 0
		return
	}

	s := t.ActiveStrat
	elapsed := tm - t.Strats[s].StartT
	if elapsed < t.StratWaitTime {
		return
	}
	t.Strats[s].Active = false
	t.Strats[s].Profit = t.Balance_
	t.Strats[s].PPS = t.PPS()
	t.Strats[s].Evaluated = true

	next := s + 1
	if next > t.K-1 {
		sorted := append([]zipStrategy(nil), t.Strats...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].PPS > sorted[j].PPS })
		t.Strats = sorted
		return
	}
	t.loadStrat(t.Strats[next], tm)
	t.Strats[next].StartT = tm
	t.ActiveStrat = next
	t.Strats[next].Active = true
	t.LastStratChangeTime = tm
}

func (t *ZIP) activateZIPStrat(tm float64, idx int) {
	t.Strats[idx].StartT = tm
	t.Strats[idx].Active = true
	t.Strats[idx].Profit = 0
	t.Strats[idx].PPS = 0
	t.Strats[idx].Evaluated = false
}

func (t *ZIP) respondZIPDE(tm float64) {
	for i := range t.Strats {
		if t.Strats[i].Active {
			t.Strats[i].PPS = pps(tm, t.Strats[i].StartT, t.Strats[i].Profit)
		}
	}

	activeLifetime := tm - t.Strats[t.ActiveStrat].StartT
	if activeLifetime < t.StratWaitTime {
		return
	}

	switch t.de.phase {
	case "active_s0":
		t.Strats[t.ActiveStrat].Active = false
		t.ActiveStrat = t.de.snewIndex
		t.loadStrat(t.Strats[t.ActiveStrat], tm)
		t.activateZIPStrat(tm, t.ActiveStrat)
		t.de.phase = "active_snew"

	case "active_snew":
		i0, iNew := t.de.s0Index, t.de.snewIndex
		if t.Strats[iNew].PPS >= t.Strats[i0].PPS {
			startT := t.Strats[i0].StartT
			t.Strats[i0] = t.Strats[iNew]
			t.Strats[i0].StartT = startT
		}

		order := t.RNG.Perm(t.K)
		t.de.s0Index = order[0]
		s1, s2, s3 := t.Strats[order[1]], t.Strats[order[2]], t.Strats[order[3]]
		mutated := zipStrategy{
			MarginBuy:  clipf(s1.MarginBuy+t.de.f*(s2.MarginBuy-s3.MarginBuy), -1.0, 0.0),
			MarginSell: clipf(s1.MarginSell+t.de.f*(s2.MarginSell-s3.MarginSell), 0.0, 1.0),
			Beta:       clipf(s1.Beta+t.de.f*(s2.Beta-s3.Beta), 0.0, 1.0),
			Momentum:   clipf(s1.Momentum+t.de.f*(s2.Momentum-s3.Momentum), 0.0, 1.0),
			Ca:         clipf(s1.Ca+t.de.f*(s2.Ca-s3.Ca), 0.0, 1.0),
			Cr:         clipf(s1.Cr+t.de.f*(s2.Cr-s3.Cr), 0.0, 1.0),
		}
		t.Strats[t.de.snewIndex].MarginBuy = mutated.MarginBuy
		t.Strats[t.de.snewIndex].MarginSell = mutated.MarginSell
		t.Strats[t.de.snewIndex].Beta = mutated.Beta
		t.Strats[t.de.snewIndex].Momentum = mutated.Momentum
		t.Strats[t.de.snewIndex].Ca = mutated.Ca
		t.Strats[t.de.snewIndex].Cr = mutated.Cr

		if t.populationConverged() {
			idx := t.RNG.IntN(t.K)
			t.Strats[idx] = randomZIPStrategy(t.RNG)
			t.Strats[idx].StartT = tm
		}

		t.ActiveStrat = t.de.s0Index
		t.loadStrat(t.Strats[t.ActiveStrat], tm)
		t.activateZIPStrat(tm, t.ActiveStrat)
		t.de.phase = "active_s0"
	}
}

// populationConverged reports whether every dimension of the k-strategy
// population has collapsed to near-identical values, generalizing
// PRDE's scalar convergence-rescue check across the six-dimensional
// ZIP strategy vector.
func (t *ZIP) populationConverged() bool {
	dims := make([][]float64, 6)
	for d := range dims {
		dims[d] = make([]float64, t.K)
	}
	for i := 0; i < t.K; i++ {
		dims[0][i] = t.Strats[i].MarginBuy
		dims[1][i] = t.Strats[i].MarginSell
		dims[2][i] = t.Strats[i].Beta
		dims[3][i] = t.Strats[i].Momentum
		dims[4][i] = t.Strats[i].Ca
		dims[5][i] = t.Strats[i].Cr
	}
	for _, d := range dims {
		if stat.PopStdDev(d, nil) >= 1e-4 {
			return false
		}
	}
	return true
}

func clipf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (t *ZIP) Bookkeep(tm float64, trade market.Trade) error {
	a := t.Assignment()
	profit, err := t.bookkeep(tm, trade, a.Price, a.Side, otherParty(trade, t.TID))
	if err != nil {
		return err
	}
	if t.Optimizer != zipNone && len(t.Strats) > 0 {
		t.Strats[t.ActiveStrat].Profit += float64(profit)
	}
	return nil
}
