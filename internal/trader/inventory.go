package trader

import (
	"fmt"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
)

// inventoryJob tracks whether a self-issuing trader is currently trying
// to acquire or dispose of a unit.
type inventoryJob = market.Side

const (
	jobBuy  = market.Bid
	jobSell = market.Ask
)

// recentTradePrices walks the tape backwards from its end, collecting
// up to n executed-trade prices, per spec.md §4.7's PT1/PT2 average.
func recentTradePrices(tape []market.TapeEvent, n int) ([]int, bool) {
	prices := make([]int, 0, n)
	for i := len(tape) - 1; i >= 0 && len(prices) < n; i-- {
		if tape[i].Kind == market.EventTrade {
			prices = append(prices, tape[i].Trade.Price)
		}
	}
	return prices, len(prices) == n
}

func meanInt(xs []int) float64 {
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

// midPrice returns the book's mid-price and whether both sides are
// currently populated.
func midPrice(lob market.Snapshot) (float64, bool) {
	if lob.Bids.N > 0 && lob.Asks.N > 0 {
		return float64(lob.Bids.Best+lob.Asks.Best) / 2.0, true
	}
	return 0, false
}

// PT is the PT1/PT2 long-only buy-and-hold strategy: wait for the
// market to settle, buy when the best ask looks cheap relative to
// recent trade prices and the bank can afford it, then hold for a
// fixed absolute markup before selling, per spec.md §4.7.
type PT struct {
	Base

	NPastTrades int
	BidPercent  float64
	AskDelta    int

	job               inventoryJob
	lastPurchasePrice int
	hasPurchase       bool
	pending           *market.Order
}

func newPT(id, ttype string, c market.Constants, s *rng.Stream, birth float64) *PT {
	return &PT{
		Base:        NewBase(id, ttype, c, s, birth, true),
		NPastTrades: 5,
		BidPercent:  0.9999,
		AskDelta:    5,
		job:         jobBuy,
	}
}

// NewPT1 and NewPT2 construct PT1 and PT2, which share identical
// logic under different type labels, per spec.md §4.7.
func NewPT1(id string, c market.Constants, s *rng.Stream, birth float64) *PT {
	return newPT(id, "PT1", c, s, birth)
}

func NewPT2(id string, c market.Constants, s *rng.Stream, birth float64) *PT {
	return newPT(id, "PT2", c, s, birth)
}

func (t *PT) Assign(market.Assignment) market.AssignResult { return market.Proceed }

// NetWorth marks the held unit to its purchase price while PT is
// waiting out its hold, per spec.md §6.
func (t *PT) NetWorth() float64 {
	if t.hasPurchase {
		return t.Balance_ + float64(t.lastPurchasePrice)
	}
	return t.Balance_
}

func (t *PT) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if t.pending == nil || tm < 300 {
		return nil, false
	}
	o := &market.Order{TraderID: t.TID, Side: t.pending.Side, Price: t.pending.Price, Time: tm}
	t.setQuote(o)
	return o, true
}

func (t *PT) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	if t.job == jobBuy {
		if prices, ok := recentTradePrices(lob.LastTape, t.NPastTrades); ok && lob.Asks.N > 0 {
			avg := meanInt(prices)
			bestAsk := lob.Asks.Best
			if float64(bestAsk)/avg < t.BidPercent {
				bidPrice := bestAsk + 1
				if float64(bidPrice) < t.Balance_ {
					t.pending = &market.Order{Side: market.Bid, Price: bidPrice}
				}
			}
		}
	} else if t.job == jobSell && lob.Bids.N > 0 {
		askPrice := t.lastPurchasePrice + t.AskDelta
		if askPrice < lob.Bids.Best {
			t.pending = &market.Order{Side: market.Ask, Price: askPrice}
		}
	}
	t.updateProfitPerTime(tm)
}

func (t *PT) Bookkeep(tm float64, trade market.Trade) error {
	t.appendBlotter(BlotterEntry{Time: tm, Price: trade.Price, Qty: 1, Party1: trade.Party1, Party2: trade.Party2})
	if t.pending != nil && t.pending.Side == market.Bid {
		t.Balance_ -= float64(trade.Price)
		t.lastPurchasePrice = trade.Price
		t.hasPurchase = true
		t.job = jobSell
	} else {
		t.Balance_ += float64(trade.Price)
		t.hasPurchase = false
		t.job = jobBuy
	}
	t.nTrades++
	t.pending = nil
	t.clearQuote()
	return nil
}

// midHistory is a small fixed-capacity ring of recent mid-prices, with
// gaps recorded as invalid rather than dropped, matching the reference
// strategies' habit of tracking "None" entries.
type midHistory struct {
	cap    int
	values []float64
	valid  []bool
}

func newMidHistory(cap int) midHistory {
	return midHistory{cap: cap}
}

func (h *midHistory) push(v float64, ok bool) {
	h.values = append(h.values, v)
	h.valid = append(h.valid, ok)
	if len(h.values) > h.cap {
		h.values = h.values[len(h.values)-h.cap:]
		h.valid = h.valid[len(h.valid)-h.cap:]
	}
}

func (h *midHistory) full() bool {
	return len(h.values) == h.cap
}

func (h *midHistory) allValid() bool {
	for _, ok := range h.valid {
		if !ok {
			return false
		}
	}
	return true
}

func (h *midHistory) strictlyIncreasing() bool {
	for i := 1; i < len(h.values); i++ {
		if !(h.values[i] > h.values[i-1]) {
			return false
		}
	}
	return true
}

func (h *midHistory) strictlyDecreasing() bool {
	for i := 1; i < len(h.values); i++ {
		if !(h.values[i] < h.values[i-1]) {
			return false
		}
	}
	return true
}

func (h *midHistory) mean() float64 {
	sum := 0.0
	for _, v := range h.values {
		sum += v
	}
	return sum / float64(len(h.values))
}

// TrendFollower lifts the ask while the three most recent mid-prices are
// strictly rising and it wants to buy, and dumps its unit at the purchase price
// while they are falling and it wants to sell, per spec.md §4.7.
type TrendFollower struct {
	Base

	job               inventoryJob
	lastPurchasePrice int
	hasPurchase       bool
	history           midHistory
	pending           *market.Order
}

func NewTrendFollower(id string, c market.Constants, s *rng.Stream, birth float64) *TrendFollower {
	return &TrendFollower{
		Base:    NewBase(id, "TrendFollower", c, s, birth, true),
		job:     jobBuy,
		history: newMidHistory(3),
	}
}

func (t *TrendFollower) Assign(market.Assignment) market.AssignResult { return market.Proceed }

// NetWorth marks the held unit to its purchase price while
// TrendFollower holds it, per spec.md §6.
func (t *TrendFollower) NetWorth() float64 {
	if t.hasPurchase {
		return t.Balance_ + float64(t.lastPurchasePrice)
	}
	return t.Balance_
}

func (t *TrendFollower) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if t.pending == nil || tm < 300 {
		return nil, false
	}
	o := &market.Order{TraderID: t.TID, Side: t.pending.Side, Price: t.pending.Price, Time: tm}
	t.setQuote(o)
	return o, true
}

func (t *TrendFollower) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	mid, ok := midPrice(lob)
	t.history.push(mid, ok)

	t.pending = nil
	if t.history.full() && t.history.allValid() {
		increasing := t.history.strictlyIncreasing()
		decreasing := t.history.strictlyDecreasing()

		if t.job == jobBuy && increasing && lob.Asks.N > 0 {
			bestAsk := lob.Asks.Best
			if float64(bestAsk) < t.Balance_ {
				t.pending = &market.Order{Side: market.Bid, Price: bestAsk + 1}
			}
		} else if t.job == jobSell && decreasing && lob.Bids.N > 0 && t.hasPurchase {
			t.pending = &market.Order{Side: market.Ask, Price: t.lastPurchasePrice}
		}
	}
	t.updateProfitPerTime(tm)
}

func (t *TrendFollower) Bookkeep(tm float64, trade market.Trade) error {
	t.appendBlotter(BlotterEntry{Time: tm, Price: trade.Price, Qty: 1, Party1: trade.Party1, Party2: trade.Party2})
	if t.pending != nil && t.pending.Side == market.Bid {
		t.Balance_ -= float64(trade.Price)
		t.lastPurchasePrice = trade.Price
		t.hasPurchase = true
		t.job = jobSell
	} else {
		t.Balance_ += float64(trade.Price)
		t.hasPurchase = false
		t.job = jobBuy
	}
	t.nTrades++
	t.pending = nil
	t.clearQuote()
	return nil
}

// MeanReverter buys when the mid-price dips 2% below its 10-point
// moving average and sells when it rises 2% above it, per spec.md
// §4.7.
type MeanReverter struct {
	Base

	job               inventoryJob
	lastPurchasePrice int
	hasPurchase       bool
	history           midHistory
	pending           *market.Order
}

func NewMeanReverter(id string, c market.Constants, s *rng.Stream, birth float64) *MeanReverter {
	return &MeanReverter{
		Base:    NewBase(id, "MeanReverter", c, s, birth, true),
		job:     jobBuy,
		history: newMidHistory(10),
	}
}

func (t *MeanReverter) Assign(market.Assignment) market.AssignResult { return market.Proceed }

// NetWorth marks the held unit to its purchase price while
// MeanReverter holds it, per spec.md §6.
func (t *MeanReverter) NetWorth() float64 {
	if t.hasPurchase {
		return t.Balance_ + float64(t.lastPurchasePrice)
	}
	return t.Balance_
}

func (t *MeanReverter) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if t.pending == nil || tm < 300 {
		return nil, false
	}
	o := &market.Order{TraderID: t.TID, Side: t.pending.Side, Price: t.pending.Price, Time: tm}
	t.setQuote(o)
	return o, true
}

func (t *MeanReverter) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	mid, ok := midPrice(lob)
	t.history.push(mid, ok)

	t.pending = nil
	if t.history.full() && t.history.allValid() {
		movingAvg := t.history.mean()

		if t.job == jobBuy && mid < 0.98*movingAvg && lob.Asks.N > 0 {
			bestAsk := lob.Asks.Best
			if float64(bestAsk) < t.Balance_ {
				t.pending = &market.Order{Side: market.Bid, Price: bestAsk + 1}
			}
		} else if t.job == jobSell && mid > 1.02*movingAvg && lob.Bids.N > 0 && t.hasPurchase {
			t.pending = &market.Order{Side: market.Ask, Price: t.lastPurchasePrice}
		}
	}
	t.updateProfitPerTime(tm)
}

func (t *MeanReverter) Bookkeep(tm float64, trade market.Trade) error {
	t.appendBlotter(BlotterEntry{Time: tm, Price: trade.Price, Qty: 1, Party1: trade.Party1, Party2: trade.Party2})
	if t.pending != nil && t.pending.Side == market.Bid {
		t.Balance_ -= float64(trade.Price)
		t.lastPurchasePrice = trade.Price
		t.hasPurchase = true
		t.job = jobSell
	} else {
		t.Balance_ += float64(trade.Price)
		t.hasPurchase = false
		t.job = jobBuy
	}
	t.nTrades++
	t.pending = nil
	t.clearQuote()
	return nil
}

// rlAction enumerates the RL agent's discrete action space.
type rlAction int

const (
	rlBuy rlAction = iota
	rlSell
	rlHold
)

// RL is a tabular Q-learning trader over state (trend in {0,1},
// balance_bin in {0,1,2}) and action in {buy, sell, hold}, per spec.md
// §4.7.
type RL struct {
	Base

	job               inventoryJob
	lastPurchasePrice int
	hasPurchase       bool
	history           midHistory
	pending           *market.Order

	qTable  [2][3][3]float64
	lr      float64
	gamma   float64
	epsilon float64

	haveLastState bool
	lastTrend     int
	lastBin       int
	lastAction    rlAction
}

func NewRL(id string, c market.Constants, s *rng.Stream, birth float64) *RL {
	return &RL{
		Base:    NewBase(id, "RL", c, s, birth, true),
		job:     jobBuy,
		history: newMidHistory(3),
		lr:      0.1,
		gamma:   0.9,
		epsilon: 0.3,
	}
}

func (t *RL) Assign(market.Assignment) market.AssignResult { return market.Proceed }

// NetWorth marks the held unit to its purchase price while RL holds
// it, per spec.md §6.
func (t *RL) NetWorth() float64 {
	if t.hasPurchase {
		return t.Balance_ + float64(t.lastPurchasePrice)
	}
	return t.Balance_
}

func (t *RL) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if t.pending == nil || tm < 300 {
		return nil, false
	}
	o := &market.Order{TraderID: t.TID, Side: t.pending.Side, Price: t.pending.Price, Time: tm}
	t.setQuote(o)
	return o, true
}

func balanceBin(balance float64) int {
	switch {
	case balance < 5000:
		return 0
	case balance <= 15000:
		return 1
	default:
		return 2
	}
}

func (t *RL) bestAction(trend, bin int) rlAction {
	best := rlBuy
	bestVal := t.qTable[trend][bin][rlBuy]
	for a := rlSell; a <= rlHold; a++ {
		if t.qTable[trend][bin][a] > bestVal {
			bestVal = t.qTable[trend][bin][a]
			best = a
		}
	}
	return best
}

func (t *RL) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	mid, ok := midPrice(lob)
	t.history.push(mid, ok)

	trend := 0
	if t.history.full() && t.history.allValid() && t.history.strictlyIncreasing() {
		trend = 1
	}
	bin := balanceBin(t.Balance_)

	var action rlAction
	if t.RNG.Float64() < t.epsilon {
		action = rlAction(t.RNG.IntN(3))
	} else {
		action = t.bestAction(trend, bin)
	}

	t.pending = nil
	if action == rlBuy && t.job == jobBuy && lob.Asks.N > 0 {
		bestAsk := lob.Asks.Best
		if float64(bestAsk) < t.Balance_ {
			t.pending = &market.Order{Side: market.Bid, Price: bestAsk + 1}
		}
	} else if action == rlSell && t.job == jobSell && lob.Bids.N > 0 && t.hasPurchase {
		t.pending = &market.Order{Side: market.Ask, Price: t.lastPurchasePrice}
	}

	t.lastTrend, t.lastBin, t.lastAction, t.haveLastState = trend, bin, action, true
	t.updateProfitPerTime(tm)
}

func (t *RL) Bookkeep(tm float64, trade market.Trade) error {
	t.appendBlotter(BlotterEntry{Time: tm, Price: trade.Price, Qty: 1, Party1: trade.Party1, Party2: trade.Party2})

	var reward float64
	if t.pending != nil && t.pending.Side == market.Bid {
		t.Balance_ -= float64(trade.Price)
		reward = -float64(trade.Price)
		t.lastPurchasePrice = trade.Price
		t.hasPurchase = true
		t.job = jobSell
	} else {
		// compute the sell reward against the purchase price before
		// clearing it, so a completed round trip is never scored as zero
		prevPurchase := t.lastPurchasePrice
		hadPurchase := t.hasPurchase
		t.Balance_ += float64(trade.Price)
		if hadPurchase {
			reward = float64(trade.Price) - float64(prevPurchase)
		}
		t.hasPurchase = false
		t.job = jobBuy
	}
	t.nTrades++

	if t.haveLastState {
		nextBin := balanceBin(t.Balance_)
		nextBest := t.qTable[t.lastTrend][nextBin][t.bestAction(t.lastTrend, nextBin)]
		cur := t.qTable[t.lastTrend][t.lastBin][t.lastAction]
		t.qTable[t.lastTrend][t.lastBin][t.lastAction] = cur + t.lr*(reward+t.gamma*nextBest-cur)
		t.epsilon = t.epsilon * 0.999
		if t.epsilon < 0.1 {
			t.epsilon = 0.1
		}
	}

	t.pending = nil
	t.clearQuote()
	return nil
}

// ExportQTable serializes the agent's learned Q-values to a flat map
// keyed "trend,bin,action", so a sweep of sessions can warm-start a
// later population from a prior run's Q-table.
func (t *RL) ExportQTable() map[string]float64 {
	out := make(map[string]float64, 18)
	for trend := 0; trend < 2; trend++ {
		for bin := 0; bin < 3; bin++ {
			for a := 0; a < 3; a++ {
				out[fmt.Sprintf("%d,%d,%d", trend, bin, a)] = t.qTable[trend][bin][a]
			}
		}
	}
	return out
}

// ImportQTable restores a previously exported Q-table.
func (t *RL) ImportQTable(m map[string]float64) {
	for trend := 0; trend < 2; trend++ {
		for bin := 0; bin < 3; bin++ {
			for a := 0; a < 3; a++ {
				if v, ok := m[fmt.Sprintf("%d,%d,%d", trend, bin, a)]; ok {
					t.qTable[trend][bin][a] = v
				}
			}
		}
	}
}
