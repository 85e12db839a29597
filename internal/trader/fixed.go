package trader

import (
	"math"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
)

// GVWY quotes at its own assignment limit, always, per spec.md §4.4.
type GVWY struct{ Base }

func NewGVWY(id string, c market.Constants, s *rng.Stream, birth float64) *GVWY {
	b := NewBase(id, "GVWY", c, s, birth, false)
	return &GVWY{Base: b}
}

func (t *GVWY) Assign(a market.Assignment) market.AssignResult { return t.assign(a) }

func (t *GVWY) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if !t.HasAssignment() {
		return nil, false
	}
	a := t.Assignment()
	o := &market.Order{TraderID: t.TID, Side: a.Side, Price: a.Price, Time: tm}
	t.setQuote(o)
	return o, true
}

func (t *GVWY) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	t.updateProfitPerTime(tm)
}

func (t *GVWY) Bookkeep(tm float64, trade market.Trade) error {
	a := t.Assignment()
	_, err := t.bookkeep(tm, trade, a.Price, a.Side, otherParty(trade, t.TID))
	return err
}

// ZIC draws a uniform-random price within the feasible interval bounded
// by the opposite side's worst price and its own limit, per spec.md §4.4
// ("after Gode & Sunder 1993" in the original implementation).
type ZIC struct{ Base }

func NewZIC(id string, c market.Constants, s *rng.Stream, birth float64) *ZIC {
	return &ZIC{Base: NewBase(id, "ZIC", c, s, birth, false)}
}

func (t *ZIC) Assign(a market.Assignment) market.AssignResult { return t.assign(a) }

func (t *ZIC) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if !t.HasAssignment() {
		return nil, false
	}
	a := t.Assignment()
	price := zicPrice(t.RNG, a.Side, a.Price, lob)
	o := &market.Order{TraderID: t.TID, Side: a.Side, Price: price, Time: tm}
	t.setQuote(o)
	return o, true
}

func zicPrice(s *rng.Stream, side market.Side, limit int, lob market.Snapshot) int {
	if side == market.Bid {
		return s.UniformInt(lob.Bids.Worst, limit)
	}
	return s.UniformInt(limit, lob.Asks.Worst)
}

func (t *ZIC) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	t.updateProfitPerTime(tm)
}

func (t *ZIC) Bookkeep(tm float64, trade market.Trade) error {
	a := t.Assignment()
	_, err := t.bookkeep(tm, trade, a.Price, a.Side, otherParty(trade, t.TID))
	return err
}

// SHVR improves on the current best price by one tick, clipped to its
// own limit; if the side is empty it posts a stub quote at the system
// extreme, per spec.md §4.4.
type SHVR struct{ Base }

func NewSHVR(id string, c market.Constants, s *rng.Stream, birth float64) *SHVR {
	return &SHVR{Base: NewBase(id, "SHVR", c, s, birth, false)}
}

func (t *SHVR) Assign(a market.Assignment) market.AssignResult { return t.assign(a) }

// shvrPrice computes the SHVR quote, shared with SNPR and used by PRZI's
// interval construction (spec.md §4.5's p_shvr).
func shvrPrice(side market.Side, limit int, lob market.Snapshot) int {
	if side == market.Bid {
		if lob.Bids.N > 0 {
			p := lob.Bids.Best + 1
			if p > limit {
				p = limit
			}
			return p
		}
		return lob.Bids.Worst
	}
	if lob.Asks.N > 0 {
		p := lob.Asks.Best - 1
		if p < limit {
			p = limit
		}
		return p
	}
	return lob.Asks.Worst
}

func (t *SHVR) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if !t.HasAssignment() {
		return nil, false
	}
	a := t.Assignment()
	price := shvrPrice(a.Side, a.Price, lob)
	o := &market.Order{TraderID: t.TID, Side: a.Side, Price: price, Time: tm}
	t.setQuote(o)
	return o, true
}

func (t *SHVR) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	t.updateProfitPerTime(tm)
}

func (t *SHVR) Bookkeep(tm float64, trade market.Trade) error {
	a := t.Assignment()
	_, err := t.bookkeep(tm, trade, a.Price, a.Side, otherParty(trade, t.TID))
	return err
}

// SNPR ("sniper") lurks until countdown < 0.2 of the assignment's
// remaining lifetime, then shaves the best price by a growing amount as
// countdown approaches zero, per spec.md §4.4.
type SNPR struct{ Base }

const (
	snprLurkThreshold    = 0.2
	snprShaveGrowthRate  = 3.0
)

func NewSNPR(id string, c market.Constants, s *rng.Stream, birth float64) *SNPR {
	return &SNPR{Base: NewBase(id, "SNPR", c, s, birth, false)}
}

func (t *SNPR) Assign(a market.Assignment) market.AssignResult { return t.assign(a) }

func (t *SNPR) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if !t.HasAssignment() || countdown > snprLurkThreshold {
		return nil, false
	}
	a := t.Assignment()
	shave := int(1.0 / (0.01 + countdown/(snprShaveGrowthRate*snprLurkThreshold)))

	var price int
	if a.Side == market.Bid {
		if lob.Bids.N > 0 {
			price = lob.Bids.Best + shave
			if price > a.Price {
				price = a.Price
			}
		} else {
			price = lob.Bids.Worst
		}
	} else {
		if lob.Asks.N > 0 {
			price = lob.Asks.Best - shave
			if price < a.Price {
				price = a.Price
			}
		} else {
			price = lob.Asks.Worst
		}
	}
	o := &market.Order{TraderID: t.TID, Side: a.Side, Price: price, Time: tm}
	t.setQuote(o)
	return o, true
}

func (t *SNPR) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	t.updateProfitPerTime(tm)
}

func (t *SNPR) Bookkeep(tm float64, trade market.Trade) error {
	a := t.Assignment()
	_, err := t.bookkeep(tm, trade, a.Price, a.Side, otherParty(trade, t.TID))
	return err
}

// NoisyZIC quotes like ZIC, then perturbs the price with Gaussian noise
// proportional to the quote, per spec.md §4.4.
type NoisyZIC struct {
	Base
	Sigma float64 // noise_level; defaults to 0.05 as in the reference implementation
}

func NewNoisyZIC(id string, c market.Constants, s *rng.Stream, birth float64) *NoisyZIC {
	return &NoisyZIC{Base: NewBase(id, "NZIC", c, s, birth, false), Sigma: 0.05}
}

func (t *NoisyZIC) Assign(a market.Assignment) market.AssignResult { return t.assign(a) }

func (t *NoisyZIC) GetOrder(tm, countdown float64, lob market.Snapshot) (*market.Order, bool) {
	if !t.HasAssignment() {
		return nil, false
	}
	a := t.Assignment()
	price := float64(zicPrice(t.RNG, a.Side, a.Price, lob))
	price = math.Round(price + t.RNG.Gauss(0, t.Sigma*price))
	clipped := t.Constants.Clip(int(price))
	o := &market.Order{TraderID: t.TID, Side: a.Side, Price: clipped, Time: tm}
	t.setQuote(o)
	return o, true
}

func (t *NoisyZIC) Respond(tm float64, lob market.Snapshot, lastTrade *market.Trade) {
	t.updateProfitPerTime(tm)
}

func (t *NoisyZIC) Bookkeep(tm float64, trade market.Trade) error {
	a := t.Assignment()
	_, err := t.bookkeep(tm, trade, a.Price, a.Side, otherParty(trade, t.TID))
	return err
}

// otherParty returns the counterparty trader id from a completed Trade.
func otherParty(trade market.Trade, selfID string) string {
	if trade.Party1 == selfID {
		return trade.Party2
	}
	return trade.Party1
}
