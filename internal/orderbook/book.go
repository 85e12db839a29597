// Package orderbook implements one side (Bid or Ask) of a price-time
// priority limit order book, per spec.md §4.1.
package orderbook

import (
	"sort"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
)

// arrivalEntry is one resting order at a price level, kept in arrival order.
type arrivalEntry struct {
	Time float64
	Qty  int
	TID  string
	QID  int64
}

// priceLevel is the aggregate state at one price.
type priceLevel struct {
	Price   int
	AggQty  int
	Arrival []arrivalEntry
}

// Half is one side of the order book: the set of live orders keyed by
// trader id (at most one per trader), the price-level ladder, and the
// best-price pointer, per spec.md's OrderbookHalf data model.
type Half struct {
	Side  market.Side
	Worst int // worst (extreme) price for this side, used for stub quotes

	orders map[string]market.Order // trader id -> their one live order
	lob    map[int]*priceLevel     // price -> aggregate level

	BestPrice int // 0 means none
	BestTID   string
	NOrders   int

	// SessionExtreme tracks the highest ask price seen this session
	// (spec.md §4.1: "For Ask side, updates session_extreme").
	SessionExtreme int

	lobAnon [][2]int // derived: ascending by price, rebuilt on demand
	dirty   bool
}

// NewHalf creates an empty orderbook half for the given side.
func NewHalf(side market.Side, worst int) *Half {
	return &Half{
		Side:           side,
		Worst:          worst,
		orders:         make(map[string]market.Order),
		lob:            make(map[int]*priceLevel),
		dirty:          true,
	}
}

// Add stores order under its trader id, overwriting any prior order from
// the same trader. Returns Addition if the trader had no live order,
// Overwrite otherwise. Rebuilds the price ladder and best-price pointer.
func (h *Half) Add(order market.Order) market.AddResult {
	_, existed := h.orders[order.TraderID]
	h.orders[order.TraderID] = order
	h.rebuild()
	if h.Side == market.Ask && order.Price > h.SessionExtreme {
		h.SessionExtreme = order.Price
	}
	if existed {
		return market.Overwrite
	}
	return market.Addition
}

// Delete removes the trader's live order, if any. Idempotent when the
// trader has no order resting (spec.md §4.2: deletion of an unknown tid
// is a silent no-op).
func (h *Half) Delete(traderID string) {
	if _, ok := h.orders[traderID]; !ok {
		return
	}
	delete(h.orders, traderID)
	h.rebuild()
}

// DeleteBest removes the time-priority head of the best price level and
// returns its trader id. If that was the last order at that price, the
// price entry is dropped and best_price advances (max for Bid, min for
// Ask); if the half is then empty, best_price is set to Worst rather than
// cleared, per spec.md §4.1. The caller must not call this on an empty
// half.
func (h *Half) DeleteBest() string {
	level := h.lob[h.BestPrice]
	head := level.Arrival[0]

	delete(h.orders, head.TID)
	h.NOrders--
	level.Arrival = level.Arrival[1:]
	level.AggQty--

	if len(level.Arrival) == 0 {
		delete(h.lob, h.BestPrice)
		if len(h.lob) == 0 {
			h.BestPrice = h.Worst
			h.BestTID = ""
		} else {
			h.recomputeBest()
		}
	} else {
		h.BestTID = level.Arrival[0].TID
	}
	h.dirty = true
	return head.TID
}

// rebuild regenerates the price ladder and best-price pointer from the
// current set of live orders, grouping by price in insertion order. This
// mirrors the reference implementation's "rebuild on every mutation"
// approach (spec.md §9 design note) rather than an incremental index.
func (h *Half) rebuild() {
	h.lob = make(map[int]*priceLevel)
	h.NOrders = len(h.orders)

	// Deterministic iteration: sort trader ids so arrival order within a
	// price level is defined by insertion time, not Go's map order.
	tids := make([]string, 0, len(h.orders))
	for tid := range h.orders {
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(i, j int) bool {
		oi, oj := h.orders[tids[i]], h.orders[tids[j]]
		if oi.Time != oj.Time {
			return oi.Time < oj.Time
		}
		return oi.QID < oj.QID
	})

	for _, tid := range tids {
		o := h.orders[tid]
		lvl, ok := h.lob[o.Price]
		if !ok {
			lvl = &priceLevel{Price: o.Price}
			h.lob[o.Price] = lvl
		}
		lvl.AggQty++
		lvl.Arrival = append(lvl.Arrival, arrivalEntry{Time: o.Time, Qty: 1, TID: tid, QID: o.QID})
	}

	h.recomputeBest()
	h.dirty = true
}

func (h *Half) recomputeBest() {
	if len(h.lob) == 0 {
		h.BestPrice = 0
		h.BestTID = ""
		return
	}
	var best int
	first := true
	for p := range h.lob {
		if first {
			best = p
			first = false
			continue
		}
		if h.Side == market.Bid && p > best {
			best = p
		}
		if h.Side == market.Ask && p < best {
			best = p
		}
	}
	h.BestPrice = best
	h.BestTID = h.lob[best].Arrival[0].TID
}

// Anonymize returns the ascending-by-price ladder of (price, aggregate
// qty) pairs, per spec.md's lob_anon.
func (h *Half) Anonymize() [][2]int {
	if !h.dirty {
		return h.lobAnon
	}
	prices := make([]int, 0, len(h.lob))
	for p := range h.lob {
		prices = append(prices, p)
	}
	sort.Ints(prices)
	out := make([][2]int, len(prices))
	for i, p := range prices {
		out[i] = [2]int{p, h.lob[p].AggQty}
	}
	h.lobAnon = out
	h.dirty = false
	return out
}

// Order returns the trader's live order, if any.
func (h *Half) Order(traderID string) (market.Order, bool) {
	o, ok := h.orders[traderID]
	return o, ok
}

// Empty reports whether the side has no live orders.
func (h *Half) Empty() bool {
	return h.NOrders == 0
}

// AssertInvariants checks spec.md §8's invariants 1-3 for this half.
// Panics on violation; intended for use in tests and debug builds.
func (h *Half) AssertInvariants() {
	if h.NOrders != len(h.orders) {
		panic("orderbook: NOrders out of sync with live order count")
	}
	sum := 0
	for _, lvl := range h.lob {
		sum += lvl.AggQty
	}
	if sum != h.NOrders {
		panic("orderbook: aggregate qty does not equal live order count")
	}
	if h.NOrders == 0 {
		// Two distinct empty states are both legal, per spec.md: Delete
		// (a cancellation) leaves best_price at 0/None, while DeleteBest
		// (the last resting order traded away) leaves it at Worst until
		// the next Add. Anything else is a bug.
		if h.BestPrice != 0 && h.BestPrice != h.Worst {
			panic("orderbook: empty half has a best price that is neither 0 nor worst")
		}
		return
	}
	for _, lvl := range h.lob {
		for i := 1; i < len(lvl.Arrival); i++ {
			if lvl.Arrival[i].Time < lvl.Arrival[i-1].Time {
				panic("orderbook: arrival list not time-ordered")
			}
		}
	}
	for p := range h.lob {
		if h.Side == market.Bid && p > h.BestPrice {
			panic("orderbook: bid best_price is not the maximum")
		}
		if h.Side == market.Ask && p < h.BestPrice {
			panic("orderbook: ask best_price is not the minimum")
		}
	}
}
