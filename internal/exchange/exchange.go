// Package exchange implements the matching engine: two orderbook halves,
// the trade tape, and the quote-id counter, per spec.md §4.2.
package exchange

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/orderbook"
	"github.com/dniure/BSE-IntelligentAgents/internal/simerr"
)

// Exchange owns both sides of the book and the chronological tape.
type Exchange struct {
	Bids *orderbook.Half
	Asks *orderbook.Half

	constants market.Constants
	tape      []market.TapeEvent
	quoteID   int64

	lastLOBString string
	onTapeEvent   func(market.TapeEvent)

	log     *zap.SugaredLogger
	trades  prometheus.Counter
	cancels prometheus.Counter
}

// OnTapeEvent registers a callback invoked synchronously for every trade
// and cancel event, in tape order, so the session driver can forward
// them to the tape sink without the exchange depending on package sinks.
func (e *Exchange) OnTapeEvent(f func(market.TapeEvent)) {
	e.onTapeEvent = f
}

// New creates an exchange with empty books, seeded with the Bid/Ask worst
// prices at the system extremes.
func New(c market.Constants, log *zap.SugaredLogger, trades, cancels prometheus.Counter) *Exchange {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Exchange{
		Bids:      orderbook.NewHalf(market.Bid, c.Pmin),
		Asks:      orderbook.NewHalf(market.Ask, c.Pmax),
		constants: c,
		log:       log,
		trades:    trades,
		cancels:   cancels,
	}
}

func (e *Exchange) half(side market.Side) *orderbook.Half {
	if side == market.Bid {
		return e.Bids
	}
	return e.Asks
}

// AddOrder assigns the next quote id and inserts order into the
// appropriate half. Returns the assigned id and whether this was a fresh
// addition or an overwrite of the trader's prior order.
func (e *Exchange) AddOrder(order market.Order) (int64, market.AddResult) {
	e.quoteID++
	order.QID = e.quoteID
	res := e.half(order.Side).Add(order)
	return order.QID, res
}

// DelOrder removes the trader's live order from the given side and
// records a Cancel event on the tape.
func (e *Exchange) DelOrder(t float64, side market.Side, traderID string) {
	o, ok := e.half(side).Order(traderID)
	if !ok {
		return // unknown tid: silent no-op, per spec.md §4.2
	}
	e.half(side).Delete(traderID)
	e.pushTape(market.TapeEvent{
		Kind: market.EventCancel,
		Cancel: &market.CancelEvent{
			Time: t, QID: o.QID, Side: side, Price: o.Price,
		},
	})
	if e.cancels != nil {
		e.cancels.Inc()
	}
}

// ProcessOrder adds order to the book, then attempts to cross it against
// the opposite side. Returns the resulting Trade, or nil if the order
// rested without crossing.
func (e *Exchange) ProcessOrder(t float64, order market.Order) (*market.Trade, error) {
	if order.Side != market.Bid && order.Side != market.Ask {
		return nil, simerr.Protocolf("exchange.ProcessOrder", "malformed order side %v", order.Side)
	}
	e.AddOrder(order)

	switch order.Side {
	case market.Bid:
		if e.Asks.Empty() || e.Bids.BestPrice < e.Asks.BestPrice {
			return nil, nil
		}
	case market.Ask:
		if e.Bids.Empty() || e.Asks.BestPrice > e.Bids.BestPrice {
			return nil, nil
		}
	}

	// Resting side sets the trade price (maker-price execution).
	var price int
	var makerTID, takerTID string
	if order.Side == market.Bid {
		price = e.Asks.BestPrice
		makerTID = e.Asks.DeleteBest()
		takerTID = e.Bids.DeleteBest()
	} else {
		price = e.Bids.BestPrice
		makerTID = e.Bids.DeleteBest()
		takerTID = e.Asks.DeleteBest()
	}

	trade := &market.Trade{Time: t, Price: price, Party1: makerTID, Party2: takerTID, Qty: 1}
	e.pushTape(market.TapeEvent{Kind: market.EventTrade, Trade: trade})
	if e.trades != nil {
		e.trades.Inc()
	}
	e.log.Debugw("trade", "time", t, "price", price, "maker", makerTID, "taker", takerTID)
	return trade, nil
}

func (e *Exchange) pushTape(ev market.TapeEvent) {
	e.tape = append(e.tape, ev)
	if len(e.tape) > e.constants.TapeLength {
		e.tape = e.tape[len(e.tape)-e.constants.TapeLength:]
	}
	if e.onTapeEvent != nil {
		e.onTapeEvent(ev)
	}
}

// Tape returns the current tape contents (most recent last).
func (e *Exchange) Tape() []market.TapeEvent {
	return e.tape
}

// PublishLOB returns the public snapshot of both sides, per spec.md's
// publish_lob. Callers decide whether the compact string form should be
// emitted to the LOB-frames sink (at most once per 10 simulated seconds,
// and only when it differs from the previous emission); LOBFrameString
// provides that compact form.
func (e *Exchange) PublishLOB(t float64) market.Snapshot {
	return market.Snapshot{
		Time: t,
		Bids: market.BookSnapshotSide{
			Best: e.Bids.BestPrice, Worst: e.Bids.Worst,
			N: e.Bids.NOrders, LOB: e.Bids.Anonymize(),
		},
		Asks: market.BookSnapshotSide{
			Best: e.Asks.BestPrice, Worst: e.Asks.Worst,
			N: e.Asks.NOrders, LOB: e.Asks.Anonymize(),
		},
		SessHi:   e.Asks.SessionExtreme,
		QID:      e.quoteID,
		LastTape: e.tape,
	}
}

// LOBFrameString renders the compact comma-separated form from spec.md
// §6's LOB-frames CSV, and reports whether it differs from the last call
// (so the caller can suppress duplicate frames).
func (e *Exchange) LOBFrameString(snap market.Snapshot) (line string, changed bool) {
	line = fmt.Sprintf("%.3f, Bid:, %d, ", snap.Time, snap.Bids.N)
	for _, pq := range snap.Bids.LOB {
		line += fmt.Sprintf("%d, %d, ", pq[0], pq[1])
	}
	line += fmt.Sprintf("Ask:, %d, ", snap.Asks.N)
	for _, pq := range snap.Asks.LOB {
		line += fmt.Sprintf("%d, %d, ", pq[0], pq[1])
	}
	changed = line != e.lastLOBString
	e.lastLOBString = line
	return line, changed
}

// QuoteID returns the current monotonic quote-id counter value.
func (e *Exchange) QuoteID() int64 {
	return e.quoteID
}
