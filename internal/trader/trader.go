// Package trader implements the uniform trader contract from spec.md §4.3
// and its concrete strategies (§4.4-§4.7): fixed strategies (GVWY, ZIC,
// SHVR, SNPR, Noisy-ZIC), the PRZI family (PRZI, PRSH, PRDE), the ZIP
// family (ZIP, ZIPSH, ZIPDE), and the inventory-managing traders
// (PT1/PT2, TrendFollower, MeanReverter, tabular-Q RL).
//
// The base/strategy split follows internal/trader/agent.go's Agent/
// Strategy composition: common bookkeeping state lives in Base, and each
// concrete strategy is a small struct embedding Base and implementing
// Trader, per spec.md §9's "small interface with concrete implementors"
// design note.
package trader

import (
	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
	"github.com/dniure/BSE-IntelligentAgents/internal/simerr"
)

// Trader is the uniform contract every strategy implements, per spec.md
// §4.3.
type Trader interface {
	ID() string
	Type() string

	// Assign delivers a customer assignment. If the trader already has a
	// live quote, it returns LOBCancel so the driver removes it from the
	// exchange; otherwise Proceed.
	Assign(a market.Assignment) market.AssignResult

	// GetOrder produces the next quote, or (nil, false) to quote nothing
	// this tick. countdown is the fraction of the assignment's remaining
	// lifetime, in [0, 1], used by SNPR-family strategies.
	GetOrder(t, countdown float64, lob market.Snapshot) (*market.Order, bool)

	// Respond observes the latest public LOB and last trade; may update
	// internal adaptive state. Also recomputes ProfitPerTime.
	Respond(t float64, lob market.Snapshot, lastTrade *market.Trade)

	// Assignment returns the trader's current customer assignment, or
	// nil for an inventory-managed strategy between self-issued orders.
	// The session driver uses the assignment's Price as the limit for
	// CheckLimit (spec.md §4.9 step (e)); a nil assignment skips that
	// check, since self-issuing strategies have no exogenous limit.
	Assignment() *market.Assignment

	// Bookkeep records a fill: updates the blotter, balance, and trade
	// count, and clears the live assignment. Returns a Protocol
	// FatalError if profit is negative and this strategy does not
	// manage inventory (spec.md §7).
	Bookkeep(t float64, trade market.Trade) error

	Balance() float64
	NTrades() int
	Blotter() []BlotterEntry
	PPS() float64 // profit per simulated second, the meta-optimizer fitness

	// NetWorth returns the trader's balance plus the mark-to-market
	// value of any unit currently held, per spec.md §6's balances sink.
	// A strategy with no notion of holding inventory just returns its
	// balance.
	NetWorth() float64
}

// BlotterEntry is one bookkept trade, per spec.md's bounded blotter.
type BlotterEntry struct {
	Time   float64
	Price  int
	Qty    int
	Party1 string
	Party2 string
}

// Base is the common trader state composed into every concrete strategy:
// balance, bounded blotter, the single pending assignment/live quote,
// and profit accounting. InventoryManaged distinguishes PT1/PT2/
// TrendFollower/MeanReverter/RL (which self-issue assignments and may
// post negative-profit trades) from every other strategy, per spec.md
// §4.3's bookkeep invariant.
type Base struct {
	TID              string
	TTypeName        string
	Balance_         float64
	BirthTime        float64
	InventoryManaged bool

	Constants market.Constants
	RNG       *rng.Stream

	blotter []BlotterEntry

	assignment *market.Assignment
	lastQuote  *market.Order
	nTrades    int
	profitPerTime float64
	lastRespondTime float64

	NextQID int64
}

// NewBase constructs shared trader state.
func NewBase(id, ttype string, c market.Constants, stream *rng.Stream, birthTime float64, inventoryManaged bool) Base {
	return Base{
		TID:              id,
		TTypeName:        ttype,
		Constants:        c,
		RNG:              stream,
		BirthTime:        birthTime,
		InventoryManaged: inventoryManaged,
	}
}

func (b *Base) ID() string   { return b.TID }
func (b *Base) Type() string { return b.TTypeName }
func (b *Base) Balance() float64  { return b.Balance_ }
func (b *Base) NTrades() int      { return b.nTrades }
func (b *Base) PPS() float64      { return b.profitPerTime }

// NetWorth is the default implementation: strategies with no holding
// state are worth exactly their balance. Inventory-managed strategies
// that carry a unit between a buy and its matching sell override this.
func (b *Base) NetWorth() float64 { return b.Balance_ }

func (b *Base) Blotter() []BlotterEntry {
	out := make([]BlotterEntry, len(b.blotter))
	copy(out, b.blotter)
	return out
}

// HasAssignment reports whether the trader has a pending customer
// assignment to work.
func (b *Base) HasAssignment() bool {
	return b.assignment != nil
}

// Assignment returns the current assignment, or nil.
func (b *Base) Assignment() *market.Assignment {
	return b.assignment
}

// HasLiveQuote reports whether the trader has an order resting on the
// exchange.
func (b *Base) HasLiveQuote() bool {
	return b.lastQuote != nil
}

// LiveQuote returns the trader's resting order, or nil.
func (b *Base) LiveQuote() *market.Order {
	return b.lastQuote
}

// assign implements the shared half of the Trader.Assign contract: if a
// quote is already live, signal LOBCancel and clear it (the driver is
// responsible for actually removing it from the exchange); replace the
// internal assignment with the new one.
func (b *Base) assign(a market.Assignment) market.AssignResult {
	res := market.Proceed
	if b.lastQuote != nil {
		res = market.LOBCancel
		b.lastQuote = nil
	}
	b.assignment = &a
	return res
}

// setQuote records the order the strategy is about to submit as the
// trader's one live quote.
func (b *Base) setQuote(o *market.Order) {
	b.lastQuote = o
}

// clearQuote forgets the trader's live quote (called after it is filled
// or cancelled).
func (b *Base) clearQuote() {
	b.lastQuote = nil
}

// bookkeep implements the shared profit/balance/blotter update from
// spec.md §4.3. assignSide is the side of the assignment that was
// filled (== trade's side for this trader). Returns a Protocol
// FatalError if profit is negative and the strategy is not
// inventory-managed.
func (b *Base) bookkeep(t float64, trade market.Trade, assignPrice int, assignSide market.Side, counterpartyID string) (profit int, err error) {
	tradePrice := trade.Price
	if assignSide == market.Bid {
		profit = assignPrice - tradePrice
	} else {
		profit = tradePrice - assignPrice
	}

	if profit < 0 && !b.InventoryManaged {
		return profit, simerr.Protocolf("trader.Bookkeep",
			"trader %s (%s) realized negative profit %d on a non-inventory strategy", b.TID, b.TTypeName, profit)
	}

	b.Balance_ += float64(profit)
	b.nTrades++
	b.appendBlotter(BlotterEntry{Time: t, Price: tradePrice, Qty: 1, Party1: trade.Party1, Party2: trade.Party2})
	b.assignment = nil
	b.clearQuote()
	return profit, nil
}

func (b *Base) appendBlotter(e BlotterEntry) {
	b.blotter = append(b.blotter, e)
	if len(b.blotter) > b.Constants.BlotterLength {
		b.blotter = b.blotter[len(b.blotter)-b.Constants.BlotterLength:]
	}
}

// updateProfitPerTime recomputes profit-per-simulated-second from total
// balance and trader age, the fitness signal used by every
// meta-optimizer (spec.md's pps).
func (b *Base) updateProfitPerTime(t float64) {
	age := t - b.BirthTime
	if age <= 0 {
		b.profitPerTime = 0
		return
	}
	b.profitPerTime = b.Balance_ / age
}

// CheckLimit enforces spec.md §4.3/§7's protocol invariant: a Bid must
// quote at or below its assignment limit; an Ask at or above. Violation
// is fatal. Called by the session driver against every quote before it
// reaches the exchange (spec.md §4.9 step (e)).
func CheckLimit(side market.Side, price, limit int) error {
	if side == market.Bid && price > limit {
		return simerr.Protocolf("trader.CheckLimit", "bid price %d exceeds assignment limit %d", price, limit)
	}
	if side == market.Ask && price < limit {
		return simerr.Protocolf("trader.CheckLimit", "ask price %d below assignment limit %d", price, limit)
	}
	return nil
}
