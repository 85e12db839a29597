// Package market defines the core price/order primitives shared by the
// orderbook, exchange, customer generator, and trader strategy layers.
package market

import (
	"fmt"
	"strings"
)

// Side is the side of an order or a book half.
type Side int8

const (
	Bid Side = 1
	Ask Side = -1
)

func (s Side) String() string {
	if s == Bid {
		return "Bid"
	}
	return "Ask"
}

func (s Side) Opposite() Side {
	return -s
}

// MarshalJSON serializes Side as a human-readable string.
func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON deserializes Side from a string.
func (s *Side) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	switch str {
	case "Bid", "1":
		*s = Bid
	case "Ask", "-1":
		*s = Ask
	default:
		return fmt.Errorf("unknown Side: %s", str)
	}
	return nil
}

// EventKind distinguishes tape entries.
type EventKind int8

const (
	EventTrade EventKind = iota
	EventCancel
)

func (k EventKind) String() string {
	if k == EventTrade {
		return "Trd"
	}
	return "CAN"
}

// Constants holds the system-wide configurable constants from spec.md §6.
// Zero values are never used directly; callers must go through Defaults()
// or a loaded config.
type Constants struct {
	Pmin          int
	Pmax          int
	TickSize      int
	TapeLength    int
	BlotterLength int
}

// Defaults returns the spec.md §6 default system constants.
func Defaults() Constants {
	return Constants{
		Pmin:          1,
		Pmax:          500,
		TickSize:      1,
		TapeLength:    10000,
		BlotterLength: 100,
	}
}

// Clip clamps an integer price into [Pmin, Pmax].
func (c Constants) Clip(p int) int {
	if p < c.Pmin {
		return c.Pmin
	}
	if p > c.Pmax {
		return c.Pmax
	}
	return p
}

// Order is a live quote resting on, or being submitted to, the book.
// Quantity is always 1, per spec.md's Non-goals.
type Order struct {
	TraderID string
	Side     Side
	Price    int
	Time     float64
	QID      int64
}

// Trade is a tape entry recording a completed match.
type Trade struct {
	Time    float64
	Price   int
	Party1  string // maker (resting order's trader)
	Party2  string // taker (incoming order's trader)
	Qty     int
}

// CancelEvent is a tape entry recording a removed order.
type CancelEvent struct {
	Time  float64
	QID   int64
	Side  Side
	Price int
}

// TapeEvent is one entry in the exchange's bounded event tape.
type TapeEvent struct {
	Kind   EventKind
	Trade  *Trade
	Cancel *CancelEvent
}

// TimeValue returns the simulated time of the wrapped event.
func (e TapeEvent) TimeValue() float64 {
	if e.Kind == EventTrade {
		return e.Trade.Time
	}
	return e.Cancel.Time
}

// AddResult distinguishes a fresh insertion from an overwrite of a
// trader's existing order on add().
type AddResult int8

const (
	Addition AddResult = iota
	Overwrite
)

// AssignResult is returned by a trader's Assign to tell the session driver
// whether a previously live quote must be cancelled from the exchange.
type AssignResult int8

const (
	Proceed AssignResult = iota
	LOBCancel
)

// Assignment is the exogenous customer instruction delivered to a trader:
// "buy or sell at or better than this limit".
type Assignment struct {
	Side    Side
	Price   int // limit
	Time    float64
	TraderID string
}

// BookSnapshotSide is the anonymized ladder for one side of the book,
// as returned by PublishLOB.
type BookSnapshotSide struct {
	// Best is 0 when the side has never held an order, or has just been
	// emptied by a plain cancellation. It lingers at Worst, rather than
	// resetting, when the side was emptied by DeleteBest (its last
	// resting order just traded away) until the next Add, matching the
	// reference implementation's delete_best semantics.
	Best  int
	Worst int
	N     int
	LOB   [][2]int // ascending by price: [price, aggregate_qty]
}

// Snapshot is the public view of the book broadcast to every trader each
// tick, per spec.md §4.2 publish_lob.
type Snapshot struct {
	Time     float64
	Bids     BookSnapshotSide
	Asks     BookSnapshotSide
	SessHi   int // Asks.session_extreme
	QID      int64
	LastTape []TapeEvent
}

// LastTrade returns the most recent Trade on the tape, or nil.
func (s Snapshot) LastTrade() *Trade {
	for i := len(s.LastTape) - 1; i >= 0; i-- {
		if s.LastTape[i].Kind == EventTrade {
			return s.LastTape[i].Trade
		}
	}
	return nil
}
