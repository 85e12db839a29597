package trader

import (
	"testing"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
)

func testConstants() market.Constants {
	return market.Constants{Pmin: 1, Pmax: 500, TickSize: 1, TapeLength: 100, BlotterLength: 3}
}

func TestCheckLimitEnforcesBidAndAskBounds(t *testing.T) {
	if err := CheckLimit(market.Bid, 95, 100); err != nil {
		t.Errorf("bid at or below limit should pass, got %v", err)
	}
	if err := CheckLimit(market.Bid, 101, 100); err == nil {
		t.Error("expected a bid above its limit to fail CheckLimit")
	}
	if err := CheckLimit(market.Ask, 105, 100); err != nil {
		t.Errorf("ask at or above limit should pass, got %v", err)
	}
	if err := CheckLimit(market.Ask, 99, 100); err == nil {
		t.Error("expected an ask below its limit to fail CheckLimit")
	}
}

func TestGVWYQuotesAtAssignmentLimit(t *testing.T) {
	tr := NewGVWY("B00", testConstants(), rng.New(1), 0)
	tr.Assign(market.Assignment{Side: market.Bid, Price: 120, Time: 0, TraderID: "B00"})

	o, ok := tr.GetOrder(1, 1, market.Snapshot{})
	if !ok || o == nil {
		t.Fatal("expected GVWY to quote when it has an assignment")
	}
	if o.Price != 120 {
		t.Errorf("price = %d, want assignment limit 120", o.Price)
	}
	if o.Side != market.Bid {
		t.Errorf("side = %v, want Bid", o.Side)
	}
}

func TestGVWYQuotesNothingWithoutAssignment(t *testing.T) {
	tr := NewGVWY("B00", testConstants(), rng.New(1), 0)
	if _, ok := tr.GetOrder(1, 1, market.Snapshot{}); ok {
		t.Error("expected no quote before any assignment is delivered")
	}
}

func TestAssignSignalsLOBCancelWhenQuoteAlreadyLive(t *testing.T) {
	tr := NewGVWY("B00", testConstants(), rng.New(1), 0)

	res := tr.Assign(market.Assignment{Side: market.Bid, Price: 100, Time: 0, TraderID: "B00"})
	if res != market.Proceed {
		t.Errorf("first assignment: expected Proceed, got %v", res)
	}
	tr.GetOrder(1, 1, market.Snapshot{})

	res = tr.Assign(market.Assignment{Side: market.Bid, Price: 110, Time: 2, TraderID: "B00"})
	if res != market.LOBCancel {
		t.Errorf("assignment while quote live: expected LOBCancel, got %v", res)
	}
	if tr.HasLiveQuote() {
		t.Error("expected the live quote to be cleared once LOBCancel is signalled")
	}
}

func TestBookkeepCreditsProfitAndClearsAssignment(t *testing.T) {
	tr := NewGVWY("B00", testConstants(), rng.New(1), 0)
	tr.Assign(market.Assignment{Side: market.Bid, Price: 120, Time: 0, TraderID: "B00"})
	tr.GetOrder(1, 1, market.Snapshot{})

	trade := market.Trade{Time: 2, Price: 100, Party1: "S00", Party2: "B00", Qty: 1}
	if err := tr.Bookkeep(2, trade); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Balance() != 20 {
		t.Errorf("balance = %v, want 20 (limit 120 - trade price 100)", tr.Balance())
	}
	if tr.NTrades() != 1 {
		t.Errorf("NTrades = %d, want 1", tr.NTrades())
	}
	if tr.HasAssignment() {
		t.Error("expected assignment cleared after Bookkeep")
	}
	if tr.HasLiveQuote() {
		t.Error("expected live quote cleared after Bookkeep")
	}
	blotter := tr.Blotter()
	if len(blotter) != 1 || blotter[0].Price != 100 {
		t.Errorf("blotter = %+v, want one entry at price 100", blotter)
	}
}

func TestBookkeepRejectsNegativeProfitForNonInventoryStrategy(t *testing.T) {
	tr := NewGVWY("B00", testConstants(), rng.New(1), 0)
	tr.Assign(market.Assignment{Side: market.Bid, Price: 100, Time: 0, TraderID: "B00"})
	tr.GetOrder(1, 1, market.Snapshot{})

	// A bid limit of 100 but a trade at 110 is a loss for a non-inventory
	// strategy and must be rejected as a protocol violation.
	trade := market.Trade{Time: 2, Price: 110, Party1: "S00", Party2: "B00", Qty: 1}
	if err := tr.Bookkeep(2, trade); err == nil {
		t.Fatal("expected an error for negative profit on a non-inventory strategy")
	}
}

func TestBlotterIsBoundedByBlotterLength(t *testing.T) {
	c := testConstants() // BlotterLength: 3
	tr := NewGVWY("B00", c, rng.New(1), 0)

	for i := 0; i < 5; i++ {
		tr.Assign(market.Assignment{Side: market.Bid, Price: 200, Time: float64(i), TraderID: "B00"})
		tr.GetOrder(float64(i), 1, market.Snapshot{})
		trade := market.Trade{Time: float64(i) + 0.5, Price: 100 + i, Party1: "S00", Party2: "B00", Qty: 1}
		if err := tr.Bookkeep(float64(i)+0.5, trade); err != nil {
			t.Fatalf("unexpected bookkeep error at i=%d: %v", i, err)
		}
	}
	blotter := tr.Blotter()
	if len(blotter) != 3 {
		t.Fatalf("blotter length = %d, want bounded at 3", len(blotter))
	}
	if blotter[len(blotter)-1].Price != 104 {
		t.Errorf("last blotter entry price = %d, want 104 (most recent fill)", blotter[len(blotter)-1].Price)
	}
}

func TestPPSIsZeroBeforeAnyAgeHasElapsed(t *testing.T) {
	tr := NewGVWY("B00", testConstants(), rng.New(1), 5)
	tr.Respond(5, market.Snapshot{}, nil)
	if tr.PPS() != 0 {
		t.Errorf("PPS at birth time = %v, want 0", tr.PPS())
	}
}

func TestPPSReflectsBalanceOverAge(t *testing.T) {
	tr := NewGVWY("B00", testConstants(), rng.New(1), 0)
	tr.Assign(market.Assignment{Side: market.Bid, Price: 120, Time: 0, TraderID: "B00"})
	tr.GetOrder(1, 1, market.Snapshot{})
	tr.Bookkeep(1, market.Trade{Time: 1, Price: 100, Party1: "S00", Party2: "B00", Qty: 1})

	tr.Respond(10, market.Snapshot{}, nil)
	if got, want := tr.PPS(), 20.0/10.0; got != want {
		t.Errorf("PPS = %v, want %v (balance 20 / age 10)", got, want)
	}
}

func TestZICQuotesWithinFeasibleInterval(t *testing.T) {
	tr := NewZIC("B00", testConstants(), rng.New(42), 0)
	tr.Assign(market.Assignment{Side: market.Bid, Price: 100, Time: 0, TraderID: "B00"})

	lob := market.Snapshot{Bids: market.BookSnapshotSide{Worst: 1}, Asks: market.BookSnapshotSide{Worst: 500}}
	for i := 0; i < 20; i++ {
		o, ok := tr.GetOrder(float64(i), 1, lob)
		if !ok {
			t.Fatal("expected ZIC to always quote while it has an assignment")
		}
		if o.Price < 1 || o.Price > 100 {
			t.Errorf("price %d outside feasible interval [1, 100]", o.Price)
		}
	}
}

func TestSHVRImprovesBestByOneTickClippedToLimit(t *testing.T) {
	tr := NewSHVR("B00", testConstants(), rng.New(1), 0)
	tr.Assign(market.Assignment{Side: market.Bid, Price: 105, Time: 0, TraderID: "B00"})

	lob := market.Snapshot{Bids: market.BookSnapshotSide{Best: 100, N: 1, Worst: 1}}
	o, ok := tr.GetOrder(1, 1, lob)
	if !ok {
		t.Fatal("expected SHVR to quote")
	}
	if o.Price != 101 {
		t.Errorf("price = %d, want best+1 = 101", o.Price)
	}

	// Best+1 would exceed the limit; must clip to the limit instead.
	lob.Bids.Best = 105
	o, _ = tr.GetOrder(2, 1, lob)
	if o.Price != 105 {
		t.Errorf("price = %d, want clipped to limit 105", o.Price)
	}
}

func TestSHVRPostsStubQuoteWhenSideEmpty(t *testing.T) {
	tr := NewSHVR("S00", testConstants(), rng.New(1), 0)
	tr.Assign(market.Assignment{Side: market.Ask, Price: 100, Time: 0, TraderID: "S00"})

	lob := market.Snapshot{Asks: market.BookSnapshotSide{N: 0, Worst: 500}}
	o, _ := tr.GetOrder(1, 1, lob)
	if o.Price != 500 {
		t.Errorf("price = %d, want the system-extreme stub 500", o.Price)
	}
}

func TestSNPRLurksUntilNearDeadline(t *testing.T) {
	tr := NewSNPR("B00", testConstants(), rng.New(1), 0)
	tr.Assign(market.Assignment{Side: market.Bid, Price: 120, Time: 0, TraderID: "B00"})

	if _, ok := tr.GetOrder(1, 0.5, market.Snapshot{}); ok {
		t.Error("expected SNPR to stay silent above the lurk threshold")
	}
	if _, ok := tr.GetOrder(1, 0.1, market.Snapshot{Bids: market.BookSnapshotSide{Worst: 1}}); !ok {
		t.Error("expected SNPR to quote once countdown drops below the lurk threshold")
	}
}

func TestSNPRNeverExceedsItsLimit(t *testing.T) {
	tr := NewSNPR("B00", testConstants(), rng.New(1), 0)
	tr.Assign(market.Assignment{Side: market.Bid, Price: 120, Time: 0, TraderID: "B00"})

	lob := market.Snapshot{Bids: market.BookSnapshotSide{Best: 119, N: 1, Worst: 1}}
	o, ok := tr.GetOrder(1, 0.01, lob)
	if !ok {
		t.Fatal("expected a quote near the deadline")
	}
	if o.Price > 120 {
		t.Errorf("price = %d, exceeds assignment limit 120", o.Price)
	}
}

func TestNoisyZICStaysWithinConstantsClip(t *testing.T) {
	tr := NewNoisyZIC("B00", testConstants(), rng.New(7), 0)
	tr.Assign(market.Assignment{Side: market.Bid, Price: 100, Time: 0, TraderID: "B00"})

	lob := market.Snapshot{Bids: market.BookSnapshotSide{Worst: 1}, Asks: market.BookSnapshotSide{Worst: 500}}
	for i := 0; i < 20; i++ {
		o, _ := tr.GetOrder(float64(i), 1, lob)
		if o.Price < 1 || o.Price > 500 {
			t.Errorf("price %d outside [Pmin, Pmax]", o.Price)
		}
	}
}

func TestOtherPartyReturnsCounterparty(t *testing.T) {
	trade := market.Trade{Party1: "A", Party2: "B"}
	if got := otherParty(trade, "A"); got != "B" {
		t.Errorf("otherParty(A) = %q, want B", got)
	}
	if got := otherParty(trade, "B"); got != "A" {
		t.Errorf("otherParty(B) = %q, want A", got)
	}
}
