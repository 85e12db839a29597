package orderbook

import (
	"testing"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
)

func order(tid string, side market.Side, price int, t float64, qid int64) market.Order {
	return market.Order{TraderID: tid, Side: side, Price: price, Time: t, QID: qid}
}

func TestAddDistinguishesAdditionFromOverwrite(t *testing.T) {
	h := NewHalf(market.Bid, 1)

	if res := h.Add(order("B00", market.Bid, 100, 0, 1)); res != market.Addition {
		t.Errorf("first add: expected Addition, got %v", res)
	}
	if res := h.Add(order("B00", market.Bid, 105, 1, 2)); res != market.Overwrite {
		t.Errorf("re-add from same trader: expected Overwrite, got %v", res)
	}
	if h.NOrders != 1 {
		t.Errorf("NOrders = %d, want 1 after overwrite", h.NOrders)
	}
	h.AssertInvariants()
}

func TestBestPriceIsMaxForBidMinForAsk(t *testing.T) {
	bids := NewHalf(market.Bid, 1)
	bids.Add(order("B00", market.Bid, 98, 0, 1))
	bids.Add(order("B01", market.Bid, 100, 1, 2))
	bids.Add(order("B02", market.Bid, 99, 2, 3))
	bids.AssertInvariants()
	if bids.BestPrice != 100 {
		t.Errorf("bid best price = %d, want 100", bids.BestPrice)
	}

	asks := NewHalf(market.Ask, 500)
	asks.Add(order("S00", market.Ask, 110, 0, 1))
	asks.Add(order("S01", market.Ask, 105, 1, 2))
	asks.Add(order("S02", market.Ask, 108, 2, 3))
	asks.AssertInvariants()
	if asks.BestPrice != 105 {
		t.Errorf("ask best price = %d, want 105", asks.BestPrice)
	}
}

func TestDeleteIsNoopOnUnknownTrader(t *testing.T) {
	h := NewHalf(market.Bid, 1)
	h.Add(order("B00", market.Bid, 100, 0, 1))
	h.Delete("ghost")
	h.AssertInvariants()
	if h.NOrders != 1 {
		t.Errorf("NOrders = %d, want 1 after no-op delete", h.NOrders)
	}
}

func TestDeleteEmptiesToZeroBestPrice(t *testing.T) {
	h := NewHalf(market.Bid, 1)
	h.Add(order("B00", market.Bid, 100, 0, 1))
	h.Delete("B00")
	h.AssertInvariants()
	if !h.Empty() {
		t.Fatal("expected half empty after deleting its only order")
	}
	if h.BestPrice != 0 {
		t.Errorf("best price after cancel-to-empty = %d, want 0", h.BestPrice)
	}
}

func TestDeleteBestAdvancesWithinSamePrice(t *testing.T) {
	h := NewHalf(market.Bid, 1)
	h.Add(order("B00", market.Bid, 100, 0, 1))
	h.Add(order("B01", market.Bid, 100, 1, 2))
	h.AssertInvariants()

	tid := h.DeleteBest()
	h.AssertInvariants()
	if tid != "B00" {
		t.Errorf("DeleteBest returned %q, want B00 (earlier arrival)", tid)
	}
	if h.NOrders != 1 {
		t.Errorf("NOrders = %d, want 1", h.NOrders)
	}
	if h.BestTID != "B01" {
		t.Errorf("best tid = %q, want B01", h.BestTID)
	}
}

func TestDeleteBestAdvancesAcrossPriceLevels(t *testing.T) {
	h := NewHalf(market.Bid, 1)
	h.Add(order("B00", market.Bid, 100, 0, 1))
	h.Add(order("B01", market.Bid, 90, 1, 2))
	h.AssertInvariants()

	h.DeleteBest() // removes the 100 level entirely
	h.AssertInvariants()
	if h.BestPrice != 90 {
		t.Errorf("best price after level exhausted = %d, want 90", h.BestPrice)
	}
}

func TestDeleteBestOnLastOrderLeavesBestAtWorst(t *testing.T) {
	h := NewHalf(market.Bid, 1)
	h.Add(order("B00", market.Bid, 100, 0, 1))
	h.DeleteBest()
	h.AssertInvariants()
	if !h.Empty() {
		t.Fatal("expected half empty after DeleteBest on its only order")
	}
	if h.BestPrice != h.Worst {
		t.Errorf("best price after trading away the last order = %d, want worst (%d)", h.BestPrice, h.Worst)
	}
}

func TestAnonymizeIsAscendingByPriceWithAggregateQty(t *testing.T) {
	h := NewHalf(market.Bid, 1)
	h.Add(order("B00", market.Bid, 100, 0, 1))
	h.Add(order("B01", market.Bid, 100, 1, 2))
	h.Add(order("B02", market.Bid, 90, 2, 3))

	lob := h.Anonymize()
	if len(lob) != 2 {
		t.Fatalf("expected 2 price levels, got %d", len(lob))
	}
	if lob[0] != [2]int{90, 1} {
		t.Errorf("level 0 = %v, want [90 1]", lob[0])
	}
	if lob[1] != [2]int{100, 2} {
		t.Errorf("level 1 = %v, want [100 2]", lob[1])
	}
}

func TestAnonymizeCachesUntilNextMutation(t *testing.T) {
	h := NewHalf(market.Bid, 1)
	h.Add(order("B00", market.Bid, 100, 0, 1))
	first := h.Anonymize()
	second := h.Anonymize()
	if &first[0] != &second[0] {
		t.Error("expected Anonymize to return the cached slice when nothing changed")
	}

	h.Add(order("B01", market.Bid, 101, 1, 2))
	third := h.Anonymize()
	if len(third) != 2 {
		t.Errorf("expected cache invalidation after Add, got %d levels", len(third))
	}
}

func TestSessionExtremeTracksAskHighWaterMark(t *testing.T) {
	h := NewHalf(market.Ask, 500)
	h.Add(order("S00", market.Ask, 120, 0, 1))
	h.Add(order("S01", market.Ask, 150, 1, 2))
	h.Add(order("S02", market.Ask, 110, 2, 3))
	if h.SessionExtreme != 150 {
		t.Errorf("session extreme = %d, want 150", h.SessionExtreme)
	}
	h.Delete("S01")
	if h.SessionExtreme != 150 {
		t.Errorf("session extreme after deleting the high trade = %d, want 150 (sticky)", h.SessionExtreme)
	}
}

func TestArrivalOrderWithinLevelIsTimeOrdered(t *testing.T) {
	h := NewHalf(market.Bid, 1)
	// Insert out of chronological order to confirm rebuild sorts by Time.
	h.Add(order("B01", market.Bid, 100, 2, 2))
	h.Add(order("B00", market.Bid, 100, 0, 1))
	h.Add(order("B02", market.Bid, 100, 1, 3))
	h.AssertInvariants()

	if h.BestTID != "B00" {
		t.Errorf("best tid = %q, want B00 (earliest arrival)", h.BestTID)
	}
	tid := h.DeleteBest()
	if tid != "B00" {
		t.Errorf("first DeleteBest = %q, want B00", tid)
	}
	tid = h.DeleteBest()
	if tid != "B02" {
		t.Errorf("second DeleteBest = %q, want B02", tid)
	}
}
