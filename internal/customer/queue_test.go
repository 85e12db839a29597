package customer

import (
	"testing"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
)

func TestQueueDrainDueReturnsInArrivalOrder(t *testing.T) {
	q := NewQueue()
	q.PushAll([]market.Assignment{
		{TraderID: "B2", Time: 5},
		{TraderID: "B0", Time: 1},
		{TraderID: "B1", Time: 3},
	})
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	due := q.DrainDue(4)
	if len(due) != 2 {
		t.Fatalf("expected 2 assignments due before t=4, got %d", len(due))
	}
	if due[0].TraderID != "B0" || due[1].TraderID != "B1" {
		t.Errorf("drain order = %s, %s; want B0, B1", due[0].TraderID, due[1].TraderID)
	}
	if q.Len() != 1 {
		t.Errorf("Len after drain = %d, want 1 remaining", q.Len())
	}
}

func TestQueueDrainDueIsStrictlyLessThanNow(t *testing.T) {
	q := NewQueue()
	q.Push(market.Assignment{TraderID: "B0", Time: 10})

	if due := q.DrainDue(10); len(due) != 0 {
		t.Errorf("expected nothing due exactly at arrival time (strict <), got %v", due)
	}
	if due := q.DrainDue(10.0001); len(due) != 1 {
		t.Errorf("expected the assignment due just after its arrival time, got %v", due)
	}
}

func TestQueueTiesBrokenByInsertionOrder(t *testing.T) {
	q := NewQueue()
	q.Push(market.Assignment{TraderID: "first", Time: 1})
	q.Push(market.Assignment{TraderID: "second", Time: 1})
	q.Push(market.Assignment{TraderID: "third", Time: 1})

	due := q.DrainDue(2)
	if len(due) != 3 {
		t.Fatalf("expected all 3 simultaneous assignments drained, got %d", len(due))
	}
	if due[0].TraderID != "first" || due[1].TraderID != "second" || due[2].TraderID != "third" {
		t.Errorf("tie-break order = %v, want insertion order", due)
	}
}

func TestQueueDrainDueOnEmptyQueue(t *testing.T) {
	q := NewQueue()
	if due := q.DrainDue(100); len(due) != 0 {
		t.Errorf("expected no assignments from an empty queue, got %v", due)
	}
}
