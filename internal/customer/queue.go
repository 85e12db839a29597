package customer

import (
	"container/heap"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
)

// pendingHeap is a min-heap of pending assignments ordered by arrival
// time, then by a monotonic sequence number for deterministic tie-break.
// Adapted from the teacher's container/heap event scheduler
// (internal/engine/eventloop.go), repurposed from a generic event queue
// into a customer-order arrival queue.
type pendingHeap struct {
	items []pendingItem
}

type pendingItem struct {
	assignment market.Assignment
	seqNo      uint64
}

func (h pendingHeap) Len() int { return len(h.items) }
func (h pendingHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}
func (h pendingHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.assignment.Time != b.assignment.Time {
		return a.assignment.Time < b.assignment.Time
	}
	return a.seqNo < b.seqNo
}
func (h *pendingHeap) Push(x any) {
	h.items = append(h.items, x.(pendingItem))
}
func (h *pendingHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Queue holds customer assignments awaiting their arrival time, drained
// by the session driver as simulated time advances past each arrival,
// per spec.md §4.8 step 5.
type Queue struct {
	heap  pendingHeap
	seqNo uint64
}

// NewQueue creates an empty pending-assignment queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.heap)
	return q
}

// Push enqueues a single assignment.
func (q *Queue) Push(a market.Assignment) {
	q.seqNo++
	heap.Push(&q.heap, pendingItem{assignment: a, seqNo: q.seqNo})
}

// PushAll enqueues a batch of assignments.
func (q *Queue) PushAll(as []market.Assignment) {
	for _, a := range as {
		q.Push(a)
	}
}

// Len returns the number of assignments still pending.
func (q *Queue) Len() int { return q.heap.Len() }

// DrainDue pops and returns every assignment whose arrival time is
// strictly before now, in arrival order.
func (q *Queue) DrainDue(now float64) []market.Assignment {
	var due []market.Assignment
	for q.heap.Len() > 0 && q.heap.items[0].assignment.Time < now {
		item := heap.Pop(&q.heap).(pendingItem)
		due = append(due, item.assignment)
	}
	return due
}
