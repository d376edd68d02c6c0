package statesync

import (
	"container/heap"
	"sync"

	syncErrors "github.com/frndly/statesync/errors"
)

// PriorityQueue orders pending operations by priority, highest first.
// Equal priorities drain in insertion order: every enqueue stamps a
// monotonically increasing sequence number that acts as the secondary
// sort key, so older low-priority work cannot be starved by newer items
// of the same priority.
type PriorityQueue struct {
	mu    sync.Mutex
	items opHeap
	seq   uint64
	max   int
}

// NewPriorityQueue creates a queue bounded at max items. A non-positive
// max falls back to DefaultMaxQueueSize.
func NewPriorityQueue(max int) *PriorityQueue {
	if max <= 0 {
		max = DefaultMaxQueueSize
	}
	return &PriorityQueue{max: max}
}

// Enqueue inserts the operation at its priority position. It returns a
// queue-full error once the bound is reached; callers decide whether to
// drop or surface it.
func (q *PriorityQueue) Enqueue(op *Operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() >= q.max {
		return syncErrors.NewQueueFullError(q.max)
	}
	q.seq++
	op.seq = q.seq
	heap.Push(&q.items, op)
	return nil
}

// Dequeue removes and returns the highest-priority operation, or nil when
// the queue is empty.
func (q *PriorityQueue) Dequeue() *Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*Operation)
}

// Len returns the number of queued operations.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Drain removes and returns all queued operations in priority order.
func (q *PriorityQueue) Drain() []*Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Operation, 0, q.items.Len())
	for q.items.Len() > 0 {
		out = append(out, heap.Pop(&q.items).(*Operation))
	}
	return out
}

// opHeap implements heap.Interface ordered by descending priority with
// ascending insertion sequence as the tiebreaker.
type opHeap []*Operation

func (h opHeap) Len() int { return len(h) }

func (h opHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h opHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *opHeap) Push(x any) { *h = append(*h, x.(*Operation)) }

func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
