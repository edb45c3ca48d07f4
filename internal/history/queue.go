// Package history keeps per-channel rolling conversation state bounded by a
// token budget rather than a message count.
package history

import "sync"

// Entry pairs an item with its token cost at insertion time.
type Entry[T any] struct {
	Item T
	Cost int
}

// Queue is a FIFO of token-costed items bounded by a cumulative budget.
// Once the cumulative cost exceeds the budget, the oldest entries are
// evicted until the queue fits again. Safe for concurrent use.
type Queue[T any] struct {
	mu     sync.Mutex
	budget int
	size   int
	items  []Entry[T]
}

func NewQueue[T any](budget int) *Queue[T] {
	if budget < 0 {
		budget = 0
	}
	return &Queue[T]{budget: budget}
}

// Enqueue appends one item and then evicts oldest entries over budget.
func (q *Queue[T]) Enqueue(item T, cost int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, Entry[T]{Item: item, Cost: cost})
	q.size += cost
	q.evict()
}

// EnqueueAll appends a batch. Readers never observe a partial batch, and
// eviction runs once after the whole batch is in.
func (q *Queue[T]) EnqueueAll(entries []Entry[T]) {
	if len(entries) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range entries {
		q.items = append(q.items, e)
		q.size += e.Cost
	}
	q.evict()
}

// evict pops from the front while the queue is over budget. The newest entry
// is never evicted by its own insertion: a single entry costing more than
// the whole budget stays put until the next insertion's eviction pass
// removes it. This mirrors long-observed behavior and is relied upon by
// callers that treat a lone oversized turn as still worth answering.
func (q *Queue[T]) evict() {
	for q.size > q.budget && len(q.items) > 1 {
		q.size -= q.items[0].Cost
		var zero Entry[T]
		q.items[0] = zero
		q.items = q.items[1:]
	}
}

// Snapshot returns a point-in-time copy of the items, oldest first.
func (q *Queue[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, len(q.items))
	for i, e := range q.items {
		out[i] = e.Item
	}
	return out
}

// TokenSize is the cumulative cost of the held items.
func (q *Queue[T]) TokenSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *Queue[T]) Budget() int { return q.budget }

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
