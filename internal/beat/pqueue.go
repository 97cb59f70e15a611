package beat

import "container/heap"

// entryHeap is a container/heap due-time priority queue ordered by
// DueAt, with priority (spec.md §3, 10 highest) breaking ties. Stdlib is
// used here deliberately — no example repo or ecosystem library ships a
// due-time heap with this spec's re-enable/soft-reset semantics; every
// other repo in the pack orders "next due" work with a database
// `ORDER BY` instead of an in-memory heap.
type entryHeap []*ScheduleEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if !h[i].DueAt.Equal(h[j].DueAt) {
		return h[i].DueAt.Before(h[j].DueAt)
	}
	return h[i].Priority > h[j].Priority
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*ScheduleEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// pqueue wraps entryHeap behind the narrow operations the scheduler needs.
type pqueue struct {
	h entryHeap
}

func newPQueue() *pqueue {
	q := &pqueue{h: entryHeap{}}
	heap.Init(&q.h)
	return q
}

func (q *pqueue) push(e *ScheduleEntry) {
	heap.Push(&q.h, e)
}

func (q *pqueue) peek() *ScheduleEntry {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

func (q *pqueue) pop() *ScheduleEntry {
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*ScheduleEntry)
}

func (q *pqueue) len() int { return len(q.h) }
