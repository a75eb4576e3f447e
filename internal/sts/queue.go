package sts

import (
	"container/heap"
	"sync"
	"time"

	"github.com/dayforge/dayforge/internal/domain"
)

// classHeap implements container/heap.Interface over a single priority
// class, ordered by deadline urgency recomputed at comparison time so
// ordering tracks the clock instead of a stale snapshot.
type classHeap []*domain.Task

func (h classHeap) Len() int { return len(h) }

func (h classHeap) Less(i, j int) bool {
	now := time.Now()
	ui, uj := h[i].DeadlineUrgency(now), h[j].DeadlineUrgency(now)
	if ui != uj {
		return ui > uj // higher urgency first
	}
	if h[i].EstimatedMins != h[j].EstimatedMins {
		return h[i].EstimatedMins < h[j].EstimatedMins
	}
	return h[i].ID < h[j].ID
}

func (h classHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *classHeap) Push(x interface{}) {
	*h = append(*h, x.(*domain.Task))
}

func (h *classHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// classQueue wraps classHeap with a mutex for safe concurrent access.
type classQueue struct {
	mu sync.Mutex
	h  classHeap
}

func newClassQueue() *classQueue {
	return &classQueue{h: make(classHeap, 0)}
}

func (q *classQueue) Push(t *domain.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.h, t)
}

func (q *classQueue) Pop() *domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*domain.Task)
}

// PopFitting pops entries until one with energyCost <= energyLevel is found,
// restoring the skipped entries, matching STS.dequeue's "scan, skip, restore"
// semantics.
func (q *classQueue) PopFitting(energyLevel int) *domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var skipped []*domain.Task
	var found *domain.Task
	for len(q.h) > 0 {
		t := heap.Pop(&q.h).(*domain.Task)
		if t.EnergyCost <= energyLevel {
			found = t
			break
		}
		skipped = append(skipped, t)
	}
	for _, t := range skipped {
		heap.Push(&q.h, t)
	}
	return found
}

func (q *classQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// DrainAll removes and returns every entry, in class order (repeated heap pops).
func (q *classQueue) DrainAll() []*domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.Task, 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, heap.Pop(&q.h).(*domain.Task))
	}
	return out
}

// Snapshot returns every entry sorted by class order, non-destructively.
func (q *classQueue) Snapshot() []*domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make(classHeap, len(q.h))
	copy(cp, q.h)
	heap.Init(&cp)
	out := make([]*domain.Task, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*domain.Task))
	}
	return out
}

func (q *classQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.h = make(classHeap, 0)
}
