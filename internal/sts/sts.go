// Package sts implements the Short-Term Scheduler: a four-class MLFQ
// with energy gating and preemption.
package sts

import (
	"sync"
	"time"

	"github.com/dayforge/dayforge/internal/domain"
)

// Scheduler is a modified MLFQ over the four priority classes.
// One instance is owned per active day/session; it is not safe to share
// across unrelated schedules.
type Scheduler struct {
	classes [4]*classQueue

	mu              sync.Mutex
	current         *domain.Task
	delegationQueue []*domain.Task
}

// New constructs an empty Scheduler.
func New() *Scheduler {
	s := &Scheduler{}
	for i := range s.classes {
		s.classes[i] = newClassQueue()
	}
	return s
}

// classifyPriority auto-classifies a task's priority when it still
// carries the default P2 and has a deadline set; explicitly set
// non-default priorities are respected.
func classifyPriority(t *domain.Task, now time.Time) domain.Priority {
	if t.Priority != domain.PriorityP2Normal {
		return t.Priority
	}
	if t.Deadline != nil {
		hours := t.Deadline.Sub(now).Hours()
		if hours <= 2 {
			return domain.PriorityP0Urgent
		}
		if hours <= 24 {
			return domain.PriorityP1Important
		}
		if t.CognitiveLoad <= 1 && t.EnergyCost <= 1 {
			return domain.PriorityP3Background
		}
	}
	return domain.PriorityP2Normal
}

// Enqueue classifies the task's priority and pushes it onto the matching class.
func (s *Scheduler) Enqueue(t *domain.Task) {
	t.Priority = classifyPriority(t, time.Now())
	s.classes[t.Priority].Push(t)
}

// EnqueueBatch enqueues every task in order.
func (s *Scheduler) EnqueueBatch(tasks []*domain.Task) {
	for _, t := range tasks {
		s.Enqueue(t)
	}
}

// Dequeue scans classes P0 through P3, popping the first task within a class
// whose energy_cost fits the budget; skipped entries are restored. Returns
// nil if nothing fits.
func (s *Scheduler) Dequeue(energyLevel int) *domain.Task {
	for _, q := range s.classes {
		if t := q.PopFitting(energyLevel); t != nil {
			return t
		}
	}
	return nil
}

// Preempt interrupts the current task for urgent if urgent's classified
// priority outranks the current task's; the interrupted task is re-enqueued
// and returned. Returns nil if no preemption occurred (current adopted or
// urgent simply enqueued).
func (s *Scheduler) Preempt(urgent *domain.Task, energyLevel int) *domain.Task {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == nil {
		s.mu.Lock()
		s.current = urgent
		s.mu.Unlock()
		return nil
	}

	urgentPriority := classifyPriority(urgent, time.Now())
	if urgentPriority < current.Priority {
		preempted := current
		preempted.Status = domain.StatusActive
		s.Enqueue(preempted)

		s.mu.Lock()
		s.current = urgent
		s.mu.Unlock()
		return preempted
	}

	s.Enqueue(urgent)
	return nil
}

// SetCurrent marks a task as currently executing.
func (s *Scheduler) SetCurrent(t *domain.Task) {
	t.Status = domain.StatusInProgress
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

// GetCurrent returns the currently executing task, or nil.
func (s *Scheduler) GetCurrent() *domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ClearCurrent drops the currently executing task reference.
func (s *Scheduler) ClearCurrent() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// AutoDelegateBackground drains the entire P3 queue to the delegation
// queue when energyLevel <= 2; a no-op above the threshold. Checked as a
// standing behavior on low-energy reports in addition to being a
// Disruption Classifier outcome.
func (s *Scheduler) AutoDelegateBackground(energyLevel int) []*domain.Task {
	if energyLevel > 2 {
		return nil
	}
	drained := s.classes[domain.PriorityP3Background].DrainAll()
	s.mu.Lock()
	for _, t := range drained {
		t.Status = domain.StatusDelegated
		s.delegationQueue = append(s.delegationQueue, t)
	}
	s.mu.Unlock()
	return drained
}

// GetDelegationQueue returns and clears the accumulated delegation queue.
func (s *Scheduler) GetDelegationQueue() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.delegationQueue
	s.delegationQueue = nil
	return out
}

// GetOrderedSchedule returns all queued tasks in execution order,
// non-destructively. Tasks above the energy budget are deferred to the end,
// preserving relative order among eligible tasks.
func (s *Scheduler) GetOrderedSchedule(energyLevel int) []*domain.Task {
	schedule := make([]*domain.Task, 0)
	deferred := make([]*domain.Task, 0)

	for _, q := range s.classes {
		for _, t := range q.Snapshot() {
			if t.EnergyCost <= energyLevel {
				schedule = append(schedule, t)
			} else {
				deferred = append(deferred, t)
			}
		}
	}
	return append(schedule, deferred...)
}

// Reorder clears and rebuilds all queues from tasks.
func (s *Scheduler) Reorder(tasks []*domain.Task) {
	for _, q := range s.classes {
		q.Clear()
	}
	s.EnqueueBatch(tasks)
}

// QueueCounts returns per-class sizes.
func (s *Scheduler) QueueCounts() map[string]int {
	return map[string]int{
		domain.PriorityP0Urgent.String():     s.classes[domain.PriorityP0Urgent].Len(),
		domain.PriorityP1Important.String():  s.classes[domain.PriorityP1Important].Len(),
		domain.PriorityP2Normal.String():     s.classes[domain.PriorityP2Normal].Len(),
		domain.PriorityP3Background.String(): s.classes[domain.PriorityP3Background].Len(),
	}
}

// TotalCount returns the number of tasks across all classes.
func (s *Scheduler) TotalCount() int {
	total := 0
	for _, q := range s.classes {
		total += q.Len()
	}
	return total
}
