// Package buffer implements the Task Buffer: the bucketed store of record
// truth for every Task plus the swap-candidate queries MTS/LTS depend on,
// mirrored into the KV substrate (internal/store) for durability across
// process restarts.
package buffer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/store"
)

// Buffer owns every Task record. STS/LTS/MTS hold only ids and look
// tasks up on demand.
type Buffer struct {
	mu sync.RWMutex

	tasks   map[string]*domain.Task
	buckets map[int]map[string]struct{}
	backlog map[string]struct{}
	active  map[string]struct{}

	kv store.KV
}

// New constructs an empty buffer backed by kv (may be store.NewMemoryKV()).
func New(kv store.KV) *Buffer {
	b := &Buffer{
		tasks:   make(map[string]*domain.Task),
		buckets: make(map[int]map[string]struct{}),
		backlog: make(map[string]struct{}),
		active:  make(map[string]struct{}),
		kv:      kv,
	}
	for i := 0; i < domain.BucketCount; i++ {
		b.buckets[i] = make(map[string]struct{})
	}
	return b
}

func statusIndexKeys(status domain.TaskStatus) (add, remove *string) {
	backlog, activeK := store.BacklogKey, store.ActiveKey
	switch status {
	case domain.StatusBacklog:
		return &backlog, &activeK
	case domain.StatusActive, domain.StatusInProgress:
		return &activeK, &backlog
	default:
		// Swapped-out, completed and delegated tasks live in neither index.
		return nil, nil
	}
}

// Put persists a task's fields, placing its id in the bucket set matching
// its recomputed bucket and in the status index (backlog or active),
// mutating both atomically with respect to external readers.
func (b *Buffer) Put(ctx context.Context, t *domain.Task) error {
	now := time.Now()
	newBucket := t.Bucket(now)
	t.UpdatedAt = now

	b.mu.Lock()
	prev, existed := b.tasks[t.ID]
	if existed {
		oldBucket := prev.Bucket(now)
		if oldBucket != newBucket {
			delete(b.buckets[oldBucket], t.ID)
		}
		b.removeFromStatusIndex(prev.Status, t.ID)
	}
	stored := t.Clone()
	b.tasks[t.ID] = stored
	b.buckets[newBucket][t.ID] = struct{}{}
	b.addToStatusIndex(t.Status, t.ID)
	b.mu.Unlock()

	return b.mirror(ctx, stored, newBucket)
}

func (b *Buffer) addToStatusIndex(status domain.TaskStatus, id string) {
	switch status {
	case domain.StatusBacklog:
		b.backlog[id] = struct{}{}
	case domain.StatusActive, domain.StatusInProgress:
		b.active[id] = struct{}{}
	}
}

func (b *Buffer) removeFromStatusIndex(status domain.TaskStatus, id string) {
	switch status {
	case domain.StatusBacklog:
		delete(b.backlog, id)
	case domain.StatusActive, domain.StatusInProgress:
		delete(b.active, id)
	}
}

func (b *Buffer) mirror(ctx context.Context, t *domain.Task, bucket int) error {
	fields := taskFields(t)
	if err := b.kv.HSet(ctx, store.TaskKey(t.ID), fields); err != nil {
		return fmt.Errorf("mirror task %s: %w", t.ID, err)
	}
	if err := b.kv.SAdd(ctx, store.BucketKey(bucket), t.ID); err != nil {
		return err
	}
	add, remove := statusIndexKeys(t.Status)
	if add != nil {
		if err := b.kv.SAdd(ctx, *add, t.ID); err != nil {
			return err
		}
	}
	if remove != nil {
		if err := b.kv.SRem(ctx, *remove, t.ID); err != nil {
			return err
		}
	}
	if add == nil && remove == nil {
		if err := b.kv.SRem(ctx, store.BacklogKey, t.ID); err != nil {
			return err
		}
		if err := b.kv.SRem(ctx, store.ActiveKey, t.ID); err != nil {
			return err
		}
	}
	return nil
}

func taskFields(t *domain.Task) map[string]string {
	deadline := ""
	if t.Deadline != nil {
		deadline = t.Deadline.Format(time.RFC3339)
	}
	preferredStart := ""
	if t.PreferredStart != nil {
		preferredStart = t.PreferredStart.Format(time.RFC3339)
	}
	return map[string]string{
		"id":                 t.ID,
		"title":              t.Title,
		"status":             string(t.Status),
		"priority":           strconv.Itoa(int(t.Priority)),
		"energy_cost":        strconv.Itoa(t.EnergyCost),
		"cognitive_load":     strconv.Itoa(t.CognitiveLoad),
		"estimated_duration": strconv.Itoa(t.EstimatedMins),
		"deadline":           deadline,
		"preferred_start":    preferredStart,
		"task_type":          t.TaskType,
		"updated_at":         t.UpdatedAt.Format(time.RFC3339),
	}
}

// Get returns a copy of the task, or (nil, false) if unknown.
func (b *Buffer) Get(id string) (*domain.Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Delete removes a task from every index.
func (b *Buffer) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	t, ok := b.tasks[id]
	if !ok {
		b.mu.Unlock()
		return domain.NewError(domain.ErrNotFound, "task not found: "+id)
	}
	bucket := t.Bucket(time.Now())
	delete(b.buckets[bucket], id)
	b.removeFromStatusIndex(t.Status, id)
	delete(b.tasks, id)
	b.mu.Unlock()

	if err := b.kv.Del(ctx, store.TaskKey(id)); err != nil {
		return err
	}
	if err := b.kv.SRem(ctx, store.BucketKey(bucket), id); err != nil {
		return err
	}
	if err := b.kv.SRem(ctx, store.BacklogKey, id); err != nil {
		return err
	}
	return b.kv.SRem(ctx, store.ActiveKey, id)
}

// ListBacklog returns every task whose status field is backlog, filtered to
// handle any stale index entries.
func (b *Buffer) ListBacklog() []*domain.Task {
	return b.listFiltered(domain.StatusBacklog)
}

// ListActive returns every task whose status is active or in_progress.
func (b *Buffer) ListActive() []*domain.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.Task, 0, len(b.active))
	for id := range b.active {
		if t, ok := b.tasks[id]; ok && (t.Status == domain.StatusActive || t.Status == domain.StatusInProgress) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (b *Buffer) listFiltered(status domain.TaskStatus) []*domain.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.Task, 0)
	for _, t := range b.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out
}

// FindSwapInCandidates scans every stored task, filters to
// status=backlog && estimated_duration <= availableMinutes && energy_cost <= energyLevel,
// and ranks by deadline urgency, except during a peak hour, when
// candidates re-rank by (cognitive_load desc, urgency desc) so heavy work
// surfaces while the user can take it.
func (b *Buffer) FindSwapInCandidates(now time.Time, availableMinutes, energyLevel int, peakHours []int) []*domain.Task {
	b.mu.RLock()
	candidates := make([]*domain.Task, 0)
	for _, t := range b.tasks {
		if t.Status != domain.StatusBacklog {
			continue
		}
		if t.EstimatedMins > availableMinutes || t.EnergyCost > energyLevel {
			continue
		}
		candidates = append(candidates, t.Clone())
	}
	b.mu.RUnlock()

	isPeak := containsHour(peakHours, now.Hour())

	sort.SliceStable(candidates, func(i, j int) bool {
		a, c := candidates[i], candidates[j]
		if isPeak {
			if a.CognitiveLoad != c.CognitiveLoad {
				return a.CognitiveLoad > c.CognitiveLoad
			}
			au, cu := a.DeadlineUrgency(now), c.DeadlineUrgency(now)
			if au != cu {
				return au > cu
			}
		} else {
			au, cu := a.DeadlineUrgency(now), c.DeadlineUrgency(now)
			if au != cu {
				return au > cu
			}
		}
		if a.EstimatedMins != c.EstimatedMins {
			return a.EstimatedMins < c.EstimatedMins
		}
		return a.ID < c.ID
	})
	return candidates
}

func containsHour(hours []int, h int) bool {
	for _, x := range hours {
		if x == h {
			return true
		}
	}
	return false
}

// FindSwapOutCandidates selects from active (excluding in_progress),
// sorted by (priority desc where P3>P2>P1>P0, deadline_urgency asc),
// accumulating the prefix until the sum of estimated durations reaches
// minutesNeeded, or the full eligible set if that's not enough.
func (b *Buffer) FindSwapOutCandidates(now time.Time, minutesNeeded int) []*domain.Task {
	b.mu.RLock()
	eligible := make([]*domain.Task, 0)
	for id := range b.active {
		t, ok := b.tasks[id]
		if !ok || t.Status != domain.StatusActive {
			continue // excludes in_progress
		}
		eligible = append(eligible, t.Clone())
	}
	b.mu.RUnlock()

	sort.SliceStable(eligible, func(i, j int) bool {
		a, c := eligible[i], eligible[j]
		if a.Priority != c.Priority {
			return a.Priority > c.Priority // P3 (3) before P0 (0)
		}
		return a.DeadlineUrgency(now) < c.DeadlineUrgency(now)
	})

	result := make([]*domain.Task, 0)
	freed := 0
	for _, t := range eligible {
		if freed >= minutesNeeded {
			break
		}
		result = append(result, t)
		freed += t.EstimatedMins
	}
	return result
}

// BucketDistribution reports how many task ids sit in each bucket, for the
// schedule-intelligence surface.
func (b *Buffer) BucketDistribution() map[int]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int]int, domain.BucketCount)
	for n, ids := range b.buckets {
		out[n] = len(ids)
	}
	return out
}
