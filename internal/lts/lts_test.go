package lts

import (
	"context"
	"testing"
	"time"

	"github.com/dayforge/dayforge/internal/buffer"
	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/store"
	"github.com/dayforge/dayforge/internal/sts"
)

func newTestBuffer() *buffer.Buffer {
	return buffer.New(store.NewMemoryKV())
}

func deadlineIn(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}

func TestPlanDaySelectsWithinBudget(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer()
	buf.Put(ctx, &domain.Task{ID: "short", Title: "short", Priority: domain.PriorityP1Important, EstimatedMins: 30, Status: domain.StatusBacklog})
	buf.Put(ctx, &domain.Task{ID: "long", Title: "long", Priority: domain.PriorityP2Normal, EstimatedMins: 300, Status: domain.StatusBacklog})

	selected, schedule, decision := PlanDay(ctx, buf, 1, nil, 1.0)
	if len(selected) != 1 || selected[0].ID != "short" {
		t.Fatalf("expected only the short task to fit a 1-hour budget, got %+v", selected)
	}
	if decision.SelectedCount != 1 {
		t.Fatalf("expected decision to record 1 selected task, got %d", decision.SelectedCount)
	}
	if schedule.TotalCount() != 1 {
		t.Fatalf("expected scheduler to hold 1 task, got %d", schedule.TotalCount())
	}
}

func TestPlanDayContinuesPastOverflow(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer()
	// Higher-scoring task is too big to fit; a smaller lower-scoring task
	// should still be packed in behind it rather than the bin-pack stopping.
	buf.Put(ctx, &domain.Task{ID: "big", Title: "big", Priority: domain.PriorityP0Urgent, EstimatedMins: 120, Status: domain.StatusBacklog})
	buf.Put(ctx, &domain.Task{ID: "small", Title: "small", Priority: domain.PriorityP3Background, EstimatedMins: 20, Status: domain.StatusBacklog})

	selected, _, _ := PlanDay(ctx, buf, 1, nil, 1.0)
	found := false
	for _, s := range selected {
		if s.ID == "small" {
			found = true
		}
		if s.ID == "big" {
			t.Fatalf("big task should not fit a 60-minute budget")
		}
	}
	if !found {
		t.Fatalf("expected small task to still be packed after big overflowed, got %+v", selected)
	}
}

func TestPlanDayInflatesEstimateByBias(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer()
	buf.Put(ctx, &domain.Task{ID: "t", Title: "t", Priority: domain.PriorityP2Normal, EstimatedMins: 30, Status: domain.StatusBacklog})

	selected, _, _ := PlanDay(ctx, buf, 2, nil, 1.5)
	if len(selected) != 1 {
		t.Fatalf("expected the task selected, got %+v", selected)
	}
	if selected[0].EstimatedMins != 45 {
		t.Fatalf("expected estimate inflated to 45 mins, got %d", selected[0].EstimatedMins)
	}
}

func TestPlanDayMarksSelectedActive(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer()
	buf.Put(ctx, &domain.Task{ID: "t", Title: "t", Priority: domain.PriorityP1Important, EstimatedMins: 10, Status: domain.StatusBacklog})

	selected, _, _ := PlanDay(ctx, buf, 1, nil, 1.0)
	if len(selected) != 1 {
		t.Fatalf("expected one task selected")
	}
	stored, ok := buf.Get(selected[0].ID)
	if !ok || stored.Status != domain.StatusActive {
		t.Fatalf("expected task marked active in buffer, got %+v", stored)
	}
	if len(buf.ListBacklog()) != 0 {
		t.Fatalf("expected backlog empty after selection")
	}
}

func TestReplanRemainingReordersActiveSet(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer()
	buf.Put(ctx, &domain.Task{ID: "a", Title: "a", Priority: domain.PriorityP2Normal, EstimatedMins: 10, Status: domain.StatusActive})
	buf.Put(ctx, &domain.Task{ID: "b", Title: "b", Priority: domain.PriorityP0Urgent, EstimatedMins: 10, Status: domain.StatusActive, Deadline: deadlineIn(time.Hour)})

	s := sts.New()
	s.EnqueueBatch(buf.ListActive())
	active := ReplanRemaining(buf, s)
	if len(active) != 2 {
		t.Fatalf("expected 2 active tasks, got %d", len(active))
	}
}
