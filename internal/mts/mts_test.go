package mts

import (
	"context"
	"testing"
	"time"

	"github.com/dayforge/dayforge/internal/buffer"
	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/store"
	"github.com/dayforge/dayforge/internal/sts"
)

func mkTask(id string, status domain.TaskStatus, priority domain.Priority, mins, energy int) *domain.Task {
	return &domain.Task{
		ID:            id,
		Title:         id,
		Status:        status,
		Priority:      priority,
		EnergyCost:    energy,
		CognitiveLoad: 3,
		EstimatedMins: mins,
		TaskType:      "general",
		CreatedAt:     time.Now(),
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleSwapInActivatesWithinBudget(t *testing.T) {
	buf := buffer.New(store.NewMemoryKV())
	ctx := context.Background()
	must(t, buf.Put(ctx, mkTask("fits", domain.StatusBacklog, domain.PriorityP2Normal, 15, 2)))
	must(t, buf.Put(ctx, mkTask("too-long", domain.StatusBacklog, domain.PriorityP2Normal, 60, 2)))

	s := sts.New()
	result := HandleSwapIn(ctx, buf, 20, 3, []int{}, s)
	if len(result.SwappedIn) != 1 || result.SwappedIn[0].ID != "fits" {
		t.Fatalf("expected only 'fits' to swap in, got %+v", result.SwappedIn)
	}
	got, _ := buf.Get("fits")
	if got.Status != domain.StatusActive {
		t.Fatalf("expected swapped-in task to be active, got %s", got.Status)
	}
	if s.TotalCount() != 1 {
		t.Fatalf("expected swapped-in task enqueued onto scheduler, got %d", s.TotalCount())
	}
}

func TestHandleSwapOutDelegatesBackgroundWhenEnergyLow(t *testing.T) {
	buf := buffer.New(store.NewMemoryKV())
	ctx := context.Background()
	must(t, buf.Put(ctx, mkTask("active-1", domain.StatusActive, domain.PriorityP2Normal, 30, 2)))

	s := sts.New()
	s.Enqueue(mkTask("bg-1", domain.StatusBacklog, domain.PriorityP3Background, 10, 1))

	result := HandleSwapOut(ctx, buf, 30, 2, s)
	if len(result.SwappedOut) != 1 || result.SwappedOut[0].ID != "active-1" {
		t.Fatalf("expected active-1 swapped out, got %+v", result.SwappedOut)
	}
	if len(result.Delegated) != 1 || result.Delegated[0].ID != "bg-1" {
		t.Fatalf("expected bg-1 auto-delegated at low energy, got %+v", result.Delegated)
	}
}

func TestHandleSwapOutSkipsDelegationWhenEnergyHigh(t *testing.T) {
	buf := buffer.New(store.NewMemoryKV())
	ctx := context.Background()
	must(t, buf.Put(ctx, mkTask("active-1", domain.StatusActive, domain.PriorityP2Normal, 30, 2)))

	s := sts.New()
	s.Enqueue(mkTask("bg-1", domain.StatusBacklog, domain.PriorityP3Background, 10, 1))

	result := HandleSwapOut(ctx, buf, 30, 4, s)
	if len(result.Delegated) != 0 {
		t.Fatalf("expected no delegation at high energy, got %+v", result.Delegated)
	}
}

func TestHandleDisruptionDispatchesOnSign(t *testing.T) {
	buf := buffer.New(store.NewMemoryKV())
	ctx := context.Background()
	must(t, buf.Put(ctx, mkTask("in", domain.StatusBacklog, domain.PriorityP2Normal, 10, 2)))
	must(t, buf.Put(ctx, mkTask("out", domain.StatusActive, domain.PriorityP2Normal, 10, 2)))

	s := sts.New()
	in := HandleDisruption(ctx, buf, 15, 3, []int{}, s)
	if len(in.SwappedIn) != 1 {
		t.Fatalf("expected positive freed_minutes to swap in, got %+v", in)
	}

	out := HandleDisruption(ctx, buf, -15, 3, []int{}, s)
	if len(out.SwappedOut) != 2 {
		t.Fatalf("expected negative freed_minutes to swap out, got %+v", out)
	}

	zero := HandleDisruption(ctx, buf, 0, 3, []int{}, s)
	if zero.Summary == "" {
		t.Fatalf("expected zero freed_minutes to reorder without error")
	}
}

func TestHandlePreemptionInterruptsLowerPriorityCurrent(t *testing.T) {
	buf := buffer.New(store.NewMemoryKV())
	ctx := context.Background()
	s := sts.New()

	current := mkTask("current", domain.StatusActive, domain.PriorityP2Normal, 20, 2)
	s.SetCurrent(current)
	must(t, buf.Put(ctx, current))

	urgent := mkTask("urgent", domain.StatusBacklog, domain.PriorityP0Urgent, 10, 2)
	result := HandlePreemption(ctx, buf, urgent, 3, s)

	if len(result.SwappedOut) != 1 || result.SwappedOut[0].ID != "current" {
		t.Fatalf("expected 'current' preempted, got %+v", result.SwappedOut)
	}
	got, _ := buf.Get("urgent")
	if got.Status != domain.StatusActive {
		t.Fatalf("expected urgent task marked active, got %s", got.Status)
	}
}
