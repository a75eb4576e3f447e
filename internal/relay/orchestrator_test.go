package relay

import (
	"context"
	"testing"
	"time"

	"github.com/dayforge/dayforge/internal/buffer"
	"github.com/dayforge/dayforge/internal/delegation"
	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/energy"
	"github.com/dayforge/dayforge/internal/store"
	"github.com/dayforge/dayforge/internal/streaming"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "stub draft body", nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *buffer.Buffer, *ClientHub, store.KV) {
	t.Helper()
	kv := store.NewMemoryKV()
	buf := buffer.New(kv)
	mon := energy.New(kv)
	pub := streaming.NewKVPublisher(kv, "test")
	worker := delegation.New(kv, stubGenerator{}, pub, 100, 10)
	hub := NewClientHub(8, time.Minute)
	o := New(buf, mon, worker, hub, NewTimeline())
	return o, buf, hub, kv
}

func backlogTask(id string, mins, energyCost int, deadlineIn time.Duration) *domain.Task {
	now := time.Now()
	deadline := now.Add(deadlineIn)
	return &domain.Task{
		ID:            id,
		Title:         id,
		Priority:      domain.PriorityP2Normal,
		EnergyCost:    energyCost,
		CognitiveLoad: 2,
		EstimatedMins: mins,
		Deadline:      &deadline,
		TaskType:      "general",
		Status:        domain.StatusBacklog,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// drainEnvelopes empties the hub's queued broadcast envelopes, returning
// them in order. The hub's Run loop is intentionally not started so
// envelopes stay observable.
func drainEnvelopes(h *ClientHub) []Envelope {
	out := make([]Envelope, 0)
	for {
		select {
		case env := <-h.broadcast:
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestMeetingEndedEarlySwapsIn(t *testing.T) {
	o, buf, hub, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := buf.Put(ctx, backlogTask("short-1", 15, 1, 4*time.Hour)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	disruption := o.HandleContextChange(ctx, domain.ContextChangeEvent{
		EventType: domain.EventMeetingEndedEarly,
		Source:    "calendar",
		Timestamp: time.Now(),
		Metadata:  map[string]any{"freed_minutes": 20},
	})

	if disruption.Severity != domain.SeverityMinor {
		t.Fatalf("severity = %s, want minor", disruption.Severity)
	}
	if disruption.RecommendedAction != domain.ActionSwapIn {
		t.Fatalf("action = %s, want swap_in", disruption.RecommendedAction)
	}
	got, _ := buf.Get("short-1")
	if got.Status != domain.StatusActive {
		t.Fatalf("task status = %s, want active after swap-in", got.Status)
	}
	if o.Scheduler().TotalCount() != 1 {
		t.Fatalf("scheduler count = %d, want 1", o.Scheduler().TotalCount())
	}

	envelopes := drainEnvelopes(hub)
	types := make(map[string]bool)
	for _, env := range envelopes {
		types[env.Type] = true
	}
	for _, want := range []string{"calendar_update", "disruption_event", "updated_schedule"} {
		if !types[want] {
			t.Fatalf("missing %q envelope, got %v", want, types)
		}
	}
}

func TestZeroDeltaDisruptionIsIdempotent(t *testing.T) {
	o, buf, hub, _ := newTestOrchestrator(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		task := backlogTask(id, 20, 1, 6*time.Hour)
		task.Status = domain.StatusActive
		if err := buf.Put(ctx, task); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	event := domain.ContextChangeEvent{
		EventType: domain.EventTaskCompleted,
		Source:    "internal",
		Timestamp: time.Now(),
	}
	o.HandleContextChange(ctx, event)
	first := o.Scheduler().GetOrderedSchedule(5)
	o.HandleContextChange(ctx, event)
	second := o.Scheduler().GetOrderedSchedule(5)

	if len(first) != len(second) {
		t.Fatalf("schedule length changed: %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("order changed at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
	drainEnvelopes(hub)
}

func TestCriticalDisruptionReschedulesAll(t *testing.T) {
	o, buf, hub, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := buf.Put(ctx, backlogTask("backlog-1", 30, 1, 2*time.Hour)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	before := o.Scheduler()
	disruption := o.HandleContextChange(ctx, domain.ContextChangeEvent{
		EventType:       domain.EventScheduleConflict,
		Source:          "calendar",
		Timestamp:       time.Now(),
		AffectedTaskIDs: []string{"x1", "x2", "x3", "x4"},
		Metadata:        map[string]any{"lost_minutes": 45},
	})

	if disruption.Severity != domain.SeverityCritical {
		t.Fatalf("severity = %s, want critical (4 affected)", disruption.Severity)
	}
	if disruption.RecommendedAction != domain.ActionRescheduleAll {
		t.Fatalf("action = %s, want reschedule_all", disruption.RecommendedAction)
	}
	if o.Scheduler() == before {
		t.Fatal("reschedule_all should install a fresh STS instance")
	}
	got, _ := buf.Get("backlog-1")
	if got.Status != domain.StatusActive {
		t.Fatalf("plan_day should have activated backlog-1, status = %s", got.Status)
	}
	drainEnvelopes(hub)
}

func TestVoiceCommandStartAndComplete(t *testing.T) {
	o, buf, hub, _ := newTestOrchestrator(t)
	ctx := context.Background()

	task := backlogTask("vc-1", 20, 1, 4*time.Hour)
	task.Status = domain.StatusActive
	if err := buf.Put(ctx, task); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := o.HandleVoiceCommand(ctx, VoiceCommand{CommandType: "start_task", TaskID: "vc-1"}); err != nil {
		t.Fatalf("start_task: %v", err)
	}
	got, _ := buf.Get("vc-1")
	if got.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", got.Status)
	}

	if err := o.HandleVoiceCommand(ctx, VoiceCommand{CommandType: "complete_task", TaskID: "vc-1"}); err != nil {
		t.Fatalf("complete_task: %v", err)
	}
	got, _ = buf.Get("vc-1")
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}

	if err := o.HandleVoiceCommand(ctx, VoiceCommand{CommandType: "levitate"}); err == nil {
		t.Fatal("unknown command should error")
	}
	if err := o.HandleVoiceCommand(ctx, VoiceCommand{CommandType: "start_task", TaskID: "ghost"}); err == nil {
		t.Fatal("missing task should error")
	}
	drainEnvelopes(hub)
}

func TestEnergyReportDrainsBackgroundQueue(t *testing.T) {
	o, buf, hub, _ := newTestOrchestrator(t)
	ctx := context.Background()

	bg := backlogTask("bg-1", 5, 1, 8*time.Hour)
	bg.Priority = domain.PriorityP3Background
	bg.TaskType = "email_reply"
	bg.Status = domain.StatusActive
	if err := buf.Put(ctx, bg); err != nil {
		t.Fatalf("Put: %v", err)
	}
	o.Scheduler().Enqueue(bg)

	level, err := o.HandleEnergyReport(ctx, 1)
	if err != nil {
		t.Fatalf("HandleEnergyReport: %v", err)
	}
	if level.Level != 1 || level.Source != domain.EnergySourceUserReported {
		t.Fatalf("level = %+v, want user-reported 1", level)
	}
	if count := o.Scheduler().QueueCounts()[domain.PriorityP3Background.String()]; count != 0 {
		t.Fatalf("P3 queue should be drained, has %d", count)
	}
	got, _ := buf.Get("bg-1")
	if got.Status != domain.StatusDelegated {
		t.Fatalf("status = %s, want delegated", got.Status)
	}

	sawEnergyUpdate := false
	for _, env := range drainEnvelopes(hub) {
		if env.Type == "energy_update" {
			sawEnergyUpdate = true
		}
	}
	if !sawEnergyUpdate {
		t.Fatal("expected an energy_update envelope")
	}
}
