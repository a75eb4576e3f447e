package relay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dayforge/dayforge/internal/buffer"
	"github.com/dayforge/dayforge/internal/classifier"
	"github.com/dayforge/dayforge/internal/delegation"
	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/energy"
	"github.com/dayforge/dayforge/internal/lts"
	"github.com/dayforge/dayforge/internal/mts"
	"github.com/dayforge/dayforge/internal/observability"
	"github.com/dayforge/dayforge/internal/sts"
)

// Orchestrator wires ContextChangeEvents -> Disruption Classifier ->
// MTS/LTS -> STS -> client broadcast. It carries no scheduling logic
// itself; every decision is delegated to the owning subsystem.
type Orchestrator struct {
	buf        *buffer.Buffer
	energyMon  *energy.Monitor
	delegation *delegation.Worker
	hub        *ClientHub
	timeline   *Timeline

	mu        sync.RWMutex
	scheduler *sts.Scheduler
	peakHours []int
	estBias   float64
}

// New constructs an Orchestrator over an already-populated buffer and a
// fresh STS instance.
func New(buf *buffer.Buffer, energyMon *energy.Monitor, worker *delegation.Worker, hub *ClientHub, timeline *Timeline) *Orchestrator {
	return &Orchestrator{
		buf:        buf,
		energyMon:  energyMon,
		delegation: worker,
		hub:        hub,
		timeline:   timeline,
		scheduler:  sts.New(),
		peakHours:  []int{9, 10, 14, 15},
		estBias:    1.2,
	}
}

// SetProfile installs the Profiler's learned peak hours and estimation
// bias, consumed by the next PlanDay / swap-in ranking.
func (o *Orchestrator) SetProfile(peakHours []int, estimationBias float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.peakHours = peakHours
	o.estBias = estimationBias
}

func (o *Orchestrator) snapshot() (*sts.Scheduler, []int, float64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scheduler, o.peakHours, o.estBias
}

func (o *Orchestrator) replaceScheduler(s *sts.Scheduler) {
	o.mu.Lock()
	o.scheduler = s
	o.mu.Unlock()
}

// Scheduler returns the currently active STS instance.
func (o *Orchestrator) Scheduler() *sts.Scheduler {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scheduler
}

// Profile returns the peak hours and estimation bias currently in effect.
func (o *Orchestrator) Profile() ([]int, float64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]int(nil), o.peakHours...), o.estBias
}

// Emit implements poller.Sink: every raw ContextChangeEvent from a poller
// is classified and dispatched, in arrival order per source.
func (o *Orchestrator) Emit(ctx context.Context, event domain.ContextChangeEvent) {
	o.HandleContextChange(ctx, event)
}

// HandleContextChange classifies event and drives the resulting
// DisruptionEvent through MTS/LTS, then broadcasts the resulting schedule.
// ContextChangeEvent -> DisruptionEvent -> schedule mutation -> broadcast
// is serialized per disruption.
func (o *Orchestrator) HandleContextChange(ctx context.Context, event domain.ContextChangeEvent) domain.DisruptionEvent {
	disruption := classifier.Classify(event)
	disruptionID := fmt.Sprintf("%s-%d", event.EventType, time.Now().UnixNano())

	o.timeline.Record(TimelineEvent{DisruptionID: disruptionID, Stage: "received", Metadata: map[string]string{"source": event.Source, "event_type": string(event.EventType)}})
	o.timeline.Record(TimelineEvent{DisruptionID: disruptionID, Stage: "classified", Metadata: disruptionSummary(disruption)})

	observability.DisruptionsTotal.WithLabelValues(string(disruption.Severity), string(disruption.RecommendedAction)).Inc()

	o.ApplyDisruption(ctx, disruption)
	o.timeline.Record(TimelineEvent{DisruptionID: disruptionID, Stage: "dispatched"})

	if event.Source == "calendar" {
		o.hub.Broadcast(NewEnvelope("calendar_update", event))
	}
	o.hub.Broadcast(NewEnvelope("disruption_event", disruption))
	o.BroadcastSchedule(ctx)
	o.timeline.Record(TimelineEvent{DisruptionID: disruptionID, Stage: "broadcast"})

	return disruption
}

// ApplyDisruption mutates the schedule according to disruption's
// recommended action, dispatching to LTS for a full reschedule or to MTS
// for a swap/delegate response.
func (o *Orchestrator) ApplyDisruption(ctx context.Context, disruption domain.DisruptionEvent) mts.SwapResult {
	level := o.energyMon.Current(ctx).Level
	scheduler, peakHours, estBias := o.snapshot()

	switch disruption.RecommendedAction {
	case domain.ActionRescheduleAll:
		availableHours := 8
		selected, fresh, _ := lts.PlanDay(ctx, o.buf, availableHours, peakHours, estBias)
		o.replaceScheduler(fresh)
		if delegated := fresh.AutoDelegateBackground(level); len(delegated) > 0 {
			o.dispatchDelegations(ctx, delegated)
		}
		return mts.SwapResult{SwappedIn: selected, Summary: "full reschedule via plan_day"}

	case domain.ActionDelegate:
		result := mts.HandleSwapOut(ctx, o.buf, absInt(disruption.FreedMinutes), level, scheduler)
		o.dispatchDelegations(ctx, result.Delegated)
		if task := o.firstAutomatable(disruption.AffectedTaskIDs); task != nil {
			o.delegateTask(ctx, task)
		}
		return result

	default:
		result := mts.HandleDisruption(ctx, o.buf, disruption.FreedMinutes, level, peakHours, scheduler)
		o.dispatchDelegations(ctx, result.Delegated)
		return result
	}
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	if n == 0 {
		return 15 // delegate path always needs a nonzero swap-out budget to pick candidates from
	}
	return n
}

func (o *Orchestrator) firstAutomatable(taskIDs []string) *domain.Task {
	for _, id := range taskIDs {
		if t, ok := o.buf.Get(id); ok && domain.AutomatableTaskTypes[t.TaskType] {
			return t
		}
	}
	return nil
}

func (o *Orchestrator) delegateTask(ctx context.Context, t *domain.Task) {
	t.Status = domain.StatusDelegated
	if err := o.buf.Put(ctx, t); err != nil {
		o.emitActivity(ctx, "mts", fmt.Sprintf("failed to mark task %s delegated: %v", t.ID, err), "warning")
		return
	}
	o.dispatchDelegations(ctx, []*domain.Task{t})
}

// dispatchDelegations hands each delegated task to the Delegation Worker,
// logging and continuing on failure.
func (o *Orchestrator) dispatchDelegations(ctx context.Context, tasks []*domain.Task) {
	for _, t := range tasks {
		task := t
		go func() {
			err := o.delegation.HandleDelegation(ctx, delegation.DelegationTask{
				TaskID:           task.ID,
				TaskType:         task.TaskType,
				Context:          map[string]string{"title": task.Title, "description": task.Description},
				ApprovalRequired: true,
				MaxCost:          0,
			})
			if err != nil {
				o.emitActivity(ctx, "ghost_worker", fmt.Sprintf("delegation failed for task %s: %v", task.ID, err), "ghostworker")
			}
		}()
	}
}

// HandleEnergyReport applies a user-reported energy level: record it,
// auto-delegate the P3 queue when the reported level is low, and broadcast
// the energy update plus the resulting schedule.
func (o *Orchestrator) HandleEnergyReport(ctx context.Context, level int) (domain.EnergyLevel, error) {
	if err := o.energyMon.RecordUserReported(ctx, level); err != nil {
		return domain.EnergyLevel{}, err
	}
	current := o.energyMon.Current(ctx)

	if delegated := o.Scheduler().AutoDelegateBackground(current.Level); len(delegated) > 0 {
		for _, t := range delegated {
			if err := o.buf.Put(ctx, t); err != nil {
				o.emitActivity(ctx, "sts", fmt.Sprintf("failed to persist delegated task %s: %v", t.ID, err), "warning")
			}
		}
		o.dispatchDelegations(ctx, delegated)
	}

	o.hub.Broadcast(NewEnvelope("energy_update", NewEnergyView(current)))
	o.BroadcastSchedule(ctx)
	return current, nil
}

// PlanDay runs the Long-Term Scheduler for availableHours and installs the
// resulting STS, for the POST schedule/plan-day endpoint.
func (o *Orchestrator) PlanDay(ctx context.Context, availableHours int) []*domain.Task {
	_, peakHours, estBias := o.snapshot()
	selected, fresh, _ := lts.PlanDay(ctx, o.buf, availableHours, peakHours, estBias)
	o.replaceScheduler(fresh)
	o.BroadcastSchedule(ctx)
	return selected
}

// HandlePreemption activates urgent and asks the current STS to preempt,
// broadcasting the result.
func (o *Orchestrator) HandlePreemption(ctx context.Context, urgent *domain.Task) *domain.Task {
	level := o.energyMon.Current(ctx).Level
	scheduler := o.Scheduler()
	result := mts.HandlePreemption(ctx, o.buf, urgent, level, scheduler)
	o.BroadcastSchedule(ctx)
	if len(result.SwappedOut) > 0 {
		return result.SwappedOut[0]
	}
	return nil
}

// BroadcastSchedule reads the Buffer and STS between mutations (never
// mid-mutation) and publishes a consistent `updated_schedule` snapshot.
func (o *Orchestrator) BroadcastSchedule(ctx context.Context) ScheduleSnapshot {
	now := time.Now()
	scheduler := o.Scheduler()
	level := o.energyMon.Current(ctx)

	ordered := scheduler.GetOrderedSchedule(level.Level)
	views := make([]TaskView, 0, len(ordered))
	for _, t := range ordered {
		views = append(views, NewTaskView(t, now))
	}

	snapshot := ScheduleSnapshot{
		Tasks:  views,
		Swaps:  []SwapOp{},
		Energy: NewEnergyView(level),
	}
	o.hub.Broadcast(NewEnvelope("updated_schedule", snapshot))
	return snapshot
}

// emitActivity surfaces a user-visible failure through `agent_activity`,
// never silently.
func (o *Orchestrator) emitActivity(ctx context.Context, agent, message, kind string) {
	log.Printf("relay: %s: %s", agent, message)
	o.hub.Broadcast(NewEnvelope("agent_activity", AgentActivity{Agent: agent, Message: message, Type: kind}))
}

// EmitActivity is the exported form used by REST handlers reporting a
// failure to connected clients without aborting the request.
func (o *Orchestrator) EmitActivity(ctx context.Context, agent, message, kind string) {
	o.emitActivity(ctx, agent, message, kind)
}

// HandleVoiceCommand applies an inbound voice_command payload: start_task
// marks the task in_progress via SetCurrent, complete_task marks it
// completed, snooze_reminder is acknowledged only (reminders are out of
// this orchestrator's scheduling scope).
func (o *Orchestrator) HandleVoiceCommand(ctx context.Context, cmd VoiceCommand) error {
	switch cmd.CommandType {
	case "start_task":
		t, ok := o.buf.Get(cmd.TaskID)
		if !ok {
			return domain.NewError(domain.ErrNotFound, "task not found: "+cmd.TaskID)
		}
		o.Scheduler().SetCurrent(t)
		if err := o.buf.Put(ctx, t); err != nil {
			return err
		}
	case "complete_task":
		t, ok := o.buf.Get(cmd.TaskID)
		if !ok {
			return domain.NewError(domain.ErrNotFound, "task not found: "+cmd.TaskID)
		}
		t.Status = domain.StatusCompleted
		if err := o.buf.Put(ctx, t); err != nil {
			return err
		}
		if err := o.energyMon.RecordCompletion(ctx, t.ID, t.EstimatedMins, t.EstimatedMins); err != nil {
			o.emitActivity(ctx, "energy_monitor", fmt.Sprintf("failed to record completion for %s: %v", t.ID, err), "warning")
		}
		o.Scheduler().ClearCurrent()
	case "snooze_reminder":
		// Reminders are generated outside the scheduling kernel; snoozing is
		// acknowledged here so the client gets a consistent response.
	default:
		return domain.NewError(domain.ErrInvalidInput, "unknown voice command: "+cmd.CommandType)
	}
	o.BroadcastSchedule(ctx)
	return nil
}

// Timeline exposes the bounded disruption ledger for the debug endpoint.
func (o *Orchestrator) Timeline() *Timeline { return o.timeline }
