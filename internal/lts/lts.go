// Package lts implements the Long-Term Scheduler: the daily planner that
// scores backlog tasks and bin-packs them into today's active set,
// recording an audit decision per planning pass.
package lts

import (
	"context"
	"sort"
	"time"

	"github.com/dayforge/dayforge/internal/buffer"
	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/observability"
	"github.com/dayforge/dayforge/internal/sts"
)

// priorityScores is the fixed per-class lookup used in the composite score.
var priorityScores = map[domain.Priority]float64{
	domain.PriorityP0Urgent:     10,
	domain.PriorityP1Important:  7,
	domain.PriorityP2Normal:     4,
	domain.PriorityP3Background: 1,
}

// PlanDecision is the audit record of one plan_day pass.
type PlanDecision struct {
	Timestamp      time.Time `json:"timestamp"`
	BacklogSize    int       `json:"backlog_size"`
	SelectedCount  int       `json:"selected_count"`
	UsedMinutes    int       `json:"used_minutes"`
	AvailableMins  int       `json:"available_minutes"`
	EstimationBias float64   `json:"estimation_bias"`
}

func logPlanDecision(d PlanDecision) {
	observability.SchedulerDecisions.WithLabelValues("plan_day", "completed").Inc()
}

type scoredTask struct {
	task  *domain.Task
	score float64
}

// scoreTasks computes the 0.40/0.30/0.15/0.15 composite of deadline
// urgency, priority, peak alignment, and execution-time score.
func scoreTasks(tasks []*domain.Task, now time.Time, peakHours []int) []scoredTask {
	isPeak := false
	for _, h := range peakHours {
		if h == now.Hour() {
			isPeak = true
			break
		}
	}

	scored := make([]scoredTask, 0, len(tasks))
	for _, t := range tasks {
		urgency := t.DeadlineUrgency(now)
		priorityScore := priorityScores[t.Priority]
		if priorityScore == 0 && t.Priority != domain.PriorityP3Background {
			priorityScore = 4 // unspecified priority value defaults like P2
		}

		peakAlignment := 5.0
		if isPeak {
			switch {
			case t.CognitiveLoad >= 4:
				peakAlignment = 8.0
			case t.CognitiveLoad <= 2:
				peakAlignment = 3.0
			}
		}

		durationScore := t.ExecutionTimeScore()

		total := 0.40*urgency + 0.30*priorityScore + 0.15*peakAlignment + 0.15*durationScore
		scored = append(scored, scoredTask{task: t, score: total})
	}
	return scored
}

// PlanDay pulls all backlog tasks, inflates estimated_duration by
// estimationBias, scores and sorts descending, greedily bin-packs into
// availableHours*60 minutes (continuing past an overflowing candidate so
// smaller tasks further down the list can still fit), marks
// selected tasks active, and returns them alongside a freshly populated
// Scheduler.
func PlanDay(ctx context.Context, buf *buffer.Buffer, availableHours int, peakHours []int, estimationBias float64) ([]*domain.Task, *sts.Scheduler, PlanDecision) {
	start := time.Now()
	now := start

	backlog := buf.ListBacklog()
	decision := PlanDecision{
		Timestamp:      now,
		BacklogSize:    len(backlog),
		AvailableMins:  availableHours * 60,
		EstimationBias: estimationBias,
	}

	if len(backlog) == 0 {
		logPlanDecision(decision)
		observability.PlanDayDuration.Observe(time.Since(start).Seconds())
		return []*domain.Task{}, sts.New(), decision
	}

	for _, t := range backlog {
		inflated := int(float64(t.EstimatedMins) * estimationBias)
		if inflated < 1 {
			inflated = 1
		}
		t.EstimatedMins = inflated
	}

	scored := scoreTasks(backlog, now, peakHours)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		// Deterministic tie-break: shorter duration first, then id.
		if scored[i].task.EstimatedMins != scored[j].task.EstimatedMins {
			return scored[i].task.EstimatedMins < scored[j].task.EstimatedMins
		}
		return scored[i].task.ID < scored[j].task.ID
	})

	availableMinutes := availableHours * 60
	selected := make([]*domain.Task, 0)
	usedMinutes := 0

	for _, st := range scored {
		if usedMinutes+st.task.EstimatedMins > availableMinutes {
			continue // skip overflow, keep scanning for a smaller task that fits
		}
		selected = append(selected, st.task)
		usedMinutes += st.task.EstimatedMins
	}

	for _, t := range selected {
		t.Status = domain.StatusActive
		_ = buf.Put(ctx, t)
	}

	schedule := sts.New()
	schedule.EnqueueBatch(selected)

	decision.SelectedCount = len(selected)
	decision.UsedMinutes = usedMinutes
	logPlanDecision(decision)
	observability.PlanDayDuration.Observe(time.Since(start).Seconds())

	return selected, schedule, decision
}

// ReplanRemaining re-reads the active set from the buffer and reorders s's
// queues without changing backlog/active membership.
func ReplanRemaining(buf *buffer.Buffer, s *sts.Scheduler) []*domain.Task {
	active := buf.ListActive()
	s.Reorder(active)
	return active
}
