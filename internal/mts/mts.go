// Package mts implements the Medium-Term Scheduler: stateless disruption-
// recovery operators over the Task Buffer and an STS handle, dispatching
// on the sign of the freed-minutes delta.
package mts

import (
	"context"
	"fmt"
	"time"

	"github.com/dayforge/dayforge/internal/buffer"
	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/sts"
)

// SwapResult is the outcome record of any MTS operation; these
// functions never error for business reasons; callers inspect this
// instead.
type SwapResult struct {
	SwappedIn  []*domain.Task
	SwappedOut []*domain.Task
	Delegated  []*domain.Task
	Summary    string
}

// HandleSwapIn pulls swap-in candidates from the buffer and activates as
// many as fit within freedMinutes, enqueueing each onto s.
func HandleSwapIn(ctx context.Context, buf *buffer.Buffer, freedMinutes, energyLevel int, peakHours []int, s *sts.Scheduler) SwapResult {
	now := time.Now()
	candidates := buf.FindSwapInCandidates(now, freedMinutes, energyLevel, peakHours)

	swappedIn := make([]*domain.Task, 0)
	remaining := freedMinutes

	for _, t := range candidates {
		if remaining < t.EstimatedMins {
			continue
		}
		t.Status = domain.StatusActive
		_ = buf.Put(ctx, t)
		if s != nil {
			s.Enqueue(t)
		}
		swappedIn = append(swappedIn, t)
		remaining -= t.EstimatedMins
		if remaining <= 0 {
			break
		}
	}

	return SwapResult{
		SwappedIn: swappedIn,
		Summary: fmt.Sprintf("swapped in %d tasks using %dmin of %dmin freed time",
			len(swappedIn), freedMinutes-remaining, freedMinutes),
	}
}

// HandleSwapOut selects swap-out candidates and marks each swapped_out; if
// energyLevel <= 2 it also auto-delegates the P3 queue and folds that into
// the result.
func HandleSwapOut(ctx context.Context, buf *buffer.Buffer, lostMinutes, energyLevel int, s *sts.Scheduler) SwapResult {
	now := time.Now()
	candidates := buf.FindSwapOutCandidates(now, lostMinutes)

	swappedOut := make([]*domain.Task, 0, len(candidates))
	for _, t := range candidates {
		t.Status = domain.StatusSwappedOut
		_ = buf.Put(ctx, t)
		swappedOut = append(swappedOut, t)
	}

	var delegated []*domain.Task
	if s != nil && energyLevel <= 2 {
		delegated = s.AutoDelegateBackground(energyLevel)
		for _, t := range delegated {
			_ = buf.Put(ctx, t)
		}
	}

	freed := 0
	for _, t := range swappedOut {
		freed += t.EstimatedMins
	}
	return SwapResult{
		SwappedOut: swappedOut,
		Delegated:  delegated,
		Summary: fmt.Sprintf("swapped out %d tasks freeing %dmin; delegated %d P3 tasks",
			len(swappedOut), freed, len(delegated)),
	}
}

// HandleDisruption dispatches on the sign of freedMinutes: positive is a
// swap-in opportunity, negative a swap-out need, zero a reorder of the
// current active set without moving anything between buffer and active.
func HandleDisruption(ctx context.Context, buf *buffer.Buffer, freedMinutes, energyLevel int, peakHours []int, s *sts.Scheduler) SwapResult {
	switch {
	case freedMinutes > 0:
		return HandleSwapIn(ctx, buf, freedMinutes, energyLevel, peakHours, s)
	case freedMinutes < 0:
		return HandleSwapOut(ctx, buf, -freedMinutes, energyLevel, s)
	default:
		if s != nil {
			s.Reorder(buf.ListActive())
		}
		return SwapResult{Summary: "no time change; reordered active schedule"}
	}
}

// HandlePreemption activates urgent and asks s to preempt the currently
// executing task, returning the preempted task (if any) in SwappedOut.
func HandlePreemption(ctx context.Context, buf *buffer.Buffer, urgent *domain.Task, energyLevel int, s *sts.Scheduler) SwapResult {
	urgent.Status = domain.StatusActive
	_ = buf.Put(ctx, urgent)

	var swappedOut []*domain.Task
	if s != nil {
		if preempted := s.Preempt(urgent, energyLevel); preempted != nil {
			swappedOut = append(swappedOut, preempted)
		}
	}

	return SwapResult{
		SwappedIn:  []*domain.Task{urgent},
		SwappedOut: swappedOut,
		Summary:    fmt.Sprintf("preempted for urgent task: %s", urgent.Title),
	}
}
