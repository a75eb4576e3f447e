package profiler

import (
	"context"
	"testing"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/store"
)

func TestComputePeakHoursFallsBackToDefaultWithNoSignal(t *testing.T) {
	hours := computePeakHours(nil, nil, nil)
	if len(hours) != len(DefaultPeakHours) {
		t.Fatalf("expected default peak hours, got %v", hours)
	}
}

func TestComputeEstimationBiasWeightsRatios(t *testing.T) {
	completions := []TaskCompletionRecord{
		{ActualMinutes: 20, EstimatedMinutes: 10},
		{ActualMinutes: 10, EstimatedMinutes: 10},
	}
	bias := computeEstimationBias(completions)
	if bias <= 1.0 {
		t.Fatalf("expected estimation bias above 1.0 given slower-than-estimated ratios, got %f", bias)
	}
}

func TestComputeDriftDirectionDetectsEveningFade(t *testing.T) {
	goals := []DailyGoalEntry{
		{Tasks: []TaskEntry{{Completed: true}, {Completed: true}, {Completed: true}, {Completed: false}}},
		{Tasks: []TaskEntry{{Completed: true}, {Completed: true}, {Completed: false}, {Completed: false}}},
	}
	if got := computeDriftDirection(goals); got != domain.DriftEveningFade {
		t.Fatalf("expected evening_fade, got %s", got)
	}
}

func TestComputeAutomationComfortAdjustsByOutcome(t *testing.T) {
	comfort := computeAutomationComfort([]DelegationOutcome{
		{TaskType: "email", Outcome: "rejected"},
	})
	if comfort["email"] >= DefaultAutomationComfort["email"] {
		t.Fatalf("expected rejected outcome to lower email comfort, got %f", comfort["email"])
	}
}

func TestSignalNormalizeIsExclusiveAtMidpoint(t *testing.T) {
	out := signalNormalize(map[string]float64{"x": 0.5}, 8.0)
	if out["x"] != 0.5 {
		t.Fatalf("expected sigmoid(0.5) == 0.5, got %f", out["x"])
	}
}

func TestClassifyDefaultsToAtRiskWithNoData(t *testing.T) {
	c := Classify(nil, ReflectionData{})
	if c.Archetype != domain.ArchetypeAtRisk {
		t.Fatalf("expected at_risk default archetype, got %s", c.Archetype)
	}
}

func TestClassifyCompoundingBuilderRequiresEliteExecutionAndGrowth(t *testing.T) {
	goals := make([]DailyGoalEntry, 0, 10)
	for i := 0; i < 10; i++ {
		// High completion that climbs halfway through: strong execution
		// plus a positive first-half/second-half growth slope.
		rate := 0.85
		if i >= 5 {
			rate = 0.98
		}
		goals = append(goals, DailyGoalEntry{
			CompletionRate: rate,
			TotalTasks:     5,
			CompletedCount: 4,
		})
	}
	c := Classify(goals, ReflectionData{SelfAwarenessScore: 0.95})
	if c.Archetype != domain.ArchetypeCompoundingBuilder {
		t.Fatalf("expected compounding_builder for high, rising completion, got %s (exec=%f growth=%f)", c.Archetype, c.ExecutionComposite, c.GrowthComposite)
	}
}

func TestAnalyzeSentimentTrendDetectsImproving(t *testing.T) {
	texts := []string{"stuck and frustrated", "a bit distracted", "making great progress and proud", "shipped a milestone, excited"}
	trend := AnalyzeSentimentTrend(texts)
	if trend.Trend != "improving" {
		t.Fatalf("expected improving trend, got %s", trend.Trend)
	}
}

func TestTemporalTrackerDetectsDriftAboveThreshold(t *testing.T) {
	tr := &TemporalTracker{}
	tr.AddSnapshot("2026-07-29", domain.ProfileAxes{Execution: 0.5, Growth: 0.5})
	tr.AddSnapshot("2026-07-30", domain.ProfileAxes{Execution: 0.9, Growth: 0.5})

	drift := tr.DetectDrift()
	if drift == nil {
		t.Fatal("expected drift detected")
	}
	if len(drift.ChangedFields) != 1 || drift.ChangedFields[0] != "execution" {
		t.Fatalf("expected only execution to have drifted, got %+v", drift.ChangedFields)
	}
}

func TestTemporalTrackerNoDriftBelowThreshold(t *testing.T) {
	tr := &TemporalTracker{}
	tr.AddSnapshot("2026-07-29", domain.ProfileAxes{Execution: 0.5})
	tr.AddSnapshot("2026-07-30", domain.ProfileAxes{Execution: 0.55})
	if drift := tr.DetectDrift(); drift != nil {
		t.Fatalf("expected no drift for small change, got %+v", drift)
	}
}

func TestEngineBuildFullProfilePersistsTracker(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	e := NewEngine(ctx, kv)

	result, err := e.BuildFullProfile(ctx, nil, nil, nil, ReflectionData{}, nil)
	if err != nil {
		t.Fatalf("BuildFullProfile: %v", err)
	}
	if result.Profile.Archetype != domain.ArchetypeAtRisk {
		t.Fatalf("expected default archetype at_risk with no data, got %s", result.Profile.Archetype)
	}

	persisted, found, err := kv.Get(ctx, store.ProfilerTemporalTrackerKey)
	if err != nil || !found || persisted == "" {
		t.Fatalf("expected tracker snapshot persisted, found=%v err=%v", found, err)
	}
}
