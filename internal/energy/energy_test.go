package energy

import (
	"context"
	"testing"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/store"
)

func TestComputeUserReportedOverridesTimeBased(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := New(kv)

	if err := m.RecordUserReported(ctx, 5); err != nil {
		t.Fatalf("RecordUserReported: %v", err)
	}
	level, err := m.Compute(ctx)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if level.Source != domain.EnergySourceUserReported {
		t.Fatalf("expected user_reported source, got %s", level.Source)
	}
	if level.Level != 5 {
		t.Fatalf("expected level 5, got %d", level.Level)
	}
	if level.Confidence < 0.85 || level.Confidence > 0.9 {
		t.Fatalf("expected fresh report confidence near 0.9, got %f", level.Confidence)
	}
}

func TestComputeClampsUserReportedOutOfRange(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := New(kv)
	m.RecordUserReported(ctx, 9)
	level, _ := m.Compute(ctx)
	if level.Level != 5 {
		t.Fatalf("expected clamp to 5, got %d", level.Level)
	}
}

func TestComputeFallsBackToTimeBasedWithoutReport(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := New(kv)
	level, err := m.Compute(ctx)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if level.Source != domain.EnergySourceTimeBased {
		t.Fatalf("expected time_based source absent any signal, got %s", level.Source)
	}
	if level.Confidence != 0.4 {
		t.Fatalf("expected baseline confidence 0.4, got %f", level.Confidence)
	}
}

func TestVelocityAdjustmentFastCompletionsRaiseEnergy(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := New(kv)

	for i := 0; i < 3; i++ {
		if err := m.RecordCompletion(ctx, "t", 5, 20); err != nil {
			t.Fatalf("RecordCompletion: %v", err)
		}
	}
	adj, count := m.velocityAdjustment(ctx)
	if count != 3 {
		t.Fatalf("expected 3 completions counted, got %d", count)
	}
	if adj != 1 {
		t.Fatalf("expected +1 adjustment for fast completions, got %d", adj)
	}
}

func TestCurrentFallsBackWhenNothingComputedYet(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := New(kv)
	level := m.Current(ctx)
	if level.Source != domain.EnergySourceFallback {
		t.Fatalf("expected fallback source before any Compute call, got %s", level.Source)
	}
}

func TestCurrentReturnsLastGoodAfterCompute(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := New(kv)
	computed, _ := m.Compute(ctx)
	current := m.Current(ctx)
	if current.Level != computed.Level || current.Source != computed.Source {
		t.Fatalf("expected Current to match last Compute, got %+v vs %+v", current, computed)
	}
}
