// Package energy implements the Energy Monitor: the agent that infers a
// 1-5 energy level from user-reported overrides, circadian baseline, and
// task-completion velocity, serving the last good reading when the KV
// substrate is unreachable.
package energy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/observability"
	"github.com/dayforge/dayforge/internal/store"
)

// DefaultEnergyCurve is the canonical circadian baseline, index = hour of
// day.
var DefaultEnergyCurve = [24]int{
	1, 1, 1, 1, 1, 1,
	2, 3, 4, 4, 5, 4,
	3, 3, 4, 5, 4, 3,
	3, 2, 2, 2, 1, 1,
}

const (
	velocityWindow      = 2 * time.Hour
	userReportedDecay   = 2 * time.Hour
	inactivityThreshold = 30 * time.Minute
	maxCompletionsKept  = 200
)

// Monitor computes and caches the current EnergyLevel.
type Monitor struct {
	kv store.KV

	mu               sync.RWMutex
	curve            [24]int
	hasProfilerCurve bool
	lastGood         *domain.EnergyLevel
}

// New constructs a Monitor seeded with the default circadian curve.
func New(kv store.KV) *Monitor {
	return &Monitor{kv: kv, curve: DefaultEnergyCurve}
}

// SetProfilerCurve installs a learned energy curve from the Profiler,
// marking hasProfilerCurve so confidence tiers reflect the richer signal.
func (m *Monitor) SetProfilerCurve(curve [24]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curve = curve
	m.hasProfilerCurve = true
}

// RecordUserReported stores a direct user-reported energy level, valid for
// userReportedDecay before it falls back to inference.
func (m *Monitor) RecordUserReported(ctx context.Context, level int) error {
	now := time.Now()
	if err := m.kv.Set(ctx, store.EnergyUserReportedKey, strconv.Itoa(level), 0); err != nil {
		return err
	}
	if err := m.kv.Set(ctx, store.EnergyUserReportedTSKey, strconv.FormatInt(now.Unix(), 10), 0); err != nil {
		return err
	}
	_, err := m.Compute(ctx)
	return err
}

// RecordCompletion appends a task completion to the velocity window and
// recomputes.
func (m *Monitor) RecordCompletion(ctx context.Context, taskID string, actualMins, estimatedMins int) error {
	entry := fmt.Sprintf("%s:%d:%d:%d", taskID, actualMins, estimatedMins, time.Now().Unix())
	if err := m.kv.RPush(ctx, store.EnergyCompletionsKey, entry); err != nil {
		return err
	}
	if err := m.kv.LTrimFront(ctx, store.EnergyCompletionsKey, maxCompletionsKept); err != nil {
		return err
	}
	_, err := m.Compute(ctx)
	return err
}

func (m *Monitor) userReported(ctx context.Context) (level int, age time.Duration, ok bool) {
	reported, found, err := m.kv.Get(ctx, store.EnergyUserReportedKey)
	if err != nil || !found {
		return 0, 0, false
	}
	reportedTS, found, err := m.kv.Get(ctx, store.EnergyUserReportedTSKey)
	if err != nil || !found {
		return 0, 0, false
	}

	lvl, err := strconv.Atoi(reported)
	if err != nil {
		return 0, 0, false
	}
	ts, err := strconv.ParseInt(reportedTS, 10, 64)
	if err != nil {
		return 0, 0, false
	}

	age = time.Since(time.Unix(ts, 0))
	if age > userReportedDecay {
		return 0, age, false
	}
	return lvl, age, true
}

// velocityAdjustment sums actual/estimated minutes from completions
// within the last 2 hours and derives a -1/0/+1 nudge, falling back to a
// stall penalty when the most recent completion is stale.
func (m *Monitor) velocityAdjustment(ctx context.Context) (adjustment, count int) {
	entries, err := m.kv.LRange(ctx, store.EnergyCompletionsKey, 0, -1)
	if err != nil || len(entries) == 0 {
		return 0, 0
	}

	now := time.Now()
	var totalActual, totalEstimated float64
	var mostRecent time.Time

	for _, raw := range entries {
		parts := strings.Split(raw, ":")
		if len(parts) < 4 {
			continue
		}
		actual, err1 := strconv.ParseFloat(parts[1], 64)
		estimated, err2 := strconv.ParseFloat(parts[2], 64)
		ts, err3 := strconv.ParseInt(parts[3], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		completedAt := time.Unix(ts, 0)
		if completedAt.After(mostRecent) {
			mostRecent = completedAt
		}
		if now.Sub(completedAt) <= velocityWindow {
			totalActual += actual
			totalEstimated += estimated
			count++
		}
	}

	if count == 0 {
		if !mostRecent.IsZero() && now.Sub(mostRecent) > inactivityThreshold {
			return -1, 0
		}
		return 0, 0
	}
	if totalEstimated == 0 {
		return 0, count
	}

	ratio := totalActual / totalEstimated
	switch {
	case ratio < 0.8:
		return 1, count
	case ratio > 1.3:
		return -1, count
	default:
		return 0, count
	}
}

// Compute derives the current EnergyLevel, caches it as the
// last-good value, and persists it to the KV substrate so other readers see
// a fresh value without recomputing.
func (m *Monitor) Compute(ctx context.Context) (domain.EnergyLevel, error) {
	now := time.Now()

	if userLevel, age, ok := m.userReported(ctx); ok {
		decayFactor := 1.0 - age.Seconds()/userReportedDecay.Seconds()
		confidence := 0.5 + 0.4*decayFactor
		level := clamp(userLevel, 1, 5)
		result := domain.EnergyLevel{
			Level:      level,
			Confidence: round2(confidence),
			Source:     domain.EnergySourceUserReported,
		}
		return m.cacheAndPersist(ctx, result)
	}

	m.mu.RLock()
	curve := m.curve
	hasProfilerCurve := m.hasProfilerCurve
	m.mu.RUnlock()

	baseline := curve[now.Hour()%24]
	adjustment, count := m.velocityAdjustment(ctx)
	final := clamp(baseline+adjustment, 1, 5)

	var confidence float64
	source := domain.EnergySourceTimeBased
	switch {
	case hasProfilerCurve && count >= 3:
		confidence = 0.8
		source = domain.EnergySourceInferred
	case hasProfilerCurve:
		confidence = 0.7
		source = domain.EnergySourceInferred
	case count >= 3:
		confidence = 0.6
		source = domain.EnergySourceInferred
	default:
		confidence = 0.4
	}

	result := domain.EnergyLevel{Level: final, Confidence: confidence, Source: source}
	return m.cacheAndPersist(ctx, result)
}

func (m *Monitor) cacheAndPersist(ctx context.Context, result domain.EnergyLevel) (domain.EnergyLevel, error) {
	m.mu.Lock()
	m.lastGood = &result
	m.mu.Unlock()

	observability.EnergyLevelGauge.Set(float64(result.Level))
	observability.EnergyConfidence.Set(result.Confidence)

	payload := fmt.Sprintf("%d:%s:%s", result.Level, strconv.FormatFloat(result.Confidence, 'f', 2, 64), result.Source)
	if err := m.kv.Set(ctx, store.EnergyCurrentKey, payload, 0); err != nil {
		// KV unreachable: fall through to degraded mode, last-good value
		// already cached above so callers still see a fresh read.
		return result, nil
	}
	return result, nil
}

// Current returns the last computed EnergyLevel without recomputing,
// falling back to a degraded-mode cached value when nothing has been
// computed yet this process.
func (m *Monitor) Current(ctx context.Context) domain.EnergyLevel {
	m.mu.RLock()
	cached := m.lastGood
	m.mu.RUnlock()
	if cached != nil {
		return *cached
	}

	raw, found, err := m.kv.Get(ctx, store.EnergyCurrentKey)
	if err != nil || !found {
		return domain.EnergyLevel{Level: 3, Confidence: 0.2, Source: domain.EnergySourceFallback}
	}
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return domain.EnergyLevel{Level: 3, Confidence: 0.2, Source: domain.EnergySourceFallback}
	}
	level, _ := strconv.Atoi(parts[0])
	confidence, _ := strconv.ParseFloat(parts[1], 64)
	return domain.EnergyLevel{Level: level, Confidence: confidence, Source: domain.EnergySource(parts[2])}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
