// Package profiler implements the Profiler: the behavioral-intelligence
// engine that turns daily-goal history, task completions, social posting
// hours, and reflections into a UserProfile, an archetype classification,
// and drift detection against the previous snapshot.
package profiler

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/observability"
	"github.com/dayforge/dayforge/internal/store"
)

// Cold-start defaults served until enough history accumulates.
var (
	DefaultPeakHours           = []int{9, 10, 14, 15}
	DefaultEnergyCurve         = [24]int{1, 1, 1, 1, 1, 1, 2, 3, 4, 4, 5, 4, 3, 3, 4, 5, 4, 3, 3, 2, 2, 2, 1, 1}
	DefaultAvgTaskDurations    = map[string]int{"email": 5, "deep_work": 52, "admin": 15, "meeting": 30}
	DefaultAdherence           = 0.7
	DefaultEstimationBias      = 1.2
	DefaultAutomationComfort   = map[string]float64{"email": 0.9, "slack": 0.8, "booking": 0.5}
	DefaultDistractionPatterns = map[string]float64{"slack_notification": 0.5, "phone_check": 0.4, "context_switch": 0.3}
)

const (
	slidingWindowDays = 14
	decayFactor       = 0.85
	driftThreshold    = 0.15
)

// TaskEntry is one task's completion status within a DailyGoalEntry.
type TaskEntry struct {
	Completed bool `json:"completed"`
}

// DailyGoalEntry is one day's goal sheet.
type DailyGoalEntry struct {
	DateID         string      `json:"date_id"`
	Tasks          []TaskEntry `json:"tasks"`
	ReflectionText string      `json:"reflection_text"`
	HasReflection  bool        `json:"has_reflection"`
	CompletionRate float64     `json:"completion_rate"`
	TotalTasks     int         `json:"total_tasks"`
	CompletedCount int         `json:"completed_count"`
}

// TaskCompletionRecord is one completed task's estimate/actual pair, used
// for estimation-bias and peak-hour derivation.
type TaskCompletionRecord struct {
	ActualMinutes    int
	EstimatedMinutes int
	CompletedAt      time.Time
}

// DelegationOutcome is one GhostWorker draft's terminal disposition, used
// to update automation comfort per task type.
type DelegationOutcome struct {
	TaskType string
	Outcome  string // approved_quickly | edited | rejected
}

// ReflectionData carries self-reported growth signals.
type ReflectionData struct {
	SelfAwarenessScore float64
}

// LinkedInProfile is the parsed LinkedIn export: profile headline plus the
// posting-hour histogram that feeds peak-hour derivation. Stored under
// profiler:linkedin_profile and merged into the social posting-hour signal
// on the next recomputation.
type LinkedInProfile struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Occupation    string `json:"occupation"`
	Headline      string `json:"headline,omitempty"`
	ResumeSummary string `json:"resume_summary,omitempty"`
	PostingHours  []int  `json:"posting_hours"`
	PostCount     int    `json:"post_count"`
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// decayWeight is decay_factor^age_days, age clamped to the sliding window.
func decayWeight(ageDays int) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	if ageDays > slidingWindowDays {
		ageDays = slidingWindowDays
	}
	return math.Pow(decayFactor, float64(ageDays))
}

// applyDecay is a weighted mean with exponential recency decay; values[0]
// is oldest, values[len-1] is most recent.
func applyDecay(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var totalW, sum float64
	for i, v := range values {
		w := decayWeight(len(values) - 1 - i)
		totalW += w
		sum += v * w
	}
	if totalW == 0 {
		return 0
	}
	return sum / totalW
}

// computePeakHours aggregates social posting hours (weight 1), task
// completion hours (weight 2), and a bump on common office hours for
// high-completion days, returning the top-4 hours sorted.
func computePeakHours(socialPostingHours map[string][]int, completions []TaskCompletionRecord, goals []DailyGoalEntry) []int {
	scores := make(map[int]float64, 24)
	for h := 0; h < 24; h++ {
		scores[h] = 0
	}

	for _, hours := range socialPostingHours {
		for _, h := range hours {
			scores[h%24] += 1.0
		}
	}
	for _, tc := range completions {
		if !tc.CompletedAt.IsZero() {
			scores[tc.CompletedAt.Hour()] += 2.0
		}
	}
	for _, e := range goals {
		if e.CompletionRate > 0.7 {
			for _, h := range []int{9, 10, 11, 14, 15, 16} {
				scores[h] += e.CompletionRate
			}
		}
	}

	any := false
	for _, v := range scores {
		if v > 0 {
			any = true
			break
		}
	}
	if !any {
		return append([]int(nil), DefaultPeakHours...)
	}

	type hourScore struct {
		hour  int
		score float64
	}
	ranked := make([]hourScore, 0, 24)
	for h, s := range scores {
		ranked = append(ranked, hourScore{h, s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].hour < ranked[j].hour
	})
	if ranked[0].score <= 0 {
		return append([]int(nil), DefaultPeakHours...)
	}

	top := ranked
	if len(top) > 4 {
		top = top[:4]
	}
	peak := make([]int, 0, len(top))
	for _, hs := range top {
		peak = append(peak, hs.hour)
	}
	sort.Ints(peak)
	return peak
}

// computeEstimationBias is the decay-weighted mean of actual/estimated
// duration ratios.
func computeEstimationBias(completions []TaskCompletionRecord) float64 {
	var ratios []float64
	for _, tc := range completions {
		if tc.EstimatedMinutes > 0 && tc.ActualMinutes > 0 {
			ratios = append(ratios, float64(tc.ActualMinutes)/float64(tc.EstimatedMinutes))
		}
	}
	if len(ratios) == 0 {
		return DefaultEstimationBias
	}
	return round4(applyDecay(ratios))
}

// computeEnergyCurve seeds the default circadian curve then blends in
// observed posting/completion activity.
func computeEnergyCurve(socialPostingHours map[string][]int, goals []DailyGoalEntry) [24]int {
	curve := DefaultEnergyCurve

	activity := make([]float64, 24)
	for _, hours := range socialPostingHours {
		for _, h := range hours {
			activity[h%24] += 1.0
		}
	}
	for _, e := range goals {
		if e.CompletionRate > 0.6 {
			for _, h := range []int{9, 10, 11, 14, 15, 16} {
				activity[h] += e.CompletionRate * 0.5
			}
		}
	}

	maxAct := 0.0
	for _, a := range activity {
		if a > maxAct {
			maxAct = a
		}
	}
	if maxAct == 0 {
		return curve
	}

	for h := 0; h < 24; h++ {
		boost := (activity[h] / maxAct) * 2
		blended := float64(curve[h])*0.6 + (float64(curve[h])+boost)*0.4
		v := int(math.Round(blended))
		if v < 1 {
			v = 1
		}
		if v > 5 {
			v = 5
		}
		curve[h] = v
	}
	return curve
}

// computeAdherenceScore is the decay-weighted mean of daily completion
// rates.
func computeAdherenceScore(goals []DailyGoalEntry) float64 {
	if len(goals) == 0 {
		return DefaultAdherence
	}
	rates := make([]float64, len(goals))
	for i, e := range goals {
		rates[i] = e.CompletionRate
	}
	return round4(applyDecay(rates))
}

// computeDriftDirection counts days whose incomplete tasks cluster in the
// final third of the list versus scattering across it.
func computeDriftDirection(goals []DailyGoalEntry) domain.DriftDirection {
	endIncomplete, scattered := 0, 0
	for _, e := range goals {
		if len(e.Tasks) == 0 {
			continue
		}
		var positions []float64
		denom := float64(len(e.Tasks) - 1)
		if denom <= 0 {
			denom = 1
		}
		for i, t := range e.Tasks {
			if !t.Completed {
				positions = append(positions, float64(i)/denom)
			}
		}
		if len(positions) == 0 {
			continue
		}
		var sum float64
		for _, p := range positions {
			sum += p
		}
		avg := sum / float64(len(positions))
		if avg > 0.65 {
			endIncomplete++
		} else {
			scattered++
		}
	}
	switch {
	case endIncomplete > scattered:
		return domain.DriftEveningFade
	case scattered > endIncomplete:
		return domain.DriftDistraction
	default:
		return domain.DriftBalanced
	}
}

// computeAutomationComfort nudges per-type comfort from delegation
// outcomes: approved quickly up, edited slightly down, rejected down.
func computeAutomationComfort(outcomes []DelegationOutcome) map[string]float64 {
	comfort := make(map[string]float64, len(DefaultAutomationComfort))
	for k, v := range DefaultAutomationComfort {
		comfort[k] = v
	}
	for _, o := range outcomes {
		if o.TaskType == "" {
			continue
		}
		current, ok := comfort[o.TaskType]
		if !ok {
			current = 0.5
		}
		switch o.Outcome {
		case "approved_quickly":
			current = math.Min(1.0, current+0.05)
		case "edited":
			current = math.Max(0.1, current-0.02)
		case "rejected":
			current = math.Max(0.1, current-0.1)
		}
		comfort[o.TaskType] = current
	}
	for k, v := range comfort {
		comfort[k] = round4(v)
	}
	return comfort
}

// BuildProfile runs the full pattern pipeline over the supplied signals.
func BuildProfile(goals []DailyGoalEntry, completions []TaskCompletionRecord, socialPostingHours map[string][]int, outcomes []DelegationOutcome) domain.UserProfile {
	drift := computeDriftDirection(goals)
	distraction := make(map[string]float64, len(DefaultDistractionPatterns))
	for k, v := range DefaultDistractionPatterns {
		distraction[k] = v
	}
	switch drift {
	case domain.DriftDistraction:
		distraction["context_switch"] = math.Min(1.0, distraction["context_switch"]+0.2)
	case domain.DriftEveningFade:
		distraction["fatigue"] = 0.6
	}

	avgDurations := make(map[string]int, len(DefaultAvgTaskDurations))
	for k, v := range DefaultAvgTaskDurations {
		avgDurations[k] = v
	}

	return domain.UserProfile{
		PeakHours:          computePeakHours(socialPostingHours, completions, goals),
		AvgTaskDurations:   avgDurations,
		EnergyCurve:        computeEnergyCurve(socialPostingHours, goals),
		AdherenceScore:     computeAdherenceScore(goals),
		EstimationBias:     computeEstimationBias(completions),
		DistractionPattern: distraction,
		AutomationComfort:  computeAutomationComfort(outcomes),
		DriftDirection:     drift,
	}
}

// ── Sentiment ─────────────────────────────────────────────────────────────

var wordPattern = regexp.MustCompile(`[a-z']+`)

var positiveWords = buildWordSet(
	"great", "good", "better", "improving", "learning", "progress",
	"productive", "focused", "accomplished", "succeeded", "motivated",
	"disciplined", "excellent", "achieved", "interesting", "excited",
	"proud", "strong", "confident", "love", "wonderful", "growth",
	"succeed", "success", "win", "winning", "ship", "shipped",
	"impact", "milestone", "breakthrough", "innovation",
)

var negativeWords = buildWordSet(
	"wasted", "distracted", "lazy", "failed", "bad", "low",
	"procrastinated", "forgot", "missed", "stressed",
	"anxious", "overwhelmed", "tired", "burnout", "unfocused",
	"comfortable", "waste", "struggle", "stuck", "confused",
	"frustrated", "lost", "behind", "overcommitted", "scattered",
)

func buildWordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// SentimentResult is one text block's polarity.
type SentimentResult struct {
	Label string
	Score float64
}

// analyzeSentiment scores text against the positive/negative lexicons.
func analyzeSentiment(text string) SentimentResult {
	if strings.TrimSpace(text) == "" {
		return SentimentResult{Label: "neutral"}
	}
	words := map[string]struct{}{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		words[w] = struct{}{}
	}
	pos, neg := 0, 0
	for w := range words {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return SentimentResult{Label: "neutral"}
	}
	score := float64(pos-neg) / float64(total)
	label := "neutral"
	switch {
	case score > 0.2:
		label = "positive"
	case score < -0.2:
		label = "negative"
	}
	return SentimentResult{Label: label, Score: round4(score)}
}

// SentimentTrend is the rolling direction of a series of reflections.
type SentimentTrend struct {
	Trend    string
	AvgScore float64
	Scores   []float64
}

// AnalyzeSentimentTrend labels a text sequence improving, declining, or
// stable by comparing first-half and second-half average sentiment.
func AnalyzeSentimentTrend(texts []string) SentimentTrend {
	scores := make([]float64, 0, len(texts))
	for _, t := range texts {
		scores = append(scores, analyzeSentiment(t).Score)
	}
	if len(scores) == 0 {
		return SentimentTrend{Trend: "neutral"}
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))

	trend := "stable"
	if len(scores) >= 3 {
		mid := len(scores) / 2
		first, second := scores[:mid], scores[mid:]
		fAvg, sAvg := mean(first), mean(second)
		switch {
		case sAvg > fAvg+0.1:
			trend = "improving"
		case sAvg < fAvg-0.1:
			trend = "declining"
		}
	}

	rounded := make([]float64, len(scores))
	for i, s := range scores {
		rounded[i] = round4(s)
	}
	return SentimentTrend{Trend: trend, AvgScore: round4(avg), Scores: rounded}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// ── Archetype classification ────────────────────────────────────────────

// signalNormalize applies a temperature-8 sigmoid that amplifies strong
// signal and crushes noise so only sustained excellence clears the
// archetype thresholds.
func signalNormalize(vectors map[string]float64, temperature float64) map[string]float64 {
	out := make(map[string]float64, len(vectors))
	for k, v := range vectors {
		clamped := clampF(temperature*(v-0.5), -20, 20)
		sig := 1.0 / (1.0 + math.Exp(-clamped))
		out[k] = round4(sig)
	}
	return out
}

func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	var sumSq float64
	for _, v := range vals {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vals)-1))
}

// Classification is the archetype plus the composites it was derived from.
type Classification struct {
	Archetype          domain.Archetype
	ExecutionComposite float64
	GrowthComposite    float64
	Confidence         float64
	RawTraits          map[string]float64
	NormalizedTraits   map[string]float64
}

// computeVectors derives the six raw signals in [0,1] feeding archetype
// classification.
func computeVectors(goals []DailyGoalEntry, reflection ReflectionData) map[string]float64 {
	rates := make([]float64, len(goals))
	for i, e := range goals {
		rates[i] = e.CompletionRate
	}

	completionConsistency := 0.5
	if len(rates) >= 2 {
		completionConsistency = math.Max(0, 1.0-stddev(rates)*3)
	}

	executionRate := 0.5
	if len(rates) > 0 {
		executionRate = mean(rates)
	}

	growthVelocity := 0.5
	if len(rates) >= 3 {
		mid := len(rates) / 2
		first, second := rates[:mid], rates[mid:]
		slope := mean(second) - mean(first)
		growthVelocity = clampF(0.5+slope*2, 0, 1)
	}

	selfAwareness := reflection.SelfAwarenessScore
	if selfAwareness == 0 {
		selfAwareness = 0.3
	}

	var totalTasks, completedTasks int
	for _, e := range goals {
		totalTasks += e.TotalTasks
		completedTasks += e.CompletedCount
	}
	ambitionCalibration := 0.3
	if totalTasks > 0 {
		rawRatio := float64(completedTasks) / float64(totalTasks)
		ambitionCalibration = clampF(1.0-math.Abs(rawRatio-0.8)*2, 0, 1)
	}

	badStreaks, recoveries := 0, 0
	for i := 1; i < len(rates); i++ {
		if rates[i-1] < 0.4 {
			badStreaks++
			if rates[i] > rates[i-1]+0.2 {
				recoveries++
			}
		}
	}
	recoverySpeed := 0.5
	if badStreaks > 0 {
		recoverySpeed = float64(recoveries) / float64(badStreaks)
	}

	return map[string]float64{
		"completion_consistency": round4(completionConsistency),
		"execution_rate":         round4(executionRate),
		"growth_velocity":        round4(growthVelocity),
		"self_awareness":         round4(selfAwareness),
		"ambition_calibration":   round4(ambitionCalibration),
		"recovery_speed":         round4(recoverySpeed),
	}
}

// Classify normalizes, gates consistency on execution, composites, then
// matches the exclusive archetype thresholds (default at_risk).
func Classify(goals []DailyGoalEntry, reflection ReflectionData) Classification {
	raw := computeVectors(goals, reflection)
	normalized := signalNormalize(raw, 8.0)

	effectiveConsistency := normalized["completion_consistency"]
	if normalized["execution_rate"] < 0.50 {
		effectiveConsistency *= normalized["execution_rate"] * 2.0
	}

	execComposite := normalized["execution_rate"]*0.40 +
		effectiveConsistency*0.30 +
		normalized["ambition_calibration"]*0.15 +
		normalized["recovery_speed"]*0.15
	growthComposite := normalized["growth_velocity"]*0.40 +
		normalized["self_awareness"]*0.30 +
		normalized["recovery_speed"]*0.15 +
		normalized["ambition_calibration"]*0.15

	var archetype domain.Archetype
	switch {
	case execComposite >= 0.85 && growthComposite >= 0.80:
		archetype = domain.ArchetypeCompoundingBuilder
	case execComposite >= 0.70 && growthComposite < 0.50:
		archetype = domain.ArchetypeReliableOperator
	case execComposite < 0.50 && growthComposite >= 0.65:
		archetype = domain.ArchetypeEmergingTalent
	default:
		archetype = domain.ArchetypeAtRisk
	}

	confidence := math.Min(1.0, float64(len(goals))/10.0)

	return Classification{
		Archetype:          archetype,
		ExecutionComposite: round4(execComposite),
		GrowthComposite:    round4(growthComposite),
		Confidence:         round4(confidence),
		RawTraits:          raw,
		NormalizedTraits:   normalized,
	}
}

// ── Temporal drift tracking ───────────────────────────────────────────────

type snapshot struct {
	Date      string             `json:"date"`
	Timestamp time.Time          `json:"timestamp"`
	Scores    map[string]float64 `json:"scores"`
}

// TemporalTracker stores daily axis snapshots and detects regime changes,
// grounded on TemporalTracker's add_snapshot/detect_drift.
type TemporalTracker struct {
	snapshots []snapshot
}

// LoadTemporalTracker deserializes a tracker from its persisted JSON
// payload, mirroring TemporalTracker.from_redis_payload.
func LoadTemporalTracker(payload string) *TemporalTracker {
	t := &TemporalTracker{}
	if payload == "" {
		return t
	}
	_ = json.Unmarshal([]byte(payload), &t.snapshots)
	return t
}

// AddSnapshot appends today's computed axes.
func (t *TemporalTracker) AddSnapshot(dateKey string, axes domain.ProfileAxes) {
	t.snapshots = append(t.snapshots, snapshot{
		Date:      dateKey,
		Timestamp: time.Now(),
		Scores: map[string]float64{
			"execution":       axes.Execution,
			"growth":          axes.Growth,
			"adherence":       axes.Adherence,
			"estimation_bias": axes.Estimation,
		},
	})
}

// DetectDrift compares the last two snapshots and returns a
// ProfileUpdateEvent when any field moved by more than driftThreshold.
func (t *TemporalTracker) DetectDrift() *domain.ProfileUpdateEvent {
	if len(t.snapshots) < 2 {
		return nil
	}
	prev := t.snapshots[len(t.snapshots)-2].Scores
	curr := t.snapshots[len(t.snapshots)-1].Scores

	var changed []string
	maxMag := 0.0
	for key, currVal := range curr {
		prevVal, ok := prev[key]
		if !ok {
			continue
		}
		diff := math.Abs(currVal - prevVal)
		if diff > driftThreshold {
			changed = append(changed, key)
			if diff > maxMag {
				maxMag = diff
			}
		}
	}
	if len(changed) == 0 {
		return nil
	}
	sort.Strings(changed)
	return &domain.ProfileUpdateEvent{ChangedFields: changed, MaxMagnitude: round4(maxMag)}
}

// Persist serializes the tracker's last 30 snapshots for storage, matching
// to_redis_payload's bounded retention.
func (t *TemporalTracker) Persist() (string, error) {
	keep := t.snapshots
	if len(keep) > 30 {
		keep = keep[len(keep)-30:]
	}
	data, err := json.Marshal(keep)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ── Engine orchestration ──────────────────────────────────────────────────

// Engine ties profile computation, archetype classification, sentiment,
// and drift tracking together against the KV substrate, mirroring
// ProfilerEngine.build_full_profile.
type Engine struct {
	kv      store.KV
	tracker *TemporalTracker
}

// NewEngine loads any persisted TemporalTracker state from kv.
func NewEngine(ctx context.Context, kv store.KV) *Engine {
	payload, found, _ := kv.Get(ctx, store.ProfilerTemporalTrackerKey)
	if !found {
		payload = ""
	}
	return &Engine{kv: kv, tracker: LoadTemporalTracker(payload)}
}

// Result bundles everything one profiling pass produces.
type Result struct {
	Profile        domain.UserProfile
	Classification Classification
	Sentiment      SentimentTrend
	Drift          *domain.ProfileUpdateEvent
}

// BuildFullProfile runs the complete pipeline, persists the refreshed
// tracker state, and reports profiler-drift metrics.
func (e *Engine) BuildFullProfile(ctx context.Context, goals []DailyGoalEntry, completions []TaskCompletionRecord, socialPostingHours map[string][]int, reflection ReflectionData, outcomes []DelegationOutcome) (Result, error) {
	profile := BuildProfile(goals, completions, socialPostingHours, outcomes)

	var reflectionTexts []string
	for _, g := range goals {
		if g.HasReflection {
			reflectionTexts = append(reflectionTexts, g.ReflectionText)
		}
	}
	sentiment := AnalyzeSentimentTrend(reflectionTexts)

	classification := Classify(goals, reflection)
	profile.Archetype = classification.Archetype

	dateKey := time.Now().Format("2006-01-02")
	e.tracker.AddSnapshot(dateKey, domain.ProfileAxes{
		Execution:  classification.ExecutionComposite,
		Growth:     classification.GrowthComposite,
		Adherence:  profile.AdherenceScore,
		Estimation: profile.EstimationBias,
	})
	drift := e.tracker.DetectDrift()
	if drift != nil {
		for _, field := range drift.ChangedFields {
			observability.ProfilerDrift.WithLabelValues(field).Inc()
		}
	}
	observability.ArchetypeGauge.WithLabelValues(string(classification.Archetype)).Set(1)

	persisted, err := e.tracker.Persist()
	if err != nil {
		return Result{}, err
	}
	if err := e.kv.Set(ctx, store.ProfilerTemporalTrackerKey, persisted, 0); err != nil {
		return Result{}, err
	}

	return Result{Profile: profile, Classification: classification, Sentiment: sentiment, Drift: drift}, nil
}
