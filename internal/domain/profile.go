package domain

// Archetype is the exclusive classification of a user's execution x growth
// profile produced by the Profiler.
type Archetype string

const (
	ArchetypeCompoundingBuilder Archetype = "compounding_builder"
	ArchetypeReliableOperator   Archetype = "reliable_operator"
	ArchetypeEmergingTalent     Archetype = "emerging_talent"
	ArchetypeAtRisk             Archetype = "at_risk"
)

// DriftDirection classifies where incomplete tasks cluster across a day.
type DriftDirection string

const (
	DriftEveningFade DriftDirection = "evening_fade"
	DriftDistraction DriftDirection = "distraction"
	DriftBalanced    DriftDirection = "balanced"
)

// UserProfile holds the learned behavioral parameters that feed LTS and STS.
type UserProfile struct {
	PeakHours          []int              `json:"peak_hours"`
	AvgTaskDurations   map[string]int     `json:"avg_task_durations"`
	EnergyCurve        [24]int            `json:"energy_curve"`
	AdherenceScore     float64            `json:"adherence_score"`
	EstimationBias     float64            `json:"estimation_bias"`
	DistractionPattern map[string]float64 `json:"distraction_patterns"`
	AutomationComfort  map[string]float64 `json:"automation_comfort"`
	Archetype          Archetype          `json:"archetype"`
	DriftDirection     DriftDirection     `json:"drift_direction"`
}

// ProfileAxes is the set of composite axes tracked snapshot-to-snapshot for
// drift detection.
type ProfileAxes struct {
	Execution  float64 `json:"execution"`
	Growth     float64 `json:"growth"`
	Adherence  float64 `json:"adherence"`
	Estimation float64 `json:"estimation_bias"`
}

// ProfileUpdateEvent is emitted when drift between two snapshots exceeds the
// configured threshold.
type ProfileUpdateEvent struct {
	ChangedFields []string `json:"changed_fields"`
	MaxMagnitude  float64  `json:"max_magnitude"`
}

// EnergySource records how an EnergyLevel was derived.
type EnergySource string

const (
	EnergySourceUserReported EnergySource = "user_reported"
	EnergySourceInferred     EnergySource = "inferred"
	EnergySourceTimeBased    EnergySource = "time_based"
	EnergySourceFallback     EnergySource = "fallback"
)

// EnergyLevel is the current inferred/reported energy state.
type EnergyLevel struct {
	Level      int          `json:"level"` // 1-5
	Confidence float64      `json:"confidence"`
	Source     EnergySource `json:"source"`
}
