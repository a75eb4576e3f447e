package domain

import "time"

// ContextChangeEventType enumerates the external signal kinds a Context
// Poller can emit.
type ContextChangeEventType string

const (
	EventMeetingEndedEarly  ContextChangeEventType = "meeting_ended_early"
	EventMeetingOverrun     ContextChangeEventType = "meeting_overrun"
	EventCancelledMeeting   ContextChangeEventType = "cancelled_meeting"
	EventScheduleConflict   ContextChangeEventType = "schedule_conflict"
	EventNewEmail           ContextChangeEventType = "new_email"
	EventSlackUrgentMessage ContextChangeEventType = "slack_urgent_message"
	EventTaskCompleted      ContextChangeEventType = "task_completed"
	EventNewCalendarEvent   ContextChangeEventType = "new_calendar_event"
)

// ContextChangeEvent is a raw external signal, not yet classified.
type ContextChangeEvent struct {
	EventType       ContextChangeEventType `json:"event_type"`
	Source          string                 `json:"source"`
	Timestamp       time.Time              `json:"timestamp"`
	AffectedTaskIDs []string               `json:"affected_task_ids"`
	Metadata        map[string]any         `json:"metadata"`
}

// Severity is the classified impact of a DisruptionEvent.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// RecommendedAction is the policy output of the Disruption Classifier.
type RecommendedAction string

const (
	ActionSwapIn        RecommendedAction = "swap_in"
	ActionSwapOut       RecommendedAction = "swap_out"
	ActionRescheduleAll RecommendedAction = "reschedule_all"
	ActionDelegate      RecommendedAction = "delegate"
)

// DisruptionEvent is the classified outcome driving MTS/LTS.
type DisruptionEvent struct {
	Severity          Severity          `json:"severity"`
	AffectedTaskIDs   []string          `json:"affected_task_ids"`
	FreedMinutes      int               `json:"freed_minutes"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	ContextSummary    string            `json:"context_summary"`
}

// DraftStatus is the lifecycle state of a delegation Draft.
type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftExecuted DraftStatus = "executed"
	DraftRejected DraftStatus = "rejected"
	DraftFailed   DraftStatus = "failed"
)

// Draft represents a delegation in progress.
type Draft struct {
	ID        string      `json:"id" db:"id"`
	TaskID    string      `json:"task_id" db:"task_id"`
	TaskType  string      `json:"task_type" db:"task_type"`
	Recipient string      `json:"recipient" db:"recipient"`
	Channel   string      `json:"channel" db:"channel"`
	Subject   string      `json:"subject" db:"subject"`
	Body      string      `json:"body" db:"body"`
	Status    DraftStatus `json:"status" db:"status"`
	CostUnits float64     `json:"cost_units" db:"cost_units"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// TaskCompletion is emitted by the Delegation Worker in every terminal case.
type TaskCompletion struct {
	TaskID    string  `json:"task_id"`
	Status    string  `json:"status"` // executed | failed | rejected
	Result    string  `json:"result"`
	CostUnits float64 `json:"cost_units"`
}

// ApprovalMessage is the pub/sub payload on the `approvals` channel.
type ApprovalMessage struct {
	Action     string `json:"action"` // approve | reject
	DraftID    string `json:"draft_id"`
	EditedBody string `json:"edited_body,omitempty"`
}
