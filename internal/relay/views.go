// Package relay is the Orchestrator: a thin event router that wires
// ContextChangeEvents, DisruptionEvents, schedule mutations, energy
// updates, and delegation completions across the scheduling subsystems and
// fans outbound envelopes to connected WebSocket clients. It owns no
// domain state; Buffer/STS/Profiler/Energy Monitor own that.
package relay

import (
	"time"

	"github.com/dayforge/dayforge/internal/domain"
)

// Envelope is the `{type, payload, timestamp}` wire format for every
// outbound client message.
type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEnvelope stamps payload with the given type and the current time.
func NewEnvelope(typ string, payload interface{}) Envelope {
	return Envelope{Type: typ, Payload: payload, Timestamp: time.Now()}
}

// TaskView is the client-facing projection of a domain.Task, adding the
// derived scores the client needs to render without recomputing them.
type TaskView struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Priority        string     `json:"priority"`
	EnergyCost      int        `json:"energy_cost"`
	CognitiveLoad   int        `json:"cognitive_load"`
	EstimatedMins   int        `json:"estimated_duration"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	PreferredStart  *time.Time `json:"preferred_start,omitempty"`
	Status          string     `json:"status"`
	TaskType        string     `json:"task_type"`
	DeadlineUrgency float64    `json:"deadline_urgency"`
	Bucket          int        `json:"bucket"`
}

// NewTaskView projects a domain.Task into its wire view as of now.
func NewTaskView(t *domain.Task, now time.Time) TaskView {
	return TaskView{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        t.Priority.String(),
		EnergyCost:      t.EnergyCost,
		CognitiveLoad:   t.CognitiveLoad,
		EstimatedMins:   t.EstimatedMins,
		Deadline:        t.Deadline,
		PreferredStart:  t.PreferredStart,
		Status:          string(t.Status),
		TaskType:        t.TaskType,
		DeadlineUrgency: round2(t.DeadlineUrgency(now)),
		Bucket:          t.Bucket(now),
	}
}

func round2(v float64) float64 { return float64(int(v*100+0.5)) / 100 }

// SwapOp records one task's movement between backlog and active as part of
// a disruption response, for the `swaps` field of an updated_schedule
// envelope.
type SwapOp struct {
	TaskID string `json:"task_id"`
	Kind   string `json:"kind"` // swap_in | swap_out | preempt | delegate
}

// EnergyView is the client-facing projection of a domain.EnergyLevel.
type EnergyView struct {
	Level      int     `json:"level"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// NewEnergyView projects a domain.EnergyLevel into its wire view.
func NewEnergyView(e domain.EnergyLevel) EnergyView {
	return EnergyView{Level: e.Level, Confidence: e.Confidence, Source: string(e.Source)}
}

// ScheduleSnapshot is the `updated_schedule` envelope payload.
type ScheduleSnapshot struct {
	Tasks  []TaskView `json:"tasks"`
	Swaps  []SwapOp   `json:"swaps"`
	Energy EnergyView `json:"energy"`
}

// AgentActivity is the `agent_activity` envelope payload, the one channel
// every user-visible failure surfaces through.
type AgentActivity struct {
	Agent       string `json:"agent"`
	Message     string `json:"message"`
	Type        string `json:"type"` // info | ghostworker | warning | error
	ActionID    string `json:"action_id,omitempty"`
	ActionLabel string `json:"action_label,omitempty"`
}

// VoiceCommand is an inbound client message's payload.
type VoiceCommand struct {
	CommandType string `json:"command_type"` // start_task | complete_task | snooze_reminder
	TaskID      string `json:"task_id,omitempty"`
	Minutes     int    `json:"minutes,omitempty"`
}

// InboundMessage is a client->server message, e.g. `identify` or
// `voice_command`.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload VoiceCommandRaw `json:"payload"`
}

// VoiceCommandRaw carries the raw fields of a voice_command payload so
// unknown/absent fields don't fail decoding of other inbound types.
type VoiceCommandRaw struct {
	CommandType string `json:"command_type,omitempty"`
	TaskID      string `json:"task_id,omitempty"`
	Minutes     int    `json:"minutes,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
}
