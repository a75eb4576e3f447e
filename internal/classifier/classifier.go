// Package classifier implements the Disruption Classifier: a pure rule
// table turning a raw ContextChangeEvent into a classified DisruptionEvent
// carrying severity, signed time impact, and a recommended action.
package classifier

import (
	"fmt"

	"github.com/dayforge/dayforge/internal/domain"
)

func metaInt(meta map[string]any, key string, def int) int {
	v, ok := meta[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

func metaBool(meta map[string]any, key string) bool {
	v, ok := meta[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func escalate(s domain.Severity) domain.Severity {
	switch s {
	case domain.SeverityMinor:
		return domain.SeverityMajor
	case domain.SeverityMajor:
		return domain.SeverityCritical
	default:
		return domain.SeverityCritical
	}
}

// Classify maps a raw ContextChangeEvent to a DisruptionEvent via the
// per-event-type severity and time-impact rules.
func Classify(event domain.ContextChangeEvent) domain.DisruptionEvent {
	affected := len(event.AffectedTaskIDs)
	meta := event.Metadata
	if meta == nil {
		meta = map[string]any{}
	}

	var severity domain.Severity
	var freed int

	switch event.EventType {
	case domain.EventMeetingEndedEarly:
		severity = domain.SeverityMinor
		if affected >= 3 {
			severity = domain.SeverityMajor
		}
		freed = metaInt(meta, "freed_minutes", 15)

	case domain.EventCancelledMeeting:
		severity = domain.SeverityMinor
		freed = metaInt(meta, "freed_minutes", 15)

	case domain.EventScheduleConflict:
		severity = domain.SeverityMajor
		if affected >= 4 {
			severity = domain.SeverityCritical
		}
		freed = -metaInt(meta, "lost_minutes", 30)

	case domain.EventMeetingOverrun:
		severity = domain.SeverityMajor
		if affected >= 3 {
			severity = domain.SeverityCritical
		}
		freed = -metaInt(meta, "lost_minutes", 30)

	case domain.EventNewEmail:
		severity = domain.SeverityMinor
		freed = 0
		if metaBool(meta, "urgent") {
			severity = escalate(severity)
			freed = -15
		}

	case domain.EventTaskCompleted:
		severity = domain.SeverityMinor
		freed = metaInt(meta, "saved_minutes", 0)

	case domain.EventSlackUrgentMessage:
		severity = domain.SeverityMinor
		if metaBool(meta, "urgent") {
			severity = escalate(severity)
		}
		freed = 0

	case domain.EventNewCalendarEvent:
		// New calendar events don't free or consume time on their own;
		// they are surfaced so downstream can reassess the active set.
		severity = domain.SeverityMinor
		freed = 0

	default:
		severity = domain.SeverityMinor
		freed = 0
	}

	return domain.DisruptionEvent{
		Severity:          severity,
		AffectedTaskIDs:   event.AffectedTaskIDs,
		FreedMinutes:      freed,
		RecommendedAction: DetermineAction(severity, freed),
		ContextSummary:    fmt.Sprintf("%s from %s affecting %d task(s)", event.EventType, event.Source, affected),
	}
}

// DetermineAction maps classified severity and signed freed minutes to
// the recovery action.
func DetermineAction(severity domain.Severity, freed int) domain.RecommendedAction {
	switch {
	case severity == domain.SeverityCritical:
		return domain.ActionRescheduleAll
	case freed > 0:
		return domain.ActionSwapIn
	case freed < 0 && severity == domain.SeverityMajor:
		return domain.ActionSwapOut
	case freed < 0:
		return domain.ActionDelegate
	default:
		return domain.ActionSwapIn
	}
}
