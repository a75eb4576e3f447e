package poller

import (
	"testing"

	"github.com/dayforge/dayforge/internal/domain"
)

func TestDetectCalendarChangesTreatsAllAsNewAgainstEmptyCache(t *testing.T) {
	current := []CalendarEvent{{ID: "e1", Start: "2026-07-31T09:00:00Z", End: "2026-07-31T10:00:00Z"}}
	events := detectCalendarChanges(current, nil, nil)
	if len(events) != 1 || events[0].EventType != domain.EventNewCalendarEvent {
		t.Fatalf("expected the lone id treated as new on a diff against empty cache, got %+v", events)
	}
}

func TestDetectCalendarChangesFlagsCancelledEvent(t *testing.T) {
	cached := []CalendarEvent{{ID: "e1", Start: "2026-07-31T09:00:00Z", End: "2026-07-31T10:00:00Z"}}
	events := detectCalendarChanges(nil, cached, nil)
	if len(events) != 1 || events[0].EventType != domain.EventCancelledMeeting {
		t.Fatalf("expected cancelled_meeting for a disappeared event, got %+v", events)
	}
}

func TestDetectCalendarChangesEndedEarlyVsConflict(t *testing.T) {
	cached := []CalendarEvent{{ID: "e1", Start: "2026-07-31T09:00:00Z", End: "2026-07-31T10:00:00Z"}}

	early := []CalendarEvent{{ID: "e1", Start: "2026-07-31T09:00:00Z", End: "2026-07-31T09:30:00Z"}}
	events := detectCalendarChanges(early, cached, nil)
	if len(events) != 1 || events[0].EventType != domain.EventMeetingEndedEarly {
		t.Fatalf("expected meeting_ended_early when new end precedes old end, got %+v", events)
	}

	overrun := []CalendarEvent{{ID: "e1", Start: "2026-07-31T09:00:00Z", End: "2026-07-31T11:00:00Z"}}
	events = detectCalendarChanges(overrun, cached, nil)
	if len(events) != 1 || events[0].EventType != domain.EventScheduleConflict {
		t.Fatalf("expected schedule_conflict when new end extends past old end, got %+v", events)
	}
}

func TestDetectCalendarChangesFindsAffectedTasks(t *testing.T) {
	cached := []CalendarEvent{{ID: "e1", Start: "2026-07-31T09:00:00Z", End: "2026-07-31T10:00:00Z"}}
	overrun := []CalendarEvent{{ID: "e1", Start: "2026-07-31T09:00:00Z", End: "2026-07-31T11:00:00Z"}}
	starts := map[string]string{"task-a": "2026-07-31T10:30:00Z", "task-b": "2026-07-31T20:00:00Z"}

	events := detectCalendarChanges(overrun, cached, starts)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if len(events[0].AffectedTaskIDs) != 1 || events[0].AffectedTaskIDs[0] != "task-a" {
		t.Fatalf("expected only task-a affected, got %+v", events[0].AffectedTaskIDs)
	}
}

func TestDetectEmailChangesOnlyNewIDs(t *testing.T) {
	cached := []EmailMessage{{ID: "m1"}}
	current := []EmailMessage{{ID: "m1"}, {ID: "m2", Subject: "hi"}}
	events := detectEmailChanges(current, cached)
	if len(events) != 1 || events[0].Metadata["message_id"] != "m2" {
		t.Fatalf("expected only m2 surfaced as new_email, got %+v", events)
	}
}

func TestDetectChatChangesUrgentKeywordSurfaces(t *testing.T) {
	current := []ChatMessage{{ID: "s1", Text: "this is ASAP please look"}}
	events := detectChatChanges(current, nil)
	if len(events) != 1 || events[0].EventType != domain.EventSlackUrgentMessage {
		t.Fatalf("expected slack_urgent_message for asap keyword, got %+v", events)
	}
}

func TestDetectChatChangesMentionSurfacesWithoutKeyword(t *testing.T) {
	current := []ChatMessage{{ID: "s1", Text: "hey @bob can you check this"}}
	events := detectChatChanges(current, nil)
	if len(events) != 1 {
		t.Fatalf("expected mention to surface event, got %+v", events)
	}
}

func TestDetectChatChangesIgnoresPlainMessage(t *testing.T) {
	current := []ChatMessage{{ID: "s1", Text: "lunch at noon?"}}
	events := detectChatChanges(current, nil)
	if len(events) != 0 {
		t.Fatalf("expected no event for a plain message, got %+v", events)
	}
}

func TestCircuitBreakerOpensAfterThresholdFailures(t *testing.T) {
	cb := newCircuitBreaker()
	for i := 0; i < cb.failureThreshold; i++ {
		cb.recordFailure()
	}
	if cb.state != breakerOpen {
		t.Fatalf("expected breaker open after %d failures, got %s", cb.failureThreshold, cb.state)
	}
	if cb.shouldAdmit() {
		t.Fatal("expected open breaker to reject admission immediately")
	}
}
