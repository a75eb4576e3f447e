package relay

import (
	"strconv"
	"sync"
	"time"

	"github.com/dayforge/dayforge/internal/domain"
)

// maxTimelineEvents bounds the in-memory ledger across all disruptions; the KV
// substrate's history (if a durable HistoryStore is configured) is the
// long-lived record, this is only for recent post-hoc debugging.
const maxTimelineEvents = 2000

// TimelineEvent is one recorded step of a disruption's handling.
type TimelineEvent struct {
	DisruptionID string            `json:"disruption_id"`
	Stage        string            `json:"stage"` // received, classified, dispatched, broadcast
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Timeline is a bounded, in-memory ledger of disruption-handling steps,
// answering GET /schedule/timeline for post-hoc debugging of a disruption.
type Timeline struct {
	mu     sync.RWMutex
	events []TimelineEvent
}

// NewTimeline constructs an empty ledger.
func NewTimeline() *Timeline {
	return &Timeline{events: make([]TimelineEvent, 0, 64)}
}

// Record appends an event, trimming the oldest entries once the bound is
// exceeded.
func (t *Timeline) Record(e TimelineEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	if len(t.events) > maxTimelineEvents {
		t.events = append([]TimelineEvent(nil), t.events[len(t.events)-maxTimelineEvents:]...)
	}
}

// ForDisruption returns every recorded event for a given disruption id, in
// recording order.
func (t *Timeline) ForDisruption(disruptionID string) []TimelineEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TimelineEvent, 0)
	for _, e := range t.events {
		if e.DisruptionID == disruptionID {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns the last n recorded events across all disruptions.
func (t *Timeline) Recent(n int) []TimelineEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > len(t.events) {
		n = len(t.events)
	}
	out := make([]TimelineEvent, n)
	copy(out, t.events[len(t.events)-n:])
	return out
}

// disruptionSummary is a small helper turning a domain.DisruptionEvent into
// the metadata map recorded alongside each timeline stage.
func disruptionSummary(d domain.DisruptionEvent) map[string]string {
	return map[string]string{
		"severity":      string(d.Severity),
		"action":        string(d.RecommendedAction),
		"context":       d.ContextSummary,
		"freed_minutes": strconv.Itoa(d.FreedMinutes),
	}
}
