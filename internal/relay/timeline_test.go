package relay

import (
	"fmt"
	"testing"
)

func TestTimelineRecordAndFilter(t *testing.T) {
	tl := NewTimeline()
	tl.Record(TimelineEvent{DisruptionID: "d1", Stage: "received"})
	tl.Record(TimelineEvent{DisruptionID: "d2", Stage: "received"})
	tl.Record(TimelineEvent{DisruptionID: "d1", Stage: "classified"})

	got := tl.ForDisruption("d1")
	if len(got) != 2 || got[0].Stage != "received" || got[1].Stage != "classified" {
		t.Fatalf("ForDisruption(d1) = %+v", got)
	}
	if got[0].Timestamp.IsZero() {
		t.Fatal("Record should stamp missing timestamps")
	}
	if len(tl.Recent(1)) != 1 || tl.Recent(1)[0].DisruptionID != "d1" {
		t.Fatalf("Recent(1) = %+v", tl.Recent(1))
	}
	if len(tl.Recent(0)) != 3 {
		t.Fatalf("Recent(0) should return everything, got %d", len(tl.Recent(0)))
	}
}

func TestTimelineBoundsLedgerSize(t *testing.T) {
	tl := NewTimeline()
	for i := 0; i < maxTimelineEvents+50; i++ {
		tl.Record(TimelineEvent{DisruptionID: fmt.Sprintf("d%d", i), Stage: "received"})
	}
	all := tl.Recent(0)
	if len(all) != maxTimelineEvents {
		t.Fatalf("ledger grew to %d, want bound %d", len(all), maxTimelineEvents)
	}
	if all[len(all)-1].DisruptionID != fmt.Sprintf("d%d", maxTimelineEvents+49) {
		t.Fatalf("newest entry lost: %s", all[len(all)-1].DisruptionID)
	}
}
