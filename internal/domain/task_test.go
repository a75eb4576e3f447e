package domain

import (
	"testing"
	"time"
)

func TestDeadlineUrgency(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		deadline *time.Time
		want     float64
	}{
		{"no deadline", nil, 0},
		{"one hour out", ptr(now.Add(time.Hour)), 10},
		{"ten hours out", ptr(now.Add(10 * time.Hour)), 1},
		{"already past clamps at 10", ptr(now.Add(-time.Hour)), 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := &Task{Deadline: tc.deadline}
			got := task.DeadlineUrgency(now)
			if got != tc.want {
				t.Fatalf("DeadlineUrgency = %v, want %v", got, tc.want)
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestExecutionTimeScore(t *testing.T) {
	cases := []struct {
		mins int
		want float64
	}{
		{100, 1},
		{10, 10},
		{5, 10}, // capped at 10
		{0, 10}, // floor of 1 minute
	}
	for _, tc := range cases {
		task := &Task{EstimatedMins: tc.mins}
		if got := task.ExecutionTimeScore(); got != tc.want {
			t.Fatalf("ExecutionTimeScore(%d) = %v, want %v", tc.mins, got, tc.want)
		}
	}
}

func TestPreferredStartScore(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	if got := (&Task{}).PreferredStartScore(now); got != 5 {
		t.Fatalf("absent preferred_start should be neutral 5, got %v", got)
	}
	past := now.Add(-time.Minute)
	if got := (&Task{PreferredStart: &past}).PreferredStartScore(now); got != 10 {
		t.Fatalf("past preferred_start should score 10, got %v", got)
	}
	future := now.Add(2 * time.Hour)
	if got := (&Task{PreferredStart: &future}).PreferredStartScore(now); got != 5 {
		t.Fatalf("2h-out preferred_start should score 5, got %v", got)
	}
}

func TestBucketIsStableAndInRange(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(3 * time.Hour)
	task := &Task{EstimatedMins: 30, Deadline: &deadline}

	b := task.Bucket(now)
	if b < 0 || b >= BucketCount {
		t.Fatalf("bucket %d out of range [0,%d)", b, BucketCount)
	}
	if again := task.Bucket(now); again != b {
		t.Fatalf("bucket not stable for unchanged task: %d then %d", b, again)
	}

	// After mutating a score input, the recomputed bucket must still fall
	// in range (the buffer relies on recompute-on-Put).
	task.EstimatedMins = 5
	if task.Bucket(now) < 0 || task.Bucket(now) >= BucketCount {
		t.Fatalf("bucket out of range after mutation")
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	deadline := now.Add(time.Hour)
	orig := &Task{ID: "t1", Tags: []string{"a"}, Deadline: &deadline}

	cp := orig.Clone()
	cp.Tags[0] = "b"
	*cp.Deadline = now.Add(48 * time.Hour)

	if orig.Tags[0] != "a" {
		t.Fatalf("clone shares tags slice")
	}
	if !orig.Deadline.Equal(deadline) {
		t.Fatalf("clone shares deadline pointer")
	}
}

func TestPriorityString(t *testing.T) {
	if PriorityP0Urgent.String() != "P0_URGENT" || PriorityP3Background.String() != "P3_BACKGROUND" {
		t.Fatalf("unexpected priority labels: %s %s", PriorityP0Urgent, PriorityP3Background)
	}
}
