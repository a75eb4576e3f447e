package store

import "fmt"

// Reserved KV substrate key namespaces.
const (
	BacklogKey = "task:backlog"
	ActiveKey  = "task:active"

	EnergyUserReportedKey   = "energy:user_reported"
	EnergyUserReportedTSKey = "energy:user_reported_ts"
	EnergyCompletionsKey    = "energy:completions"
	EnergyCurrentKey        = "energy:current"

	ProfilerTaskCompletionsKey = "profiler:task_completions"
	ProfilerLastResultKey      = "profiler:last_result"
	ProfilerTemporalTrackerKey = "profiler:temporal_tracker"
	ProfilerLinkedInKey        = "profiler:linkedin_profile"

	DraftPendingSetKey = "draft:pending"

	ChannelApprovals     = "approvals"
	ChannelEvents        = "events"
	ChannelReminderEvent = "reminder:events"
)

// TaskKey returns the hash key for a single task's fields.
func TaskKey(id string) string { return fmt.Sprintf("task:%s", id) }

// BucketKey returns the set key holding task ids in bucket n.
func BucketKey(n int) string { return fmt.Sprintf("bucket:%d", n) }

// SentinelKey returns the poller snapshot key for a given source.
func SentinelKey(source string) string { return fmt.Sprintf("sentinel:%s", source) }

// DraftKey returns the hash key for a single draft's fields.
func DraftKey(id string) string { return fmt.Sprintf("draft:%s", id) }
