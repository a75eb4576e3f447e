// Package store is the KV substrate: a small Redis-shaped interface with
// a live Redis-backed implementation and an in-memory fallback for local
// dev and tests.
package store

import (
	"context"
	"time"
)

// KV is the substrate every subsystem routes its non-task-record state
// through: hashes for task/draft records, sets for bucket/status indices,
// lists for time-ordered completions, strings for cached scalars, and
// pub/sub channels for approvals/events/reminders.
type KV interface {
	// Hash operations back task:<id> and draft:<id> records.
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error

	// Set operations back bucket:<n>, task:backlog, task:active, draft:pending.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// String operations back cached scalars (energy:current, sentinel:*)
	// and serialized state such as profiler:temporal_tracker.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)

	// List operations back time-ordered collections (energy:completions).
	RPush(ctx context.Context, key, value string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrimFront(ctx context.Context, key string, maxLen int64) error

	// Pub/sub backs approvals, events, reminder:events.
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// MoveTaskStatus atomically relocates a task id between its old and new
	// bucket/status sets, the one operation that must be atomic with
	// respect to external readers.
	MoveTaskStatus(ctx context.Context, taskID string, oldBucket, newBucket int, oldStatusKey, newStatusKey string) error
}

// Subscription delivers messages published to a channel.
type Subscription interface {
	Messages() <-chan string
	Close() error
}
