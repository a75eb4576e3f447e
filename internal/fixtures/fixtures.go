// Package fixtures is a test-only seed helper: it is never imported by
// cmd/dayforge or internal/api, and exists purely so package tests across
// the module can stand up a populated Buffer and a canned poller.Fetcher
// without duplicating the same literal task/event data in every _test.go
// file.
package fixtures

import (
	"context"
	"fmt"
	"time"

	"github.com/dayforge/dayforge/internal/buffer"
	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/poller"
	"github.com/dayforge/dayforge/internal/store"
)

// DemoTask returns the i-th task of a small, deterministic demo day: a
// spread of priorities, energy costs, and task types exercising every STS
// class and both automatable and non-automatable task_type values.
func DemoTask(i int) *domain.Task {
	now := time.Now()
	specs := []struct {
		title    string
		taskType string
		priority domain.Priority
		energy   int
		load     int
		mins     int
	}{
		{"Draft quarterly review email", "email_reply", domain.PriorityP1Important, 2, 2, 15},
		{"Deep work: architecture doc", "deep_work", domain.PriorityP2Normal, 5, 5, 90},
		{"Reply to Slack thread", "slack_message", domain.PriorityP3Background, 1, 1, 5},
		{"Prepare board meeting slides", "deep_work", domain.PriorityP0Urgent, 4, 4, 60},
		{"Post LinkedIn update", "linkedin_post", domain.PriorityP3Background, 1, 2, 10},
		{"Clear inbox admin", "admin", domain.PriorityP2Normal, 2, 1, 20},
	}
	spec := specs[i%len(specs)]
	deadline := now.Add(time.Duration(4+i) * time.Hour)
	return &domain.Task{
		ID:            fmt.Sprintf("demo-task-%d", i),
		Title:         spec.title,
		Description:   "seeded demo task",
		Priority:      spec.priority,
		EnergyCost:    spec.energy,
		CognitiveLoad: spec.load,
		EstimatedMins: spec.mins,
		Deadline:      &deadline,
		TaskType:      spec.taskType,
		Status:        domain.StatusBacklog,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SeedBuffer populates buf with n demo tasks: a fixture for local
// exploration and tests, not a production route.
func SeedBuffer(ctx context.Context, buf *buffer.Buffer, n int) error {
	for i := 0; i < n; i++ {
		if err := buf.Put(ctx, DemoTask(i)); err != nil {
			return err
		}
	}
	return nil
}

// StaticFetcher is a poller.Fetcher returning whatever its Calendar, Email
// and Chat fields hold at call time, so a caller can change the snapshot
// between polls instead of hitting a real calendar/mail/chat API. No test
// in this module imports it.
type StaticFetcher struct {
	Calendar []poller.CalendarEvent
	Email    []poller.EmailMessage
	Chat     []poller.ChatMessage
}

// NewStaticFetcher returns a StaticFetcher seeded with one representative
// event per source.
func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{
		Calendar: []poller.CalendarEvent{
			{ID: "cal-1", Title: "1:1 with manager", Start: "09:00", End: "09:30"},
		},
		Email: []poller.EmailMessage{
			{ID: "mail-1", Subject: "Weekly digest", From: "digest@example.com", Urgent: false},
		},
		Chat: []poller.ChatMessage{
			{ID: "chat-1", Channel: "#general", User: "teammate", Text: "good morning"},
		},
	}
}

func (f *StaticFetcher) FetchCalendar(ctx context.Context) ([]poller.CalendarEvent, error) {
	return f.Calendar, nil
}

func (f *StaticFetcher) FetchEmail(ctx context.Context) ([]poller.EmailMessage, error) {
	return f.Email, nil
}

func (f *StaticFetcher) FetchChat(ctx context.Context) ([]poller.ChatMessage, error) {
	return f.Chat, nil
}

// RecordingSink collects every event handed to it, for assertions in
// package tests exercising the poller against a StaticFetcher.
type RecordingSink struct {
	Events []domain.ContextChangeEvent
}

func (s *RecordingSink) Emit(ctx context.Context, event domain.ContextChangeEvent) {
	s.Events = append(s.Events, event)
}

// NewMemoryBuffer is a small convenience constructor so fixture-using
// tests don't each re-import store.NewMemoryKV.
func NewMemoryBuffer() *buffer.Buffer {
	return buffer.New(store.NewMemoryKV())
}
