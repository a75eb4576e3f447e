package delegation

import (
	"context"
	"testing"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/store"
	"github.com/dayforge/dayforge/internal/streaming"
)

type fakeGenerator struct {
	body string
	err  error
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.body, nil
}

func newTestWorker(t *testing.T, gen Generator) (*Worker, store.KV, streaming.Publisher) {
	t.Helper()
	kv := store.NewMemoryKV()
	pub := streaming.NewKVPublisher(kv, "delegation")
	return New(kv, gen, pub, 100, 10), kv, pub
}

func TestHandleDelegationAutoExecutesWhenApprovalNotRequired(t *testing.T) {
	ctx := context.Background()
	w, kv, _ := newTestWorker(t, &fakeGenerator{body: "drafted reply"})

	err := w.HandleDelegation(ctx, DelegationTask{
		TaskID:           "task-1",
		TaskType:         "email_reply",
		Context:          map[string]string{"recipient": "alice@example.com"},
		ApprovalRequired: false,
		MaxCost:          1.0,
	})
	if err != nil {
		t.Fatalf("HandleDelegation: %v", err)
	}

	members, err := kv.SMembers(ctx, store.DraftPendingSetKey)
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected no pending draft for auto-executed task, got %v", members)
	}
}

func TestHandleDelegationStoresPendingDraftWhenApprovalRequired(t *testing.T) {
	ctx := context.Background()
	w, kv, _ := newTestWorker(t, &fakeGenerator{body: "drafted reply"})

	err := w.HandleDelegation(ctx, DelegationTask{
		TaskID:           "task-2",
		TaskType:         "slack_message",
		Context:          map[string]string{"channel": "eng"},
		ApprovalRequired: true,
		MaxCost:          1.0,
	})
	if err != nil {
		t.Fatalf("HandleDelegation: %v", err)
	}

	members, err := kv.SMembers(ctx, store.DraftPendingSetKey)
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected one pending draft, got %v", members)
	}

	draft, err := w.loadDraft(ctx, members[0])
	if err != nil {
		t.Fatalf("loadDraft: %v", err)
	}
	if draft.Status != domain.DraftPending {
		t.Fatalf("expected pending status, got %s", draft.Status)
	}
}

func TestHandleDelegationCapsCostAtMaxCost(t *testing.T) {
	ctx := context.Background()
	w, kv, _ := newTestWorker(t, &fakeGenerator{body: "x"})

	err := w.HandleDelegation(ctx, DelegationTask{
		TaskID:           "task-3",
		TaskType:         "meeting_reschedule",
		Context:          map[string]string{},
		ApprovalRequired: true,
		MaxCost:          0.002,
	})
	if err != nil {
		t.Fatalf("HandleDelegation: %v", err)
	}
	members, _ := kv.SMembers(ctx, store.DraftPendingSetKey)
	draft, err := w.loadDraft(ctx, members[0])
	if err != nil {
		t.Fatalf("loadDraft: %v", err)
	}
	if draft.CostUnits != 0.002 {
		t.Fatalf("expected cost capped at max_cost 0.002, got %f", draft.CostUnits)
	}
}

func TestHandleApprovalApproveExecutesDraft(t *testing.T) {
	ctx := context.Background()
	w, kv, _ := newTestWorker(t, &fakeGenerator{body: "original body"})

	if err := w.HandleDelegation(ctx, DelegationTask{
		TaskID: "task-4", TaskType: "doc_update", Context: map[string]string{}, ApprovalRequired: true, MaxCost: 1,
	}); err != nil {
		t.Fatalf("HandleDelegation: %v", err)
	}
	members, _ := kv.SMembers(ctx, store.DraftPendingSetKey)
	draftID := members[0]

	if err := w.HandleApproval(ctx, domain.ApprovalMessage{Action: "approve", DraftID: draftID, EditedBody: "edited body"}); err != nil {
		t.Fatalf("HandleApproval: %v", err)
	}

	draft, err := w.loadDraft(ctx, draftID)
	if err != nil {
		t.Fatalf("loadDraft: %v", err)
	}
	if draft.Status != domain.DraftExecuted {
		t.Fatalf("expected executed status after approval, got %s", draft.Status)
	}
	if draft.Body != "edited body" {
		t.Fatalf("expected edited body override applied, got %q", draft.Body)
	}

	remaining, _ := kv.SMembers(ctx, store.DraftPendingSetKey)
	if len(remaining) != 0 {
		t.Fatalf("expected draft removed from pending set, got %v", remaining)
	}
}

func TestHandleApprovalRejectMarksRejected(t *testing.T) {
	ctx := context.Background()
	w, kv, _ := newTestWorker(t, &fakeGenerator{body: "body"})

	if err := w.HandleDelegation(ctx, DelegationTask{
		TaskID: "task-5", TaskType: "cancel_appointment", Context: map[string]string{}, ApprovalRequired: true, MaxCost: 1,
	}); err != nil {
		t.Fatalf("HandleDelegation: %v", err)
	}
	members, _ := kv.SMembers(ctx, store.DraftPendingSetKey)
	draftID := members[0]

	if err := w.HandleApproval(ctx, domain.ApprovalMessage{Action: "reject", DraftID: draftID}); err != nil {
		t.Fatalf("HandleApproval: %v", err)
	}

	draft, err := w.loadDraft(ctx, draftID)
	if err != nil {
		t.Fatalf("loadDraft: %v", err)
	}
	if draft.Status != domain.DraftRejected {
		t.Fatalf("expected rejected status, got %s", draft.Status)
	}
}

func TestHandleApprovalUnknownDraftReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newTestWorker(t, &fakeGenerator{body: "body"})

	err := w.HandleApproval(ctx, domain.ApprovalMessage{Action: "approve", DraftID: "does-not-exist"})
	if err == nil {
		t.Fatal("expected error for unknown draft id")
	}
}

func TestHandleDelegationFallsBackToFailureNoticeWhenGeneratorErrors(t *testing.T) {
	ctx := context.Background()
	w, kv, _ := newTestWorker(t, &fakeGenerator{err: context.DeadlineExceeded})

	err := w.HandleDelegation(ctx, DelegationTask{
		TaskID: "task-6", TaskType: "email_reply", Context: map[string]string{}, ApprovalRequired: true, MaxCost: 1,
	})
	if err != nil {
		t.Fatalf("HandleDelegation should not surface generator errors as hard failures: %v", err)
	}
	members, _ := kv.SMembers(ctx, store.DraftPendingSetKey)
	draft, err := w.loadDraft(ctx, members[0])
	if err != nil {
		t.Fatalf("loadDraft: %v", err)
	}
	if draft.Body == "" {
		t.Fatal("expected a non-empty placeholder body noting generation failure")
	}
}
