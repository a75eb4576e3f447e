// Package delegation implements the Delegation Worker: it turns a
// DelegationTask into a Draft via an external content-generation
// collaborator, gates execution on approval, and emits a TaskCompletion in
// every terminal case. Outbound generation calls are token-bucket rate
// limited.
package delegation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/observability"
	"github.com/dayforge/dayforge/internal/store"
	"github.com/dayforge/dayforge/internal/streaming"
)

// promptTemplate pairs a user-facing template with its system prompt, one
// per automatable task type.
type promptTemplate struct {
	user   string
	system string
}

var promptTemplates = map[string]promptTemplate{
	"email_reply": {
		user: "Reply to the email thread.\n" +
			"Recipient: {recipient}\nSubject: {subject}\nOriginal message context: {description}\nTone: {tone}\n" +
			"Write only the email body, nothing else. Match a professional, concise tone unless otherwise specified.",
		system: "You are an email assistant. Draft professional email replies matching the user's communication style. Output only the email body.",
	},
	"slack_message": {
		user: "Draft a Slack message for the channel #{channel}.\nContext: {description}\nTone: {tone}\n" +
			"Keep it conversational and brief. Write only the message text.",
		system: "You are a Slack messaging assistant. Draft brief, conversational messages appropriate for workplace channels. Output only the message.",
	},
	"linkedin_post": {
		user: "Create a LinkedIn post about the following:\n{description}\nTone: {tone}\n" +
			"Professional tone, include relevant hashtags. Write only the post content.",
		system: "You are a LinkedIn content assistant. Create engaging professional posts with relevant hashtags. Output only the post content.",
	},
	"meeting_reschedule": {
		user: "Reschedule the following meeting:\nTitle: {title}\nCurrent details: {description}\nConstraints: {constraints}\n" +
			"Draft a calendar invite message proposing new time slots. Be polite and professional.",
		system: "You are a calendar assistant. Draft polite meeting reschedule proposals with alternative time slots. Output only the message.",
	},
	"cancel_appointment": {
		user: "Cancel the following appointment:\nTitle: {title}\nReason: {description}\n" +
			"Draft a cancellation message. Be polite and offer to reschedule if appropriate.",
		system: "You are a calendar assistant. Draft polite appointment cancellation messages. Output only the message.",
	},
	"doc_update": {
		user: "Update the following document/project status:\nTitle: {title}\nUpdates: {description}\n" +
			"Write a concise status update.",
		system: "You are a documentation assistant. Write concise project status updates. Output only the update content.",
	},
}

var taskCosts = map[string]float64{
	"email_reply":        0.001,
	"slack_message":      0.001,
	"linkedin_post":      0.001,
	"meeting_reschedule": 0.01,
	"cancel_appointment": 0.01,
	"doc_update":         0.001,
}

func buildPrompt(taskType string, taskContext map[string]string) (userPrompt, systemPrompt string) {
	tmpl, ok := promptTemplates[taskType]
	if !ok {
		tmpl = promptTemplates["doc_update"]
	}
	params := map[string]string{
		"recipient":   valueOr(taskContext, "recipient", "the recipient"),
		"subject":     valueOr(taskContext, "subject", ""),
		"description": firstNonEmpty(taskContext["description"], taskContext["title"]),
		"tone":        valueOr(taskContext, "tone", "professional"),
		"channel":     valueOr(taskContext, "channel", "general"),
		"title":       valueOr(taskContext, "title", ""),
		"constraints": valueOr(taskContext, "constraints", "find the best available time"),
	}
	user := tmpl.user
	for k, v := range params {
		user = strings.ReplaceAll(user, "{"+k+"}", v)
	}
	return user, tmpl.system
}

func valueOr(m map[string]string, key, def string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DelegationTask is a unit of automatable work handed to the worker by
// STS/MTS.
type DelegationTask struct {
	TaskID           string
	TaskType         string
	Context          map[string]string
	ApprovalRequired bool
	MaxCost          float64
}

// Generator produces draft content from a system/user prompt pair.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIGenerator drafts content through an OpenAI-compatible chat model.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator constructs a Generator backed by go-openai.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIGenerator{client: openai.NewClient(apiKey), model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   400,
		Temperature: 0.6,
	})
	if err != nil {
		return "", fmt.Errorf("delegation generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("delegation generate: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// HistoryRecorder appends a draft's terminal disposition to a durable
// audit log. Implemented by *store.HistoryStore; kept as an interface here
// so this package doesn't need to import store's Postgres dependency.
type HistoryRecorder interface {
	RecordDelegationOutcome(ctx context.Context, d *domain.Draft) error
}

// Worker drives the delegation lifecycle: generate draft, gate on
// approval, execute, and report completion.
type Worker struct {
	kv        store.KV
	generator Generator
	publisher streaming.Publisher
	limiter   *rate.Limiter
	history   HistoryRecorder // optional, nil when no durable history is configured
}

// New constructs a Worker rate-limited at r requests/sec with burst b.
func New(kv store.KV, generator Generator, publisher streaming.Publisher, r float64, burst int) *Worker {
	return &Worker{kv: kv, generator: generator, publisher: publisher, limiter: rate.NewLimiter(rate.Limit(r), burst)}
}

// SetHistory installs an optional durable history recorder.
func (w *Worker) SetHistory(h HistoryRecorder) { w.history = h }

// HandleDelegation generates a draft for task and either executes it
// immediately (approval not required) or stores it pending approval.
func (w *Worker) HandleDelegation(ctx context.Context, task DelegationTask) error {
	if !w.limiter.Allow() {
		return domain.NewError(domain.ErrCapacity, "delegation rate limit exceeded")
	}

	userPrompt, systemPrompt := buildPrompt(task.TaskType, task.Context)
	body, err := w.generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		body = fmt.Sprintf("(draft generation failed: %v)", err)
	}

	cost := taskCosts[task.TaskType]
	if cost > task.MaxCost && task.MaxCost > 0 {
		cost = task.MaxCost
	}

	now := time.Now()
	draft := &domain.Draft{
		ID:        "draft-" + uuid.NewString()[:8],
		TaskID:    task.TaskID,
		TaskType:  task.TaskType,
		Recipient: task.Context["recipient"],
		Channel:   task.Context["channel"],
		Subject:   task.Context["subject"],
		Body:      body,
		Status:    domain.DraftPending,
		CostUnits: cost,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if !task.ApprovalRequired {
		result := w.execute(ctx, draft, "")
		w.emitCompletion(ctx, result)
		return nil
	}

	if err := w.storeDraft(ctx, draft); err != nil {
		return err
	}
	w.publishEvent(ctx, "draft_created", draft)
	return nil
}

func (w *Worker) storeDraft(ctx context.Context, d *domain.Draft) error {
	fields := map[string]string{
		"id":         d.ID,
		"task_id":    d.TaskID,
		"task_type":  d.TaskType,
		"recipient":  d.Recipient,
		"channel":    d.Channel,
		"subject":    d.Subject,
		"body":       d.Body,
		"status":     string(d.Status),
		"cost_units": strconv.FormatFloat(d.CostUnits, 'f', -1, 64),
		"created_at": d.CreatedAt.Format(time.RFC3339),
		"updated_at": d.UpdatedAt.Format(time.RFC3339),
	}
	if err := w.kv.HSet(ctx, store.DraftKey(d.ID), fields); err != nil {
		return err
	}
	return w.kv.SAdd(ctx, store.DraftPendingSetKey, d.ID)
}

func (w *Worker) loadDraft(ctx context.Context, id string) (*domain.Draft, error) {
	fields, err := w.kv.HGetAll(ctx, store.DraftKey(id))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.NewError(domain.ErrNotFound, "draft not found: "+id)
	}
	cost, _ := strconv.ParseFloat(fields["cost_units"], 64)
	createdAt, _ := time.Parse(time.RFC3339, fields["created_at"])
	return &domain.Draft{
		ID:        fields["id"],
		TaskID:    fields["task_id"],
		TaskType:  fields["task_type"],
		Recipient: fields["recipient"],
		Channel:   fields["channel"],
		Subject:   fields["subject"],
		Body:      fields["body"],
		Status:    domain.DraftStatus(fields["status"]),
		CostUnits: cost,
		CreatedAt: createdAt,
		UpdatedAt: time.Now(),
	}, nil
}

// execute marks a draft executed; no path in this worker marks a draft
// failed (a generation error leaves a placeholder body on the draft
// instead). Draft delivery through real
// external channels (sending the email, posting to Slack) is outside this
// worker's scope, so "executed" here means the generated
// content is finalized and handed off for audit.
func (w *Worker) execute(ctx context.Context, d *domain.Draft, bodyOverride string) domain.TaskCompletion {
	if bodyOverride != "" {
		d.Body = bodyOverride
	}
	d.Status = domain.DraftExecuted
	d.UpdatedAt = time.Now()

	observability.DraftsTotal.WithLabelValues(string(domain.DraftExecuted)).Inc()
	observability.DelegationCostUnits.Add(d.CostUnits)

	if w.history != nil {
		if err := w.history.RecordDelegationOutcome(ctx, d); err != nil {
			log.Printf("delegation: failed to record history for draft %s: %v", d.ID, err)
		}
	}

	return domain.TaskCompletion{
		TaskID:    d.TaskID,
		Status:    "executed",
		Result:    d.Body,
		CostUnits: d.CostUnits,
	}
}

// LoadDraft returns the draft stored under id, for the drafts detail
// endpoint.
func (w *Worker) LoadDraft(ctx context.Context, id string) (*domain.Draft, error) {
	return w.loadDraft(ctx, id)
}

// ListPending returns every draft currently awaiting approval.
func (w *Worker) ListPending(ctx context.Context) ([]*domain.Draft, error) {
	ids, err := w.kv.SMembers(ctx, store.DraftPendingSetKey)
	if err != nil {
		return nil, err
	}
	drafts := make([]*domain.Draft, 0, len(ids))
	for _, id := range ids {
		d, err := w.loadDraft(ctx, id)
		if err != nil {
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// HandleApproval applies an ApprovalMessage to a pending draft, executing
// on approve and marking rejected otherwise, in both cases emitting the
// terminal TaskCompletion.
func (w *Worker) HandleApproval(ctx context.Context, msg domain.ApprovalMessage) error {
	draft, err := w.loadDraft(ctx, msg.DraftID)
	if err != nil {
		return err
	}

	var completion domain.TaskCompletion
	switch msg.Action {
	case "approve":
		completion = w.execute(ctx, draft, msg.EditedBody)
	case "reject":
		draft.Status = domain.DraftRejected
		draft.UpdatedAt = time.Now()
		observability.DraftsTotal.WithLabelValues(string(domain.DraftRejected)).Inc()
		completion = domain.TaskCompletion{TaskID: draft.TaskID, Status: "rejected", Result: "rejected by user"}
	default:
		return domain.NewError(domain.ErrInvalidInput, "unknown approval action: "+msg.Action)
	}

	if err := w.storeDraft(ctx, draft); err != nil {
		return err
	}
	if err := w.kv.SRem(ctx, store.DraftPendingSetKey, draft.ID); err != nil {
		return err
	}
	w.emitCompletion(ctx, completion)
	return nil
}

// DeleteDraft removes a draft record and its pending-set membership. A
// missing draft is not_found; terminal drafts can be deleted too, which is
// how executed/rejected records are pruned.
func (w *Worker) DeleteDraft(ctx context.Context, id string) error {
	if _, err := w.loadDraft(ctx, id); err != nil {
		return err
	}
	if err := w.kv.SRem(ctx, store.DraftPendingSetKey, id); err != nil {
		return err
	}
	return w.kv.Del(ctx, store.DraftKey(id))
}

// PollApprovals subscribes to the approvals pub/sub channel and applies
// each ApprovalMessage as it arrives until ctx is cancelled.
func (w *Worker) PollApprovals(ctx context.Context) error {
	sub, err := w.kv.Subscribe(ctx, store.ChannelApprovals)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			var msg domain.ApprovalMessage
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				log.Printf("delegation: dropping malformed approval message: %v", err)
				continue
			}
			if err := w.HandleApproval(ctx, msg); err != nil {
				log.Printf("delegation: approval handling failed for draft %s: %v", msg.DraftID, err)
			}
		}
	}
}

func (w *Worker) publishEvent(ctx context.Context, eventType string, payload interface{}) {
	if err := w.publisher.Publish(ctx, store.ChannelEvents, map[string]interface{}{"event": eventType, "payload": payload}); err != nil {
		log.Printf("delegation: publish %s failed: %v", eventType, err)
	}
}

func (w *Worker) emitCompletion(ctx context.Context, completion domain.TaskCompletion) {
	w.publishEvent(ctx, "task_completion", completion)
}
