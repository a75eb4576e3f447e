// Package poller implements the Context Poller: one ticker-driven source
// monitor per external signal (calendar, mail, chat) that diffs the
// current snapshot against the last cached one and emits
// domain.ContextChangeEvents.
package poller

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/observability"
	"github.com/dayforge/dayforge/internal/store"
)

// CalendarEvent is one source calendar event as the poller observes it.
type CalendarEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// EmailMessage is one source email message.
type EmailMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Urgent  bool   `json:"urgent"`
}

// ChatMessage is one source chat message.
type ChatMessage struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
}

// urgentKeywords is the default urgency keyword set for chat messages.
var urgentKeywords = []string{"urgent", "asap", "deadline", "blocked", "critical", "p0", "hotfix"}

// Fetcher retrieves the current snapshot for one source. Implementations
// wrap whatever upstream API (calendar, mail, chat) the deployment wires in.
type Fetcher interface {
	FetchCalendar(ctx context.Context) ([]CalendarEvent, error)
	FetchEmail(ctx context.Context) ([]EmailMessage, error)
	FetchChat(ctx context.Context) ([]ChatMessage, error)
}

// Sink receives classified-ready ContextChangeEvents for downstream
// dispatch to the Disruption Classifier.
type Sink interface {
	Emit(ctx context.Context, event domain.ContextChangeEvent)
}

// NoopFetcher is the production-default Fetcher: it always returns empty
// snapshots. Real calendar/mail/chat connectors live outside this process;
// disruption events arrive as plain structured input over POST /disruption
// instead. Wiring this keeps the three poll loops alive and observable
// without fabricating a fake upstream integration.
type NoopFetcher struct{}

func (NoopFetcher) FetchCalendar(ctx context.Context) ([]CalendarEvent, error) { return nil, nil }
func (NoopFetcher) FetchEmail(ctx context.Context) ([]EmailMessage, error)     { return nil, nil }
func (NoopFetcher) FetchChat(ctx context.Context) ([]ChatMessage, error)       { return nil, nil }

// breakerState tracks a source's circuit breaker position.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerHalfOpen
	breakerOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerHalfOpen:
		return "half_open"
	case breakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// circuitBreaker trips a source's polling loop into backoff after repeated
// upstream failures, closing again once testLimit half-open probes succeed.
type circuitBreaker struct {
	state            breakerState
	failureThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	consecutiveFails int
	testLimit        int
	testCount        int
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{
		state:            breakerClosed,
		failureThreshold: 3,
		cooldown:         30 * time.Second,
		testLimit:        2,
	}
}

func (cb *circuitBreaker) shouldAdmit() bool {
	if cb.state == breakerOpen && time.Since(cb.openedAt) > cb.cooldown {
		cb.state = breakerHalfOpen
		cb.testCount = 0
	}
	if cb.state == breakerHalfOpen {
		return cb.testCount < cb.testLimit
	}
	return cb.state == breakerClosed
}

func (cb *circuitBreaker) recordSuccess() {
	cb.consecutiveFails = 0
	switch cb.state {
	case breakerHalfOpen:
		cb.testCount++
		if cb.testCount >= cb.testLimit {
			cb.state = breakerClosed
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.consecutiveFails++
	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		cb.openedAt = time.Now()
		cb.testCount = 0
		return
	}
	if cb.consecutiveFails >= cb.failureThreshold {
		cb.state = breakerOpen
		cb.openedAt = time.Now()
	}
}

// Poller runs one ticker loop per source, diffing snapshots and emitting
// events through sink.
type Poller struct {
	kv      store.KV
	fetcher Fetcher
	sink    Sink

	calendarInterval time.Duration
	mailInterval     time.Duration
	chatInterval     time.Duration

	breakers map[string]*circuitBreaker
}

// New constructs a Poller wired to fetcher and kv, emitting through sink.
func New(kv store.KV, fetcher Fetcher, sink Sink, calendarInterval, mailInterval, chatInterval time.Duration) *Poller {
	return &Poller{
		kv:               kv,
		fetcher:          fetcher,
		sink:             sink,
		calendarInterval: calendarInterval,
		mailInterval:     mailInterval,
		chatInterval:     chatInterval,
		breakers: map[string]*circuitBreaker{
			"calendar": newCircuitBreaker(),
			"mail":     newCircuitBreaker(),
			"chat":     newCircuitBreaker(),
		},
	}
}

// Start launches the three source loops as goroutines.
func (p *Poller) Start(ctx context.Context) {
	go p.loop(ctx, "calendar", p.calendarInterval, p.pollCalendar)
	go p.loop(ctx, "mail", p.mailInterval, p.pollMail)
	go p.loop(ctx, "chat", p.chatInterval, p.pollChat)
}

func (p *Poller) loop(ctx context.Context, source string, interval time.Duration, poll func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("poller: starting %s loop (interval=%v)", source, interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			breaker := p.breakers[source]
			if !breaker.shouldAdmit() {
				observability.PollerCircuitState.WithLabelValues(source).Set(float64(breaker.state))
				continue
			}
			if err := poll(ctx); err != nil {
				log.Printf("poller: %s poll failed: %v", source, err)
				breaker.recordFailure()
				observability.PollerCycles.WithLabelValues(source, "error").Inc()
			} else {
				breaker.recordSuccess()
				observability.PollerCycles.WithLabelValues(source, "ok").Inc()
			}
			observability.PollerCircuitState.WithLabelValues(source).Set(float64(breaker.state))
		}
	}
}

func (p *Poller) pollCalendar(ctx context.Context) error {
	current, err := p.fetcher.FetchCalendar(ctx)
	if err != nil {
		return err
	}

	cacheKey := store.SentinelKey("calendar")
	raw, found, err := p.kv.Get(ctx, cacheKey)
	if err != nil {
		return err
	}

	if !found {
		return p.cacheCalendar(ctx, cacheKey, current)
	}

	var cached []CalendarEvent
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return p.cacheCalendar(ctx, cacheKey, current)
	}

	for _, event := range detectCalendarChanges(current, cached, p.activeTaskPreferredStarts(ctx)) {
		p.sink.Emit(ctx, event)
	}
	return p.cacheCalendar(ctx, cacheKey, current)
}

func (p *Poller) cacheCalendar(ctx context.Context, key string, events []CalendarEvent) error {
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return p.kv.Set(ctx, key, string(data), 0)
}

func (p *Poller) pollMail(ctx context.Context) error {
	current, err := p.fetcher.FetchEmail(ctx)
	if err != nil {
		return err
	}

	cacheKey := store.SentinelKey("mail")
	raw, found, err := p.kv.Get(ctx, cacheKey)
	if err != nil {
		return err
	}
	if !found {
		return p.cacheJSON(ctx, cacheKey, current)
	}

	var cached []EmailMessage
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return p.cacheJSON(ctx, cacheKey, current)
	}

	for _, event := range detectEmailChanges(current, cached) {
		p.sink.Emit(ctx, event)
	}
	return p.cacheJSON(ctx, cacheKey, current)
}

func (p *Poller) pollChat(ctx context.Context) error {
	current, err := p.fetcher.FetchChat(ctx)
	if err != nil {
		return err
	}

	cacheKey := store.SentinelKey("chat")
	raw, found, err := p.kv.Get(ctx, cacheKey)
	if err != nil {
		return err
	}
	if !found {
		return p.cacheJSON(ctx, cacheKey, current)
	}

	var cached []ChatMessage
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return p.cacheJSON(ctx, cacheKey, current)
	}

	for _, event := range detectChatChanges(current, cached) {
		p.sink.Emit(ctx, event)
	}
	return p.cacheJSON(ctx, cacheKey, current)
}

func (p *Poller) cacheJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.kv.Set(ctx, key, string(data), 0)
}

// activeTaskPreferredStarts pulls every active task's preferred_start for
// the affected-task lookup in detectCalendarChanges, mirroring
// _find_affected_tasks.
func (p *Poller) activeTaskPreferredStarts(ctx context.Context) map[string]string {
	ids, err := p.kv.SMembers(ctx, store.ActiveKey)
	if err != nil {
		return nil
	}
	starts := make(map[string]string, len(ids))
	for _, id := range ids {
		fields, err := p.kv.HGetAll(ctx, store.TaskKey(id))
		if err != nil || fields == nil {
			continue
		}
		if ps, ok := fields["preferred_start"]; ok && ps != "" {
			starts[id] = ps
		}
	}
	return starts
}

func findAffectedTasks(start, end string, preferredStarts map[string]string) []string {
	var affected []string
	if start == "" || end == "" {
		return affected
	}
	for id, ps := range preferredStarts {
		if ps >= start && ps <= end {
			affected = append(affected, id)
		}
	}
	return affected
}

// detectCalendarChanges diffs the current calendar snapshot against the
// cached one by event id: new, cancelled, shortened, and shifted events
// each produce their own event type.
func detectCalendarChanges(current, cached []CalendarEvent, preferredStarts map[string]string) []domain.ContextChangeEvent {
	var events []domain.ContextChangeEvent
	now := time.Now()

	cachedByID := make(map[string]CalendarEvent, len(cached))
	for _, e := range cached {
		cachedByID[e.ID] = e
	}
	currentByID := make(map[string]CalendarEvent, len(current))
	for _, e := range current {
		currentByID[e.ID] = e
	}

	for id, event := range currentByID {
		if id == "" {
			continue
		}
		if _, ok := cachedByID[id]; !ok {
			events = append(events, domain.ContextChangeEvent{
				EventType: domain.EventNewCalendarEvent,
				Source:    "calendar",
				Timestamp: now,
				Metadata:  map[string]any{"event_id": id, "title": event.Title, "start": event.Start, "end": event.End},
			})
		}
	}

	for id, cachedEvent := range cachedByID {
		cur, stillPresent := currentByID[id]
		if stillPresent {
			if cur.Start != cachedEvent.Start || cur.End != cachedEvent.End {
				eventType := domain.EventScheduleConflict
				if cachedEvent.End != "" && cur.End != "" && cur.End < cachedEvent.End {
					eventType = domain.EventMeetingEndedEarly
				}
				affected := findAffectedTasks(cur.Start, cur.End, preferredStarts)
				events = append(events, domain.ContextChangeEvent{
					EventType:       eventType,
					Source:          "calendar",
					Timestamp:       now,
					AffectedTaskIDs: affected,
					Metadata: map[string]any{
						"event_id": id, "title": cur.Title,
						"old_start": cachedEvent.Start, "old_end": cachedEvent.End,
						"new_start": cur.Start, "new_end": cur.End,
					},
				})
			}
		} else {
			affected := findAffectedTasks(cachedEvent.Start, cachedEvent.End, preferredStarts)
			events = append(events, domain.ContextChangeEvent{
				EventType:       domain.EventCancelledMeeting,
				Source:          "calendar",
				Timestamp:       now,
				AffectedTaskIDs: affected,
				Metadata:        map[string]any{"event_id": id, "title": cachedEvent.Title},
			})
		}
	}

	return events
}

// detectEmailChanges turns ids new relative to the cache into new_email
// events.
func detectEmailChanges(current, cached []EmailMessage) []domain.ContextChangeEvent {
	cachedIDs := make(map[string]struct{}, len(cached))
	for _, m := range cached {
		cachedIDs[m.ID] = struct{}{}
	}

	var events []domain.ContextChangeEvent
	now := time.Now()
	for _, msg := range current {
		if msg.ID == "" {
			continue
		}
		if _, ok := cachedIDs[msg.ID]; ok {
			continue
		}
		events = append(events, domain.ContextChangeEvent{
			EventType: domain.EventNewEmail,
			Source:    "gmail",
			Timestamp: now,
			Metadata:  map[string]any{"message_id": msg.ID, "subject": msg.Subject, "from": msg.From, "urgent": msg.Urgent},
		})
	}
	return events
}

// detectChatChanges surfaces new messages only when they hit a configured
// urgency keyword or carry a mention marker.
func detectChatChanges(current, cached []ChatMessage) []domain.ContextChangeEvent {
	cachedIDs := make(map[string]struct{}, len(cached))
	for _, m := range cached {
		cachedIDs[m.ID] = struct{}{}
	}

	var events []domain.ContextChangeEvent
	now := time.Now()
	for _, msg := range current {
		if msg.ID == "" {
			continue
		}
		if _, ok := cachedIDs[msg.ID]; ok {
			continue
		}
		textLower := strings.ToLower(msg.Text)
		isUrgent := false
		for _, kw := range urgentKeywords {
			if strings.Contains(textLower, kw) {
				isUrgent = true
				break
			}
		}
		hasMention := strings.Contains(msg.Text, "@")
		if !isUrgent && !hasMention {
			continue
		}
		events = append(events, domain.ContextChangeEvent{
			EventType: domain.EventSlackUrgentMessage,
			Source:    "slack",
			Timestamp: now,
			Metadata: map[string]any{
				"message_id": msg.ID, "channel": msg.Channel, "user": msg.User,
				"text": msg.Text, "urgent": isUrgent, "has_mention": hasMention,
			},
		})
	}
	return events
}
