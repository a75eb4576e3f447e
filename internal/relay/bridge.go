package relay

import (
	"context"
	"encoding/json"
	"log"

	"github.com/dayforge/dayforge/internal/store"
	"github.com/dayforge/dayforge/internal/streaming"
)

// EventBridge relays delegation and reminder pub/sub traffic to connected
// WebSocket clients, translating internal event names to the client
// protocol's envelope types (draft_created -> ghostworker_draft,
// task_completion -> ghost_worker_status). It is the half of the
// Orchestrator that listens instead of routes: a background task with
// explicit cancellation, the same listener shape as the Delegation Worker's
// approval loop.
type EventBridge struct {
	subscriber streaming.Subscriber
	hub        *ClientHub
}

// NewEventBridge constructs a bridge fanning subscriber's events out
// through hub.
func NewEventBridge(subscriber streaming.Subscriber, hub *ClientHub) *EventBridge {
	return &EventBridge{subscriber: subscriber, hub: hub}
}

// workerEvent is the payload shape the Delegation Worker publishes on the
// events channel.
type workerEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Run consumes the events and reminder channels until ctx is cancelled.
// Malformed messages are dropped with a warning and never terminate the
// listener.
func (b *EventBridge) Run(ctx context.Context) error {
	events, err := b.subscriber.Subscribe(ctx, store.ChannelEvents)
	if err != nil {
		return err
	}
	defer events.Close()

	reminders, err := b.subscriber.Subscribe(ctx, store.ChannelReminderEvent)
	if err != nil {
		return err
	}
	defer reminders.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events.Events():
			if !ok {
				return nil
			}
			b.relayWorkerEvent(e)
		case e, ok := <-reminders.Events():
			if !ok {
				return nil
			}
			b.relayReminder(e)
		}
	}
}

func (b *EventBridge) relayWorkerEvent(e streaming.Event) {
	var ev workerEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		log.Printf("relay: dropping malformed worker event: %v", err)
		return
	}
	switch ev.Event {
	case "draft_created":
		b.hub.Broadcast(NewEnvelope("ghostworker_draft", ev.Payload))
	case "task_completion":
		b.hub.Broadcast(NewEnvelope("ghost_worker_status", ev.Payload))
	default:
		// Unknown internal event types stay internal.
	}
}

func (b *EventBridge) relayReminder(e streaming.Event) {
	b.hub.Broadcast(NewEnvelope("reminder", json.RawMessage(e.Payload)))
}
