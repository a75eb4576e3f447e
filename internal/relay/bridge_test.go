package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dayforge/dayforge/internal/store"
	"github.com/dayforge/dayforge/internal/streaming"
)

func waitForEnvelope(t *testing.T, hub *ClientHub, wantType string) Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-hub.broadcast:
			if env.Type == wantType {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q envelope", wantType)
		}
	}
}

func TestBridgeRelaysDraftCreated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := store.NewMemoryKV()
	pub := streaming.NewKVPublisher(kv, "delegation")
	hub := NewClientHub(8, time.Minute)

	bridge := NewEventBridge(pub, hub)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			t.Errorf("bridge run: %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond) // let the subscriptions attach

	err := pub.Publish(ctx, store.ChannelEvents, map[string]interface{}{
		"event":   "draft_created",
		"payload": map[string]string{"id": "draft-1"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	env := waitForEnvelope(t, hub, "ghostworker_draft")
	raw, ok := env.Payload.(json.RawMessage)
	if !ok {
		t.Fatalf("payload type %T, want json.RawMessage", env.Payload)
	}
	var draft map[string]string
	if err := json.Unmarshal(raw, &draft); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if draft["id"] != "draft-1" {
		t.Fatalf("payload = %+v", draft)
	}
}

func TestBridgeRelaysCompletionAndReminder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := store.NewMemoryKV()
	pub := streaming.NewKVPublisher(kv, "delegation")
	hub := NewClientHub(8, time.Minute)

	bridge := NewEventBridge(pub, hub)
	go bridge.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	err := pub.Publish(ctx, store.ChannelEvents, map[string]interface{}{
		"event":   "task_completion",
		"payload": map[string]string{"task_id": "t1", "status": "executed"},
	})
	if err != nil {
		t.Fatalf("Publish completion: %v", err)
	}
	waitForEnvelope(t, hub, "ghost_worker_status")

	if err := pub.Publish(ctx, store.ChannelReminderEvent, map[string]string{"message": "stand up"}); err != nil {
		t.Fatalf("Publish reminder: %v", err)
	}
	waitForEnvelope(t, hub, "reminder")
}
