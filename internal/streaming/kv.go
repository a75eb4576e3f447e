package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dayforge/dayforge/internal/store"
)

// KVPublisher publishes through the KV substrate's pub/sub channels
// (approvals, events, reminder:events).
type KVPublisher struct {
	kv     store.KV
	source string
}

// NewKVPublisher constructs a Publisher/Subscriber backed by kv, tagging
// every published Event with source (e.g. "orchestrator").
func NewKVPublisher(kv store.KV, source string) *KVPublisher {
	return &KVPublisher{kv: kv, source: source}
}

func (p *KVPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for topic %s: %w", topic, err)
	}
	event := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   data,
		Timestamp: time.Now(),
		Source:    p.source,
	}
	envelope, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.kv.Publish(ctx, topic, string(envelope))
}

func (p *KVPublisher) Close() error { return nil }

// Subscribe opens a Subscription on topic, decoding Events as they arrive
// and dropping malformed messages rather than terminating the listener.
func (p *KVPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub, err := p.kv.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	events := make(chan Event, 32)
	s := &kvSubscription{sub: sub, events: events}
	go s.pump()
	return s, nil
}

type kvSubscription struct {
	sub    store.Subscription
	events chan Event
}

func (s *kvSubscription) pump() {
	defer close(s.events)
	for raw := range s.sub.Messages() {
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			// Malformed pub/sub payload: dropped, listener keeps running.
			continue
		}
		s.events <- e
	}
}

func (s *kvSubscription) Events() <-chan Event { return s.events }

func (s *kvSubscription) Close() error { return s.sub.Close() }
