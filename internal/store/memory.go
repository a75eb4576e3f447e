package store

import (
	"context"
	"sync"
	"time"
)

// MemoryKV is an in-process KV substrate for local dev and tests that
// don't want a live Redis.
type MemoryKV struct {
	mu sync.RWMutex

	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	strings map[string]stringEntry
	lists   map[string][]string

	subsMu sync.Mutex
	subs   map[string][]chan string
}

type stringEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

// NewMemoryKV constructs an empty in-memory substrate.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		strings: make(map[string]stringEntry),
		lists:   make(map[string][]string),
		subs:    make(map[string][]chan string),
	}
}

func (m *MemoryKV) HSet(ctx context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *MemoryKV) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hashes[key]
	if !ok {
		return map[string]string{}, nil
	}
	cp := make(map[string]string, len(h))
	for k, v := range h {
		cp[k] = v
	}
	return cp, nil
}

func (m *MemoryKV) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, key)
	delete(m.sets, key)
	delete(m.strings, key)
	delete(m.lists, key)
	return nil
}

func (m *MemoryKV) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

func (m *MemoryKV) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(s, mem)
	}
	return nil
}

func (m *MemoryKV) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sets[key]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(s))
	for mem := range s {
		out = append(out, mem)
	}
	return out, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := stringEntry{value: value}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	m.strings[key] = entry
	return nil
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.strings[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.strings, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryKV) RPush(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], value)
	return nil
}

func (m *MemoryKV) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.lists[key]
	n := int64(len(l))
	if n == 0 {
		return nil, nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	cp := make([]string, stop-start+1)
	copy(cp, l[start:stop+1])
	return cp, nil
}

func (m *MemoryKV) LTrimFront(ctx context.Context, key string, maxLen int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	if int64(len(l)) > maxLen {
		m.lists[key] = append([]string(nil), l[int64(len(l))-maxLen:]...)
	}
	return nil
}

func (m *MemoryKV) Publish(ctx context.Context, channel, payload string) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs[channel] {
		select {
		case ch <- payload:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
	return nil
}

func (m *MemoryKV) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ch := make(chan string, 32)
	m.subsMu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.subsMu.Unlock()
	return &memSubscription{kv: m, channel: channel, ch: ch}, nil
}

func (m *MemoryKV) MoveTaskStatus(ctx context.Context, taskID string, oldBucket, newBucket int, oldStatusKey, newStatusKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sets[BucketKey(oldBucket)]; ok {
		delete(s, taskID)
	}
	nb, ok := m.sets[BucketKey(newBucket)]
	if !ok {
		nb = make(map[string]struct{})
		m.sets[BucketKey(newBucket)] = nb
	}
	nb[taskID] = struct{}{}

	if s, ok := m.sets[oldStatusKey]; ok {
		delete(s, taskID)
	}
	ns, ok := m.sets[newStatusKey]
	if !ok {
		ns = make(map[string]struct{})
		m.sets[newStatusKey] = ns
	}
	ns[taskID] = struct{}{}
	return nil
}

type memSubscription struct {
	kv      *MemoryKV
	channel string
	ch      chan string
}

func (s *memSubscription) Messages() <-chan string { return s.ch }

func (s *memSubscription) Close() error {
	s.kv.subsMu.Lock()
	defer s.kv.subsMu.Unlock()
	subs := s.kv.subs[s.channel]
	for i, ch := range subs {
		if ch == s.ch {
			s.kv.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(s.ch)
	return nil
}
