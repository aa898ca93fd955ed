// Package cache keeps rendered read-path pages for a short TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Cache stores JSON-encodable values under string keys.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	// Invalidate drops every cached page. Called after ingestion writes.
	Invalidate(ctx context.Context) error
	Close() error
}

// Noop never hits. Used when no cache is configured.
type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, any) error         { return nil }
func (Noop) Invalidate(context.Context) error               { return nil }
func (Noop) Close() error                                   { return nil }

type memEntry struct {
	data    []byte
	expires time.Time
}

// Memory is an in-process cache, for tests and single-node runs.
type Memory struct {
	mu   sync.Mutex
	data map[string]memEntry
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory creates an in-process cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{data: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	e, ok := m.data[key]
	if ok && m.ttl > 0 && m.now().After(e.expires) {
		delete(m.data, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	m.mu.Lock()
	m.data[key] = memEntry{data: data, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(context.Context) error {
	m.mu.Lock()
	m.data = make(map[string]memEntry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
