package events

import (
	"context"
	"sync"
	"time"
)

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory append-only event log.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
	nextID int64
}

// NewMemoryStore creates an in-memory event log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	cp.ID = s.nextID
	s.nextID++
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.events = append(s.events, &cp)
	e.ID = cp.ID
	return nil
}

func (s *MemoryStore) List(_ context.Context, start, count int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return window(s.events, start, count), nil
}

func (s *MemoryStore) ListByType(_ context.Context, t Type, start, count int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*Event
	for _, e := range s.events {
		if e.Type == t {
			filtered = append(filtered, e)
		}
	}
	return window(filtered, start, count), nil
}

func window(all []*Event, start, count int) []*Event {
	if start < 0 || start >= len(all) || count <= 0 {
		return nil
	}
	end := start + count
	if end > len(all) {
		end = len(all)
	}
	out := make([]*Event, 0, end-start)
	for _, e := range all[start:end] {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
