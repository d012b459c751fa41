package webhook

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory processed-event record for demo mode.
type MemoryStore struct {
	seen map[string]Kind
	mu   sync.Mutex
}

// NewMemoryStore creates a new in-memory dedup store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]Kind)}
}

func (m *MemoryStore) Seen(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[eventID]
	return ok, nil
}

func (m *MemoryStore) MarkProcessed(ctx context.Context, eventID string, kind Kind, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return ErrDuplicateEvent
	}
	m.seen[eventID] = kind
	return nil
}
