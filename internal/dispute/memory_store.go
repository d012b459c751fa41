package dispute

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory dispute store for demo/development mode.
type MemoryStore struct {
	byID       map[string]*Dispute
	activeByBk map[string]string // bookingID -> active dispute ID
	evidence   map[string][]*Evidence
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory dispute store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*Dispute),
		activeByBk: make(map[string]string),
		evidence:   make(map[string][]*Evidence),
	}
}

func (m *MemoryStore) Create(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.activeByBk[d.BookingID]; ok {
		return ErrDisputeActive
	}
	cp := *d
	m.byID[d.ID] = &cp
	m.activeByBk[d.BookingID] = d.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.byID[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) GetActiveByBooking(ctx context.Context, bookingID string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.activeByBk[bookingID]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[d.ID]; !ok {
		return ErrDisputeNotFound
	}
	cp := *d
	m.byID[d.ID] = &cp
	if d.Status == StatusResolved {
		delete(m.activeByBk, d.BookingID)
	}
	return nil
}

func (m *MemoryStore) AddEvidence(ctx context.Context, e *Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[e.DisputeID]; !ok {
		return ErrDisputeNotFound
	}
	cp := *e
	m.evidence[e.DisputeID] = append(m.evidence[e.DisputeID], &cp)
	return nil
}

func (m *MemoryStore) ListEvidence(ctx context.Context, disputeID string) ([]*Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.evidence[disputeID]
	result := make([]*Evidence, 0, len(entries))
	for _, e := range entries {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) ListDeadlinePassed(ctx context.Context, before time.Time, limit int) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Dispute
	for _, d := range m.byID {
		if (d.Status == StatusInitiated || d.Status == StatusEvidenceCollection) &&
			d.EvidenceDeadline.Before(before) {
			cp := *d
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EvidenceDeadline.Before(result[j].EvidenceDeadline)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListUnsettled(ctx context.Context, limit int) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Dispute
	for _, d := range m.byID {
		if d.Outcome != nil && d.Status != StatusResolved {
			cp := *d
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}
