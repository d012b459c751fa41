package escrow

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory escrow store for demo/development mode.
type MemoryStore struct {
	byID      map[string]*Account
	byBooking map[string]string
	byRef     map[string]string
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Account),
		byBooking: make(map[string]string),
		byRef:     make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *account
	m.byID[account.ID] = &cp
	m.byBooking[account.BookingID] = account.ID
	if account.GatewayRef != "" {
		m.byRef[account.GatewayRef] = account.ID
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyOf(id)
}

func (m *MemoryStore) GetByBooking(ctx context.Context, bookingID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byBooking[bookingID]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return m.copyOf(id)
}

func (m *MemoryStore) GetByGatewayRef(ctx context.Context, ref string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRef[ref]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return m.copyOf(id)
}

func (m *MemoryStore) Update(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[account.ID]; !ok {
		return ErrEscrowNotFound
	}
	cp := *account
	m.byID[account.ID] = &cp
	return nil
}

func (m *MemoryStore) copyOf(id string) (*Account, error) {
	account, ok := m.byID[id]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	cp := *account
	return &cp, nil
}
