package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmcale/bookpay/internal/pagination"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	byID   map[string]*Transaction
	byRef  map[string]string // gateway ref -> transaction ID
	order  []string          // append order
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Transaction),
		byRef: make(map[string]string),
	}
}

func (m *MemoryStore) Append(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.GatewayRef != "" {
		if _, ok := m.byRef[tx.GatewayRef]; ok {
			return ErrDuplicateReference
		}
		m.byRef[tx.GatewayRef] = tx.ID
	}
	cp := *tx
	m.byID[tx.ID] = &cp
	m.order = append(m.order, tx.ID)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.byID[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) GetByGatewayRef(ctx context.Context, ref string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRef[ref]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.byID[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	tx.Status = status
	tx.UpdatedAt = time.Now()
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) ListByBooking(ctx context.Context, bookingID string, after *pagination.Cursor, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for _, id := range m.order {
		tx := m.byID[id]
		if tx.BookingID != bookingID {
			continue
		}
		if after != nil && !after.After(tx.CreatedAt, tx.ID) {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) SettledTotal(ctx context.Context, bookingID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, tx := range m.byID {
		if tx.BookingID != bookingID || tx.Status == StatusFailed {
			continue
		}
		if tx.Type == TypePayout || tx.Type == TypeRefund {
			total += tx.Amount
		}
	}
	return total, nil
}
