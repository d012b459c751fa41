// Package ledger records the financial events of the platform.
//
// Every state transition that moves money appends a Transaction. Entries are
// append-only: a correction is a new Transaction, never a mutation of an
// existing one. The only permitted change after append is the status field,
// which tracks the external gateway's confirmation of the movement.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jmcale/bookpay/internal/idgen"
	"github.com/jmcale/bookpay/internal/pagination"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidAmount       = errors.New("invalid transaction amount")
	ErrDuplicateReference  = errors.New("gateway reference already recorded")
)

// Type classifies a financial event.
type Type string

const (
	TypePayment Type = "payment" // customer charge into escrow
	TypeRefund  Type = "refund"  // return to customer
	TypePayout  Type = "payout"  // transfer to provider
	TypeFee     Type = "fee"     // platform commission retained
)

// Status tracks gateway confirmation of a transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Transaction is one immutable ledger entry.
// Amount is in minor currency units and always positive; the Type field
// carries the direction.
type Transaction struct {
	ID         string    `json:"id"`
	BookingID  string    `json:"bookingId"`
	CustomerID string    `json:"customerId"`
	ProviderID string    `json:"providerId"`
	Type       Type      `json:"type"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	GatewayRef string    `json:"gatewayRef,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store persists ledger data.
type Store interface {
	Append(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByGatewayRef(ctx context.Context, ref string) (*Transaction, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Transaction, error)
	// ListByBooking returns a booking's transactions ordered by creation time
	// with ID as tie-breaker, the input for balance reconstruction. A non-nil
	// cursor restricts the result to entries after that position.
	ListByBooking(ctx context.Context, bookingID string, after *pagination.Cursor, limit int) ([]*Transaction, error)
	// SettledTotal sums payout and refund amounts for a booking, excluding
	// failed entries. The result must never exceed the authorized amount.
	SettledTotal(ctx context.Context, bookingID string) (int64, error)
}

// Ledger manages the transaction log.
type Ledger struct {
	store Store
}

// New creates a new ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record appends a transaction, assigning an ID if absent.
func (l *Ledger) Record(ctx context.Context, tx *Transaction) (*Transaction, error) {
	if tx.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if tx.ID == "" {
		tx.ID = idgen.WithPrefix("txn_")
	}
	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	if tx.Status == "" {
		tx.Status = StatusPending
	}

	if err := l.store.Append(ctx, tx); err != nil {
		return nil, err
	}
	observeTransaction(tx.Type, tx.Status)
	return tx, nil
}

// Get returns a transaction by ID.
func (l *Ledger) Get(ctx context.Context, id string) (*Transaction, error) {
	return l.store.Get(ctx, id)
}

// GetByGatewayRef returns the transaction recorded for a gateway reference.
func (l *Ledger) GetByGatewayRef(ctx context.Context, ref string) (*Transaction, error) {
	return l.store.GetByGatewayRef(ctx, ref)
}

// MarkStatus updates a transaction's gateway-confirmation status.
func (l *Ledger) MarkStatus(ctx context.Context, id string, status Status) (*Transaction, error) {
	tx, err := l.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	observeTransaction(tx.Type, status)
	return tx, nil
}

// History returns a booking's transactions in order.
func (l *Ledger) History(ctx context.Context, bookingID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.ListByBooking(ctx, bookingID, nil, limit)
}

// HistoryPage returns one page of a booking's transactions starting after the
// given cursor token, plus the token for the next page when more remain.
func (l *Ledger) HistoryPage(ctx context.Context, bookingID, cursor string, limit int) ([]*Transaction, string, bool, error) {
	if limit <= 0 {
		limit = 50
	}
	after, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", false, err
	}

	// Fetch one extra row to learn whether another page exists.
	txns, err := l.store.ListByBooking(ctx, bookingID, after, limit+1)
	if err != nil {
		return nil, "", false, err
	}
	page, next, more := pagination.Page(txns, limit, func(tx *Transaction) (time.Time, string) {
		return tx.CreatedAt, tx.ID
	})
	return page, next, more, nil
}

// SettledTotal returns the sum of non-failed payout and refund amounts for a
// booking.
func (l *Ledger) SettledTotal(ctx context.Context, bookingID string) (int64, error) {
	return l.store.SettledTotal(ctx, bookingID)
}
