// Package booking holds the booking record and its status transitions.
//
// A booking's financial state is owned by the escrow lifecycle: bookings are
// created by the booking flow, but every status change after creation goes
// through a conditional transition keyed on the current status, so concurrent
// operations on the same booking cannot both win.
package booking

import (
	"context"
	"errors"
	"time"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrInvalidState    = errors.New("invalid booking state for this operation")
	ErrDuplicateID     = errors.New("booking already exists")
)

// Status represents the state of a booking.
type Status string

const (
	StatusPending   Status = "pending"   // Created, charge authorization in flight
	StatusConfirmed Status = "confirmed" // Charge captured, funds held in escrow
	StatusCompleted Status = "completed" // Funds released to provider
	StatusCancelled Status = "cancelled" // Authorization failed or booking cancelled
	StatusDisputed  Status = "disputed"  // Frozen pending dispute resolution
	StatusRefunded  Status = "refunded"  // Funds returned to customer
)

// Booking represents a scheduled service engagement.
// Amount is always expressed in minor currency units (cents).
type Booking struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	ProviderID string    `json:"providerId"`
	ServiceID  string    `json:"serviceId"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IsTerminal returns true if the booking is in a final state.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Store persists booking data.
//
// Transition moves a booking from one of the expected statuses to the target
// status. It fails with ErrInvalidState when the stored status is not in the
// expected set; this is the serialization point for racing operations.
type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	Transition(ctx context.Context, id string, to Status, from ...Status) (*Booking, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Booking, error)
	ListByProvider(ctx context.Context, providerID string, limit int) ([]*Booking, error)
}
