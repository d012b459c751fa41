// Package escrow owns the money state machine for a booking.
//
// Flow:
//  1. Customer books → charge authorized, funds held (manual capture)
//  2. Gateway confirms capture → booking confirmed
//  3. Service delivered → release: net amount to provider, fee kept
//  4. Problem → refund to customer, or dispute freezes the funds
//  5. Dispute resolution → unfreeze performs release, refund, or a split
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmcale/bookpay/internal/booking"
	"github.com/jmcale/bookpay/internal/gateway"
	"github.com/jmcale/bookpay/internal/ledger"
)

var (
	ErrEscrowNotFound = errors.New("escrow not found")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidState   = errors.New("invalid escrow state for this operation")
	ErrOverRelease    = errors.New("operation exceeds remaining escrow balance")
	ErrPaymentFailed  = errors.New("payment operation failed")
)

// State represents where a booking's funds are.
type State string

const (
	StateAuthorized State = "authorized" // charge placed, funds held
	StateDisputed   State = "disputed"   // frozen pending dispute resolution
	StateReleased   State = "released"   // provider paid out
	StateRefunded   State = "refunded"   // returned to customer
	StateFailed     State = "failed"     // authorization never completed
)

// Account tracks the held funds for one booking. The fee is computed once
// at authorization and never recalculated; PlatformFee + NetAmount == Amount
// holds for every account.
type Account struct {
	ID          string              `json:"id"`
	BookingID   string              `json:"bookingId"`
	CustomerID  string              `json:"customerId"`
	ProviderID  string              `json:"providerId"`
	Amount      int64               `json:"amount"`
	PlatformFee int64               `json:"platformFee"`
	NetAmount   int64               `json:"netAmount"`
	Remaining   int64               `json:"remaining"`
	Currency    string              `json:"currency"`
	CaptureMode gateway.CaptureMode `json:"captureMode"`
	GatewayRef  string              `json:"gatewayRef"`
	State       State               `json:"state"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	SettledAt   *time.Time          `json:"settledAt,omitempty"`
}

// IsTerminal returns true once the funds have finished moving.
func (a *Account) IsTerminal() bool {
	switch a.State {
	case StateReleased, StateRefunded, StateFailed:
		return true
	}
	return false
}

// ComputeFee returns the platform commission for an amount at the given
// basis-point rate, rounding half up.
func ComputeFee(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}

// Store persists escrow accounts.
type Store interface {
	Create(ctx context.Context, account *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByBooking(ctx context.Context, bookingID string) (*Account, error)
	GetByGatewayRef(ctx context.Context, ref string) (*Account, error)
	Update(ctx context.Context, account *Account) error
}

// Recorder is the slice of the ledger the escrow service needs.
type Recorder interface {
	Record(ctx context.Context, tx *ledger.Transaction) (*ledger.Transaction, error)
	MarkStatus(ctx context.Context, id string, status ledger.Status) (*ledger.Transaction, error)
	GetByGatewayRef(ctx context.Context, ref string) (*ledger.Transaction, error)
	SettledTotal(ctx context.Context, bookingID string) (int64, error)
}

// BookingStore is the slice of the booking store the escrow service needs.
type BookingStore interface {
	Get(ctx context.Context, id string) (*booking.Booking, error)
	Transition(ctx context.Context, id string, to booking.Status, from ...booking.Status) (*booking.Booking, error)
}

// EventPublisher pushes state-transition events to connected clients.
type EventPublisher interface {
	Publish(kind, bookingID string, payload any)
}

// Policy carries the money rules, injected so tests can vary them without
// touching the environment.
type Policy struct {
	CommissionBps   int64
	MinChargeAmount int64
	// FeeRefundable controls fee treatment on dispute refunds: when false,
	// the platform keeps its commission out of customer-favorable outcomes.
	FeeRefundable bool
	// DefaultCaptureMode applies when an authorize request does not name one.
	DefaultCaptureMode gateway.CaptureMode
	GatewayAttempts    int
	GatewayBackoff     time.Duration
}

// Outcome is a dispute resolution applied to frozen funds. Amounts are in
// gross units against the remaining balance; for a split, ReleaseAmount +
// RefundAmount must not exceed it.
type Outcome struct {
	Kind          OutcomeKind `json:"kind"`
	ReleaseAmount int64       `json:"releaseAmount,omitempty"`
	RefundAmount  int64       `json:"refundAmount,omitempty"`
	Note          string      `json:"note,omitempty"`
}

// OutcomeKind enumerates the terminal dispute outcomes.
type OutcomeKind string

const (
	OutcomeRelease OutcomeKind = "release"
	OutcomeRefund  OutcomeKind = "refund"
	OutcomeSplit   OutcomeKind = "split"
)

// AuthorizeRequest contains the parameters for authorizing a booking's charge.
type AuthorizeRequest struct {
	BookingID   string              `json:"-"`
	CaptureMode gateway.CaptureMode `json:"captureMode"`
}

// RefundRequest contains the parameters for refunding a booking.
type RefundRequest struct {
	Amount int64  `json:"amount"` // 0 means full remaining balance
	Reason string `json:"reason" binding:"required"`
}

func validateOutcome(o Outcome, remaining int64) (releaseGross, refundGross int64, err error) {
	switch o.Kind {
	case OutcomeRelease:
		return remaining, 0, nil
	case OutcomeRefund:
		refundGross = o.RefundAmount
		if refundGross == 0 {
			refundGross = remaining
		}
		if refundGross < 0 || refundGross > remaining {
			return 0, 0, ErrOverRelease
		}
		return 0, refundGross, nil
	case OutcomeSplit:
		if o.ReleaseAmount < 0 || o.RefundAmount < 0 {
			return 0, 0, ErrInvalidAmount
		}
		if o.ReleaseAmount+o.RefundAmount > remaining {
			return 0, 0, ErrOverRelease
		}
		return o.ReleaseAmount, o.RefundAmount, nil
	default:
		return 0, 0, fmt.Errorf("%w: unknown outcome kind %q", ErrInvalidAmount, o.Kind)
	}
}
