// Package webhook ingests payment gateway events. Every event is signature
// verified, deduplicated by its gateway event ID, and only then applied to
// the escrow state machine. Redelivery of a processed event is a no-op.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrDuplicateEvent   = errors.New("event already processed")
)

// Kind identifies the gateway event types the system reacts to. Anything
// else is logged and ignored, never applied as a state transition.
type Kind string

const (
	KindPaymentSucceeded Kind = "payment.succeeded"
	KindPaymentFailed    Kind = "payment.failed"
	KindChargeRefunded   Kind = "charge.refunded"
	KindPayoutCreated    Kind = "payout.created"
	KindPayoutPaid       Kind = "payout.paid"
	KindPayoutFailed     Kind = "payout.failed"
	KindAccountUpdated   Kind = "account.updated"
	KindUnknown          Kind = "unknown"
)

// Event is a verified, normalized gateway event.
type Event struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	GatewayRef string          `json:"gatewayRef"`
	Raw        json.RawMessage `json:"-"`
}

// Verifier authenticates a raw webhook delivery and normalizes it.
type Verifier interface {
	Verify(payload []byte, signature string) (*Event, error)
}

// Store remembers which gateway event IDs have been applied.
type Store interface {
	// Seen reports whether the event ID has already been processed.
	Seen(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed records the event ID. Returns ErrDuplicateEvent if a
	// concurrent delivery got there first.
	MarkProcessed(ctx context.Context, eventID string, kind Kind, at time.Time) error
}
