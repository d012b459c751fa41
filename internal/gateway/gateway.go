// Package gateway abstracts the external payment processor. The escrow
// service talks to this interface only; the Stripe adapter and the in-memory
// fake both satisfy it.
package gateway

import (
	"context"
	"errors"
)

var (
	ErrChargeDeclined     = errors.New("charge declined")
	ErrChargeNotFound     = errors.New("charge not found")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// CaptureMode controls when an authorized charge is actually captured.
type CaptureMode string

const (
	// CaptureManual authorizes only; funds are captured by a later
	// explicit confirmation.
	CaptureManual CaptureMode = "manual"
	// CaptureAutomatic captures immediately at authorization time.
	CaptureAutomatic CaptureMode = "automatic"
)

// AuthorizeRequest places a hold on the customer's payment method.
type AuthorizeRequest struct {
	BookingID      string
	CustomerID     string
	Amount         int64 // minor currency units
	Currency       string
	CaptureMode    CaptureMode
	IdempotencyKey string
}

// Charge is the gateway's view of a payment.
type Charge struct {
	Ref      string // gateway reference, e.g. a PaymentIntent ID
	Amount   int64
	Currency string
	Captured bool
}

// TransferRequest moves captured funds to a provider's account.
type TransferRequest struct {
	BookingID      string
	ProviderID     string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

// Transfer is a completed payout to a provider.
type Transfer struct {
	Ref      string
	Amount   int64
	Currency string
}

// Refund is a completed return of funds to the customer.
type Refund struct {
	Ref      string
	Amount   int64
	Currency string
}

// PaymentGateway is the processor-facing surface the escrow service depends
// on. All operations take an idempotency key so retries never double-move
// money.
type PaymentGateway interface {
	AuthorizeCharge(ctx context.Context, req AuthorizeRequest) (*Charge, error)
	CaptureCharge(ctx context.Context, chargeRef, idempotencyKey string) (*Charge, error)
	CancelCharge(ctx context.Context, chargeRef, idempotencyKey string) error
	RefundCharge(ctx context.Context, chargeRef string, amount int64, idempotencyKey string) (*Refund, error)
	TransferFunds(ctx context.Context, req TransferRequest) (*Transfer, error)
}
