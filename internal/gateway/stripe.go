package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/refund"
	"github.com/stripe/stripe-go/v81/transfer"

	"github.com/jmcale/bookpay/internal/metrics"
	"github.com/jmcale/bookpay/internal/retry"
)

// StripeGateway implements PaymentGateway on the Stripe API. Provider IDs
// are treated as connected account IDs for transfers.
type StripeGateway struct{}

// NewStripeGateway configures the Stripe client with the given secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

func (g *StripeGateway) AuthorizeCharge(ctx context.Context, req AuthorizeRequest) (*Charge, error) {
	captureMethod := stripe.PaymentIntentCaptureMethodManual
	if req.CaptureMode == CaptureAutomatic {
		captureMethod = stripe.PaymentIntentCaptureMethodAutomatic
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(captureMethod)),
		Customer:      stripe.String(req.CustomerID),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", req.BookingID)
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := paymentintent.New(params)
	if err != nil {
		metrics.GatewayEventsTotal.WithLabelValues("authorize", "error").Inc()
		return nil, mapStripeError(err)
	}
	metrics.GatewayEventsTotal.WithLabelValues("authorize", "ok").Inc()
	return chargeFromIntent(pi), nil
}

func (g *StripeGateway) CaptureCharge(ctx context.Context, chargeRef, idempotencyKey string) (*Charge, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := paymentintent.Capture(chargeRef, params)
	if err != nil {
		metrics.GatewayEventsTotal.WithLabelValues("capture", "error").Inc()
		return nil, mapStripeError(err)
	}
	metrics.GatewayEventsTotal.WithLabelValues("capture", "ok").Inc()
	return chargeFromIntent(pi), nil
}

func (g *StripeGateway) CancelCharge(ctx context.Context, chargeRef, idempotencyKey string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := paymentintent.Cancel(chargeRef, params); err != nil {
		metrics.GatewayEventsTotal.WithLabelValues("cancel", "error").Inc()
		return mapStripeError(err)
	}
	metrics.GatewayEventsTotal.WithLabelValues("cancel", "ok").Inc()
	return nil
}

func (g *StripeGateway) RefundCharge(ctx context.Context, chargeRef string, amount int64, idempotencyKey string) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(chargeRef),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	r, err := refund.New(params)
	if err != nil {
		metrics.GatewayEventsTotal.WithLabelValues("refund", "error").Inc()
		return nil, mapStripeError(err)
	}
	metrics.GatewayEventsTotal.WithLabelValues("refund", "ok").Inc()
	return &Refund{
		Ref:      r.ID,
		Amount:   r.Amount,
		Currency: string(r.Currency),
	}, nil
}

func (g *StripeGateway) TransferFunds(ctx context.Context, req TransferRequest) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.ProviderID),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", req.BookingID)
	params.SetIdempotencyKey(req.IdempotencyKey)

	tr, err := transfer.New(params)
	if err != nil {
		metrics.GatewayEventsTotal.WithLabelValues("transfer", "error").Inc()
		return nil, mapStripeError(err)
	}
	metrics.GatewayEventsTotal.WithLabelValues("transfer", "ok").Inc()
	return &Transfer{
		Ref:      tr.ID,
		Amount:   tr.Amount,
		Currency: string(tr.Currency),
	}, nil
}

func chargeFromIntent(pi *stripe.PaymentIntent) *Charge {
	return &Charge{
		Ref:      pi.ID,
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Captured: pi.Status == stripe.PaymentIntentStatusSucceeded,
	}
}

// mapStripeError translates Stripe errors to gateway sentinels. Card
// declines and missing resources are permanent; everything else is
// retryable and surfaces as gateway unavailability.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return retry.Permanent(fmt.Errorf("%w: %s", ErrChargeDeclined, stripeErr.Code))
	case stripeErr.HTTPStatusCode == 404:
		return retry.Permanent(fmt.Errorf("%w: %s", ErrChargeNotFound, stripeErr.Msg))
	case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != 429:
		return retry.Permanent(fmt.Errorf("stripe: %s", stripeErr.Msg))
	default:
		return fmt.Errorf("%w: %s", ErrGatewayUnavailable, stripeErr.Msg)
	}
}
