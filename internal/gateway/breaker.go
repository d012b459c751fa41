package gateway

import (
	"context"
	"errors"

	"github.com/jmcale/bookpay/internal/circuitbreaker"
)

// BreakerGateway wraps a PaymentGateway with a per-operation circuit
// breaker. When the processor is down every call times out at the full
// deadline, which starves the per-booking locks upstream; the breaker
// converts a detected outage into an immediate ErrGatewayUnavailable.
//
// Only unavailability counts as a failure. Declines and not-found are
// the processor answering correctly.
type BreakerGateway struct {
	inner   PaymentGateway
	breaker *circuitbreaker.Breaker
}

// WithBreaker wraps gw with the given breaker.
func WithBreaker(gw PaymentGateway, b *circuitbreaker.Breaker) *BreakerGateway {
	return &BreakerGateway{inner: gw, breaker: b}
}

func (g *BreakerGateway) record(op string, err error) {
	if errors.Is(err, ErrGatewayUnavailable) {
		g.breaker.RecordFailure(op)
		return
	}
	g.breaker.RecordSuccess(op)
}

func (g *BreakerGateway) AuthorizeCharge(ctx context.Context, req AuthorizeRequest) (*Charge, error) {
	const op = "authorize"
	if !g.breaker.Allow(op) {
		return nil, ErrGatewayUnavailable
	}
	ch, err := g.inner.AuthorizeCharge(ctx, req)
	g.record(op, err)
	return ch, err
}

func (g *BreakerGateway) CaptureCharge(ctx context.Context, chargeRef, idempotencyKey string) (*Charge, error) {
	const op = "capture"
	if !g.breaker.Allow(op) {
		return nil, ErrGatewayUnavailable
	}
	ch, err := g.inner.CaptureCharge(ctx, chargeRef, idempotencyKey)
	g.record(op, err)
	return ch, err
}

func (g *BreakerGateway) CancelCharge(ctx context.Context, chargeRef, idempotencyKey string) error {
	const op = "cancel"
	if !g.breaker.Allow(op) {
		return ErrGatewayUnavailable
	}
	err := g.inner.CancelCharge(ctx, chargeRef, idempotencyKey)
	g.record(op, err)
	return err
}

func (g *BreakerGateway) RefundCharge(ctx context.Context, chargeRef string, amount int64, idempotencyKey string) (*Refund, error) {
	const op = "refund"
	if !g.breaker.Allow(op) {
		return nil, ErrGatewayUnavailable
	}
	re, err := g.inner.RefundCharge(ctx, chargeRef, amount, idempotencyKey)
	g.record(op, err)
	return re, err
}

func (g *BreakerGateway) TransferFunds(ctx context.Context, req TransferRequest) (*Transfer, error) {
	const op = "transfer"
	if !g.breaker.Allow(op) {
		return nil, ErrGatewayUnavailable
	}
	tr, err := g.inner.TransferFunds(ctx, req)
	g.record(op, err)
	return tr, err
}
