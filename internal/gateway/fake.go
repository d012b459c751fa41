package gateway

import (
	"context"
	"sync"

	"github.com/jmcale/bookpay/internal/idgen"
)

// FakeGateway is an in-memory processor for demo mode and tests. It honors
// idempotency keys the way the real processor does: replaying a key returns
// the original result without moving money twice.
type FakeGateway struct {
	mu        sync.Mutex
	charges   map[string]*Charge // by ref
	byIdemKey map[string]string  // idempotency key -> charge/refund/transfer ref
	refunded  map[string]int64   // charge ref -> total refunded

	// Failure switches for tests. FailAuthorize simulates a card decline,
	// the Unavailable switches simulate processor outages.
	FailAuthorize        bool
	FailCapture          bool
	FailRefund           bool
	FailTransfer         bool
	UnavailableAuthorize bool
}

// NewFakeGateway creates an empty fake processor.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		charges:   make(map[string]*Charge),
		byIdemKey: make(map[string]string),
		refunded:  make(map[string]int64),
	}
}

func (g *FakeGateway) AuthorizeCharge(ctx context.Context, req AuthorizeRequest) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.UnavailableAuthorize {
		return nil, ErrGatewayUnavailable
	}
	if g.FailAuthorize {
		return nil, ErrChargeDeclined
	}
	if ref, ok := g.byIdemKey[req.IdempotencyKey]; ok {
		cp := *g.charges[ref]
		return &cp, nil
	}

	charge := &Charge{
		Ref:      idgen.WithPrefix("pi_"),
		Amount:   req.Amount,
		Currency: req.Currency,
		Captured: req.CaptureMode == CaptureAutomatic,
	}
	g.charges[charge.Ref] = charge
	if req.IdempotencyKey != "" {
		g.byIdemKey[req.IdempotencyKey] = charge.Ref
	}
	cp := *charge
	return &cp, nil
}

func (g *FakeGateway) CaptureCharge(ctx context.Context, chargeRef, idempotencyKey string) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailCapture {
		return nil, ErrGatewayUnavailable
	}
	charge, ok := g.charges[chargeRef]
	if !ok {
		return nil, ErrChargeNotFound
	}
	charge.Captured = true
	cp := *charge
	return &cp, nil
}

func (g *FakeGateway) CancelCharge(ctx context.Context, chargeRef, idempotencyKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.charges[chargeRef]; !ok {
		return ErrChargeNotFound
	}
	delete(g.charges, chargeRef)
	return nil
}

func (g *FakeGateway) RefundCharge(ctx context.Context, chargeRef string, amount int64, idempotencyKey string) (*Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailRefund {
		return nil, ErrGatewayUnavailable
	}
	charge, ok := g.charges[chargeRef]
	if !ok {
		return nil, ErrChargeNotFound
	}
	if ref, ok := g.byIdemKey[idempotencyKey]; ok {
		return &Refund{Ref: ref, Amount: amount, Currency: charge.Currency}, nil
	}

	g.refunded[chargeRef] += amount
	r := &Refund{
		Ref:      idgen.WithPrefix("re_"),
		Amount:   amount,
		Currency: charge.Currency,
	}
	if idempotencyKey != "" {
		g.byIdemKey[idempotencyKey] = r.Ref
	}
	return r, nil
}

func (g *FakeGateway) TransferFunds(ctx context.Context, req TransferRequest) (*Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailTransfer {
		return nil, ErrGatewayUnavailable
	}
	if ref, ok := g.byIdemKey[req.IdempotencyKey]; ok {
		return &Transfer{Ref: ref, Amount: req.Amount, Currency: req.Currency}, nil
	}

	tr := &Transfer{
		Ref:      idgen.WithPrefix("tr_"),
		Amount:   req.Amount,
		Currency: req.Currency,
	}
	if req.IdempotencyKey != "" {
		g.byIdemKey[req.IdempotencyKey] = tr.Ref
	}
	return tr, nil
}

// Captured reports whether the charge has been captured.
func (g *FakeGateway) Captured(chargeRef string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	charge, ok := g.charges[chargeRef]
	return ok && charge.Captured
}

// RefundedTotal reports how much has been refunded against a charge.
func (g *FakeGateway) RefundedTotal(chargeRef string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[chargeRef]
}
