package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAuthorizeIdempotent(t *testing.T) {
	g := NewFakeGateway()
	ctx := context.Background()
	req := AuthorizeRequest{
		BookingID:      "bkg_1111111111111111",
		CustomerID:     "cus_1111111111111111",
		Amount:         10000,
		Currency:       "usd",
		CaptureMode:    CaptureManual,
		IdempotencyKey: "auth-key-1",
	}

	first, err := g.AuthorizeCharge(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Captured)

	second, err := g.AuthorizeCharge(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Ref, second.Ref)
}

func TestFakeCaptureAndRefund(t *testing.T) {
	g := NewFakeGateway()
	ctx := context.Background()

	charge, err := g.AuthorizeCharge(ctx, AuthorizeRequest{
		Amount: 10000, Currency: "usd", CaptureMode: CaptureManual, IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	captured, err := g.CaptureCharge(ctx, charge.Ref, "k2")
	require.NoError(t, err)
	assert.True(t, captured.Captured)

	r, err := g.RefundCharge(ctx, charge.Ref, 5000, "rk1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), r.Amount)
	assert.Equal(t, int64(5000), g.RefundedTotal(charge.Ref))

	// Replaying the same idempotency key must not refund again.
	again, err := g.RefundCharge(ctx, charge.Ref, 5000, "rk1")
	require.NoError(t, err)
	assert.Equal(t, r.Ref, again.Ref)
	assert.Equal(t, int64(5000), g.RefundedTotal(charge.Ref))
}

func TestFakeUnknownChargeRef(t *testing.T) {
	g := NewFakeGateway()
	ctx := context.Background()

	_, err := g.CaptureCharge(ctx, "pi_missing", "k")
	assert.ErrorIs(t, err, ErrChargeNotFound)

	_, err = g.RefundCharge(ctx, "pi_missing", 100, "k")
	assert.ErrorIs(t, err, ErrChargeNotFound)

	assert.ErrorIs(t, g.CancelCharge(ctx, "pi_missing", "k"), ErrChargeNotFound)
}

func TestFakeTransferIdempotent(t *testing.T) {
	g := NewFakeGateway()
	ctx := context.Background()
	req := TransferRequest{
		BookingID: "bkg_1111111111111111", ProviderID: "acct_1",
		Amount: 9200, Currency: "usd", IdempotencyKey: "tk1",
	}

	first, err := g.TransferFunds(ctx, req)
	require.NoError(t, err)

	second, err := g.TransferFunds(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Ref, second.Ref)
}

func TestFakeFailureSwitches(t *testing.T) {
	g := NewFakeGateway()
	g.FailAuthorize = true
	ctx := context.Background()

	_, err := g.AuthorizeCharge(ctx, AuthorizeRequest{Amount: 100, Currency: "usd"})
	assert.ErrorIs(t, err, ErrChargeDeclined)
}
