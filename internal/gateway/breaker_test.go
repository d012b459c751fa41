package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcale/bookpay/internal/circuitbreaker"
)

func TestBreakerGatewayFailsFastWhenOpen(t *testing.T) {
	fake := NewFakeGateway()
	fake.UnavailableAuthorize = true
	gw := WithBreaker(fake, circuitbreaker.New(2, time.Minute))

	req := AuthorizeRequest{
		BookingID:      "bkg_cb1",
		CustomerID:     "cus_1",
		Amount:         10000,
		Currency:       "usd",
		CaptureMode:    CaptureManual,
		IdempotencyKey: "cb1:authorize",
	}

	_, err := gw.AuthorizeCharge(context.Background(), req)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	_, err = gw.AuthorizeCharge(context.Background(), req)
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	// Circuit is now open. The fake must not be reached again.
	fake.UnavailableAuthorize = false
	_, err = gw.AuthorizeCharge(context.Background(), req)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestBreakerGatewayRecoversViaProbe(t *testing.T) {
	fake := NewFakeGateway()
	fake.UnavailableAuthorize = true
	gw := WithBreaker(fake, circuitbreaker.New(1, 10*time.Millisecond))

	req := AuthorizeRequest{
		BookingID:      "bkg_cb2",
		CustomerID:     "cus_1",
		Amount:         10000,
		Currency:       "usd",
		CaptureMode:    CaptureManual,
		IdempotencyKey: "cb2:authorize",
	}

	_, err := gw.AuthorizeCharge(context.Background(), req)
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	fake.UnavailableAuthorize = false
	time.Sleep(15 * time.Millisecond)

	ch, err := gw.AuthorizeCharge(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, ch.Ref)
}

func TestBreakerGatewayDeclineDoesNotTrip(t *testing.T) {
	fake := NewFakeGateway()
	fake.FailAuthorize = true
	gw := WithBreaker(fake, circuitbreaker.New(1, time.Minute))

	req := AuthorizeRequest{
		BookingID:      "bkg_cb3",
		CustomerID:     "cus_1",
		Amount:         10000,
		Currency:       "usd",
		CaptureMode:    CaptureManual,
		IdempotencyKey: "cb3:authorize",
	}

	_, err := gw.AuthorizeCharge(context.Background(), req)
	require.ErrorIs(t, err, ErrChargeDeclined)

	fake.FailAuthorize = false
	_, err = gw.AuthorizeCharge(context.Background(), req)
	assert.NoError(t, err, "declines are answers, not outages")
}

func TestBreakerGatewayOperationsIsolated(t *testing.T) {
	fake := NewFakeGateway()
	fake.FailRefund = true
	gw := WithBreaker(fake, circuitbreaker.New(1, time.Minute))

	ch, err := gw.AuthorizeCharge(context.Background(), AuthorizeRequest{
		BookingID:      "bkg_cb4",
		CustomerID:     "cus_1",
		Amount:         10000,
		Currency:       "usd",
		CaptureMode:    CaptureManual,
		IdempotencyKey: "cb4:authorize",
	})
	require.NoError(t, err)

	_, err = gw.RefundCharge(context.Background(), ch.Ref, 5000, "cb4:refund")
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	// Refund circuit open, authorize circuit still closed.
	_, err = gw.AuthorizeCharge(context.Background(), AuthorizeRequest{
		BookingID:      "bkg_cb5",
		CustomerID:     "cus_1",
		Amount:         10000,
		Currency:       "usd",
		CaptureMode:    CaptureManual,
		IdempotencyKey: "cb5:authorize",
	})
	assert.NoError(t, err)
}
