package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcale/bookpay/internal/booking"
	"github.com/jmcale/bookpay/internal/gateway"
	"github.com/jmcale/bookpay/internal/idgen"
	"github.com/jmcale/bookpay/internal/testutil"
)

func seedPostgresBooking(t *testing.T, bookings *booking.PostgresStore) *booking.Booking {
	t.Helper()
	now := time.Now().UTC()
	b := &booking.Booking{
		ID:         idgen.WithPrefix("bkg_"),
		CustomerID: "cus_pg",
		ProviderID: "prv_pg",
		Amount:     10000,
		Currency:   "usd",
		Status:     booking.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, bookings.Create(context.Background(), b))
	return b
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	b := seedPostgresBooking(t, booking.NewPostgresStore(db))

	now := time.Now().UTC().Truncate(time.Microsecond)
	account := &Account{
		ID:          idgen.WithPrefix("esc_"),
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		ProviderID:  b.ProviderID,
		Amount:      10000,
		PlatformFee: 800,
		NetAmount:   9200,
		Remaining:   10000,
		Currency:    "usd",
		CaptureMode: gateway.CaptureManual,
		GatewayRef:  idgen.WithPrefix("pi_"),
		State:       StateAuthorized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.Create(ctx, account))

	got, err := store.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.BookingID, got.BookingID)
	assert.Equal(t, int64(800), got.PlatformFee)
	assert.Equal(t, StateAuthorized, got.State)
	assert.Nil(t, got.SettledAt)

	byBooking, err := store.GetByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, byBooking.ID)

	byRef, err := store.GetByGatewayRef(ctx, account.GatewayRef)
	require.NoError(t, err)
	assert.Equal(t, account.ID, byRef.ID)
}

func TestPostgresStoreUpdateSettles(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	b := seedPostgresBooking(t, booking.NewPostgresStore(db))

	now := time.Now().UTC().Truncate(time.Microsecond)
	account := &Account{
		ID:          idgen.WithPrefix("esc_"),
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		ProviderID:  b.ProviderID,
		Amount:      10000,
		PlatformFee: 800,
		NetAmount:   9200,
		Remaining:   10000,
		Currency:    "usd",
		CaptureMode: gateway.CaptureManual,
		GatewayRef:  idgen.WithPrefix("pi_"),
		State:       StateAuthorized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.Create(ctx, account))

	settled := now.Add(time.Minute)
	account.Remaining = 0
	account.State = StateReleased
	account.UpdatedAt = settled
	account.SettledAt = &settled
	require.NoError(t, store.Update(ctx, account))

	got, err := store.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReleased, got.State)
	assert.Equal(t, int64(0), got.Remaining)
	require.NotNil(t, got.SettledAt)
	assert.WithinDuration(t, settled, *got.SettledAt, time.Second)
}

func TestPostgresStoreNotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	_, err := store.Get(ctx, "esc_missing")
	assert.ErrorIs(t, err, ErrEscrowNotFound)

	_, err = store.GetByBooking(ctx, "bkg_missing")
	assert.ErrorIs(t, err, ErrEscrowNotFound)

	err = store.Update(ctx, &Account{ID: "esc_missing", State: StateReleased, UpdatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrEscrowNotFound)
}
