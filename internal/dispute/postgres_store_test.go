package dispute

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcale/bookpay/internal/booking"
	"github.com/jmcale/bookpay/internal/escrow"
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
		Status:     booking.StatusDisputed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, bookings.Create(context.Background(), b))
	return b
}

func newPostgresDispute(bookingID string) *Dispute {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Dispute{
		ID:               idgen.WithPrefix("dsp_"),
		BookingID:        bookingID,
		InitiatedBy:      PartyCustomer,
		Reason:           ReasonServiceNotProvided,
		Description:      "provider never arrived",
		Amount:           10000,
		Status:           StatusInitiated,
		EvidenceDeadline: now.Add(72 * time.Hour),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestPostgresStoreOneActivePerBooking(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	b := seedPostgresBooking(t, booking.NewPostgresStore(db))

	first := newPostgresDispute(b.ID)
	require.NoError(t, store.Create(ctx, first))

	second := newPostgresDispute(b.ID)
	assert.ErrorIs(t, store.Create(ctx, second), ErrDisputeActive)

	// Resolving the first frees the booking for a new filing.
	resolvedAt := time.Now().UTC().Truncate(time.Microsecond)
	first.Status = StatusResolved
	first.ResolvedAt = &resolvedAt
	first.UpdatedAt = resolvedAt
	require.NoError(t, store.Update(ctx, first))

	require.NoError(t, store.Create(ctx, second))

	active, err := store.GetActiveByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestPostgresStoreOutcomeRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	b := seedPostgresBooking(t, booking.NewPostgresStore(db))

	d := newPostgresDispute(b.ID)
	require.NoError(t, store.Create(ctx, d))

	d.Status = StatusManualReview
	d.Outcome = &escrow.Outcome{
		Kind:          escrow.OutcomeSplit,
		ReleaseAmount: 5000,
		RefundAmount:  5000,
		Note:          "partial service delivered",
	}
	d.ResolutionTier = "manual"
	d.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.Update(ctx, d))

	got, err := store.Get(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, escrow.OutcomeSplit, got.Outcome.Kind)
	assert.Equal(t, int64(5000), got.Outcome.ReleaseAmount)
	assert.Equal(t, "manual", got.ResolutionTier)

	// Adjudicated but not yet resolved: shows up for settlement retry.
	unsettled, err := store.ListUnsettled(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, d.ID, unsettled[0].ID)
}

func TestPostgresStoreEvidence(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	b := seedPostgresBooking(t, booking.NewPostgresStore(db))

	d := newPostgresDispute(b.ID)
	require.NoError(t, store.Create(ctx, d))

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.AddEvidence(ctx, &Evidence{
		ID:          idgen.WithPrefix("evd_"),
		DisputeID:   d.ID,
		Party:       PartyCustomer,
		Content:     "chat transcript",
		SubmittedAt: now,
	}))
	require.NoError(t, store.AddEvidence(ctx, &Evidence{
		ID:          idgen.WithPrefix("evd_"),
		DisputeID:   d.ID,
		Party:       PartyProvider,
		Content:     "arrival photo",
		SubmittedAt: now.Add(time.Minute),
	}))

	evidence, err := store.ListEvidence(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, evidence, 2)
	assert.Equal(t, PartyCustomer, evidence[0].Party)
	assert.Equal(t, PartyProvider, evidence[1].Party)

	err = store.AddEvidence(ctx, &Evidence{
		ID:          idgen.WithPrefix("evd_"),
		DisputeID:   "dsp_missing",
		Party:       PartyCustomer,
		Content:     "orphan",
		SubmittedAt: now,
	})
	assert.ErrorIs(t, err, ErrDisputeNotFound)
}

func TestPostgresStoreDeadlineScan(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	bookings := booking.NewPostgresStore(db)

	past := seedPostgresBooking(t, bookings)
	future := seedPostgresBooking(t, bookings)

	expired := newPostgresDispute(past.ID)
	expired.EvidenceDeadline = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Create(ctx, expired))

	pending := newPostgresDispute(future.ID)
	require.NoError(t, store.Create(ctx, pending))

	due, err := store.ListDeadlinePassed(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expired.ID, due[0].ID)
}
