package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(id string) *Booking {
	now := time.Now()
	return &Booking{
		ID:         id,
		CustomerID: "cus_1",
		ProviderID: "prv_1",
		ServiceID:  "svc_1",
		StartsAt:   now.Add(24 * time.Hour),
		EndsAt:     now.Add(26 * time.Hour),
		Amount:     10000,
		Currency:   "usd",
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, newBooking("bk_1")))

	got, err := store.Get(ctx, "bk_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, int64(10000), got.Amount)

	_, err = store.Get(ctx, "bk_missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestMemoryStore_DuplicateCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, newBooking("bk_1")))
	assert.ErrorIs(t, store.Create(ctx, newBooking("bk_1")), ErrDuplicateID)
}

func TestMemoryStore_Transition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newBooking("bk_1")))

	got, err := store.Transition(ctx, "bk_1", StatusConfirmed, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	// A transition from the wrong state fails.
	_, err = store.Transition(ctx, "bk_1", StatusConfirmed, StatusPending)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Multiple expected statuses are accepted.
	got, err = store.Transition(ctx, "bk_1", StatusDisputed, StatusConfirmed, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusDisputed, got.Status)
}

func TestMemoryStore_TransitionRace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newBooking("bk_1")))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Transition(ctx, "bk_1", StatusCompleted, StatusPending)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrInvalidState)
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one transition must win")
	assert.Equal(t, 1, losses)
}

func TestBooking_IsTerminal(t *testing.T) {
	b := newBooking("bk_1")
	assert.False(t, b.IsTerminal())

	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRefunded} {
		b.Status = s
		assert.True(t, b.IsTerminal(), string(s))
	}
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusDisputed} {
		b.Status = s
		assert.False(t, b.IsTerminal(), string(s))
	}
}

func TestMemoryStore_Lists(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	b1 := newBooking("bk_1")
	b2 := newBooking("bk_2")
	b2.CustomerID = "cus_2"
	require.NoError(t, store.Create(ctx, b1))
	require.NoError(t, store.Create(ctx, b2))

	byCustomer, err := store.ListByCustomer(ctx, "cus_1", 10)
	require.NoError(t, err)
	assert.Len(t, byCustomer, 1)

	byProvider, err := store.ListByProvider(ctx, "prv_1", 10)
	require.NoError(t, err)
	assert.Len(t, byProvider, 2)
}
