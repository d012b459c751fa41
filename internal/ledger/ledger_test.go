package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcale/bookpay/internal/pagination"
)

func TestRecordAssignsDefaults(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	tx, err := l.Record(ctx, &Transaction{
		BookingID:  "bkg_1111111111111111",
		CustomerID: "cus_1111111111111111",
		ProviderID: "prv_1111111111111111",
		Type:       TypePayment,
		Amount:     10000,
		Currency:   "usd",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Contains(t, tx.ID, "txn_")
	assert.Equal(t, StatusPending, tx.Status)
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestRecordRejectsNonPositiveAmount(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	for _, amount := range []int64{0, -1, -10000} {
		_, err := l.Record(ctx, &Transaction{
			BookingID: "bkg_1111111111111111",
			Type:      TypeRefund,
			Amount:    amount,
			Currency:  "usd",
		})
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %d", amount)
	}
}

func TestRecordDuplicateGatewayRef(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_, err := l.Record(ctx, &Transaction{
		BookingID:  "bkg_1111111111111111",
		Type:       TypePayment,
		Amount:     10000,
		Currency:   "usd",
		GatewayRef: "pi_abc123",
	})
	require.NoError(t, err)

	_, err = l.Record(ctx, &Transaction{
		BookingID:  "bkg_1111111111111111",
		Type:       TypePayment,
		Amount:     10000,
		Currency:   "usd",
		GatewayRef: "pi_abc123",
	})
	assert.ErrorIs(t, err, ErrDuplicateReference)
}

func TestGetByGatewayRef(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	recorded, err := l.Record(ctx, &Transaction{
		BookingID:  "bkg_1111111111111111",
		Type:       TypePayment,
		Amount:     5000,
		Currency:   "usd",
		GatewayRef: "pi_lookup",
	})
	require.NoError(t, err)

	found, err := l.GetByGatewayRef(ctx, "pi_lookup")
	require.NoError(t, err)
	assert.Equal(t, recorded.ID, found.ID)

	_, err = l.GetByGatewayRef(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestMarkStatus(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	tx, err := l.Record(ctx, &Transaction{
		BookingID: "bkg_1111111111111111",
		Type:      TypePayout,
		Amount:    9200,
		Currency:  "usd",
	})
	require.NoError(t, err)

	updated, err := l.MarkStatus(ctx, tx.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	_, err = l.MarkStatus(ctx, "txn_missing", StatusFailed)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestHistoryOrderedByCreation(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	types := []Type{TypePayment, TypeFee, TypePayout}
	for _, typ := range types {
		_, err := l.Record(ctx, &Transaction{
			BookingID: "bkg_1111111111111111",
			Type:      typ,
			Amount:    1000,
			Currency:  "usd",
		})
		require.NoError(t, err)
	}
	_, err := l.Record(ctx, &Transaction{
		BookingID: "bkg_2222222222222222",
		Type:      TypePayment,
		Amount:    2000,
		Currency:  "usd",
	})
	require.NoError(t, err)

	history, err := l.History(ctx, "bkg_1111111111111111", 50)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, tx := range history {
		assert.Equal(t, types[i], tx.Type)
	}
}

func TestHistoryPageWalksAllEntries(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()
	bookingID := "bkg_1111111111111111"

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := l.Record(ctx, &Transaction{
			ID:        fmt.Sprintf("txn_%d", i),
			BookingID: bookingID,
			Type:      TypePayment,
			Amount:    1000,
			Currency:  "usd",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	page, cursor, more, err := l.HistoryPage(ctx, bookingID, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, more)
	assert.Equal(t, "txn_0", page[0].ID)
	assert.Equal(t, "txn_1", page[1].ID)

	page, cursor, more, err = l.HistoryPage(ctx, bookingID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, more)
	assert.Equal(t, "txn_2", page[0].ID)

	page, cursor, more, err = l.HistoryPage(ctx, bookingID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.False(t, more)
	assert.Empty(t, cursor)
	assert.Equal(t, "txn_4", page[0].ID)
}

func TestHistoryPageRejectsBadCursor(t *testing.T) {
	l := New(NewMemoryStore())

	_, _, _, err := l.HistoryPage(context.Background(), "bkg_1111111111111111", "!!!", 10)
	assert.ErrorIs(t, err, pagination.ErrInvalidCursor)
}

func TestSettledTotalExcludesFailedAndNonSettling(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()
	bookingID := "bkg_1111111111111111"

	// The original charge and the platform fee do not count as settlement.
	_, err := l.Record(ctx, &Transaction{BookingID: bookingID, Type: TypePayment, Amount: 10000, Currency: "usd"})
	require.NoError(t, err)
	_, err = l.Record(ctx, &Transaction{BookingID: bookingID, Type: TypeFee, Amount: 800, Currency: "usd"})
	require.NoError(t, err)

	_, err = l.Record(ctx, &Transaction{BookingID: bookingID, Type: TypeRefund, Amount: 5000, Currency: "usd"})
	require.NoError(t, err)
	_, err = l.Record(ctx, &Transaction{BookingID: bookingID, Type: TypePayout, Amount: 4600, Currency: "usd"})
	require.NoError(t, err)

	failed, err := l.Record(ctx, &Transaction{BookingID: bookingID, Type: TypePayout, Amount: 9999, Currency: "usd"})
	require.NoError(t, err)
	_, err = l.MarkStatus(ctx, failed.ID, StatusFailed)
	require.NoError(t, err)

	total, err := l.SettledTotal(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, int64(9600), total)
}
