package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jmcale/bookpay/internal/pagination"
	"github.com/lib/pq"
)

// PostgresStore persists ledger transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a ledger store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, tx *Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, booking_id, customer_id, provider_id, type, amount, currency, gateway_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)`,
		tx.ID, tx.BookingID, tx.CustomerID, tx.ProviderID, tx.Type, tx.Amount,
		tx.Currency, tx.GatewayRef, tx.Status, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, booking_id, customer_id, provider_id, type, amount, currency, COALESCE(gateway_ref, ''), status, created_at, updated_at
		FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (s *PostgresStore) GetByGatewayRef(ctx context.Context, ref string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, booking_id, customer_id, provider_id, type, amount, currency, COALESCE(gateway_ref, ''), status, created_at, updated_at
		FROM transactions WHERE gateway_ref = $1`, ref)
	return scanTransaction(row)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE transactions SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, booking_id, customer_id, provider_id, type, amount, currency, COALESCE(gateway_ref, ''), status, created_at, updated_at`,
		id, status, time.Now(),
	)
	return scanTransaction(row)
}

func (s *PostgresStore) ListByBooking(ctx context.Context, bookingID string, after *pagination.Cursor, limit int) ([]*Transaction, error) {
	query := `
		SELECT id, booking_id, customer_id, provider_id, type, amount, currency, COALESCE(gateway_ref, ''), status, created_at, updated_at
		FROM transactions WHERE booking_id = $1`
	args := []any{bookingID}
	if after != nil {
		query += ` AND (created_at, id) > ($2, $3)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ` + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SettledTotal(ctx context.Context, bookingID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE booking_id = $1 AND type IN ('payout', 'refund') AND status <> 'failed'`,
		bookingID,
	).Scan(&total)
	return total, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var tx Transaction
	err := row.Scan(&tx.ID, &tx.BookingID, &tx.CustomerID, &tx.ProviderID, &tx.Type,
		&tx.Amount, &tx.Currency, &tx.GatewayRef, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
