package escrow

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore persists escrow accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an escrow store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, booking_id, customer_id, provider_id, amount, platform_fee, net_amount, remaining, currency, capture_mode, gateway_ref, state, created_at, updated_at, settled_at`

func (s *PostgresStore) Create(ctx context.Context, account *Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escrow_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		account.ID, account.BookingID, account.CustomerID, account.ProviderID,
		account.Amount, account.PlatformFee, account.NetAmount, account.Remaining,
		account.Currency, account.CaptureMode, account.GatewayRef, account.State,
		account.CreatedAt, account.UpdatedAt, account.SettledAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM escrow_accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *PostgresStore) GetByBooking(ctx context.Context, bookingID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM escrow_accounts WHERE booking_id = $1`, bookingID)
	return scanAccount(row)
}

func (s *PostgresStore) GetByGatewayRef(ctx context.Context, ref string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM escrow_accounts WHERE gateway_ref = $1`, ref)
	return scanAccount(row)
}

func (s *PostgresStore) Update(ctx context.Context, account *Account) error {
	account.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE escrow_accounts
		SET remaining = $2, state = $3, updated_at = $4, settled_at = $5
		WHERE id = $1`,
		account.ID, account.Remaining, account.State, account.UpdatedAt, account.SettledAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEscrowNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var settledAt sql.NullTime
	err := row.Scan(&a.ID, &a.BookingID, &a.CustomerID, &a.ProviderID,
		&a.Amount, &a.PlatformFee, &a.NetAmount, &a.Remaining,
		&a.Currency, &a.CaptureMode, &a.GatewayRef, &a.State,
		&a.CreatedAt, &a.UpdatedAt, &settledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEscrowNotFound
	}
	if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		a.SettledAt = &settledAt.Time
	}
	return &a, nil
}
