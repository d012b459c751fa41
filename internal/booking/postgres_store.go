package booking

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed booking store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, b *Booking) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bookings (id, customer_id, provider_id, service_id, starts_at, ends_at, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, b.CustomerID, b.ProviderID, b.ServiceID, b.StartsAt, b.EndsAt, b.Amount, b.Currency, b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Booking, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, customer_id, provider_id, service_id, starts_at, ends_at, amount, currency, status, created_at, updated_at
		FROM bookings WHERE id = $1
	`, id))
}

// Transition performs a conditional status update. The WHERE clause on the
// current status makes concurrent transitions mutually exclusive: exactly one
// caller observes a row update, the rest get ErrInvalidState.
func (p *PostgresStore) Transition(ctx context.Context, id string, to Status, from ...Status) (*Booking, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	row := p.db.QueryRowContext(ctx, `
		UPDATE bookings SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING id, customer_id, provider_id, service_id, starts_at, ends_at, amount, currency, status, created_at, updated_at
	`, id, to, pq.Array(fromStrs))

	b, err := p.scanOne(row)
	if err == ErrBookingNotFound {
		// Distinguish a missing booking from a state conflict.
		if _, getErr := p.Get(ctx, id); getErr == nil {
			return nil, ErrInvalidState
		}
		return nil, ErrBookingNotFound
	}
	return b, err
}

func (p *PostgresStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Booking, error) {
	return p.list(ctx, `
		SELECT id, customer_id, provider_id, service_id, starts_at, ends_at, amount, currency, status, created_at, updated_at
		FROM bookings WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2
	`, customerID, limit)
}

func (p *PostgresStore) ListByProvider(ctx context.Context, providerID string, limit int) ([]*Booking, error) {
	return p.list(ctx, `
		SELECT id, customer_id, provider_id, service_id, starts_at, ends_at, amount, currency, status, created_at, updated_at
		FROM bookings WHERE provider_id = $1 ORDER BY created_at DESC LIMIT $2
	`, providerID, limit)
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*Booking, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Booking
	for rows.Next() {
		b := &Booking{}
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.ProviderID, &b.ServiceID, &b.StartsAt, &b.EndsAt,
			&b.Amount, &b.Currency, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (p *PostgresStore) scanOne(row *sql.Row) (*Booking, error) {
	b := &Booking{}
	err := row.Scan(&b.ID, &b.CustomerID, &b.ProviderID, &b.ServiceID, &b.StartsAt, &b.EndsAt,
		&b.Amount, &b.Currency, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
