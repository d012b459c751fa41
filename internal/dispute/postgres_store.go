package dispute

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists disputes in PostgreSQL. The at-most-one-active
// invariant is enforced by a unique partial index on booking_id for rows
// whose status is not resolved.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a dispute store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const disputeColumns = `id, booking_id, initiated_by, reason, description, amount, status, evidence_deadline, outcome, resolution_tier, resolved_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	outcome, err := marshalOutcome(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13)`,
		d.ID, d.BookingID, d.InitiatedBy, d.Reason, d.Description, d.Amount,
		d.Status, d.EvidenceDeadline, outcome, d.ResolutionTier, d.ResolvedAt,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDisputeActive
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	return scanDispute(row)
}

func (s *PostgresStore) GetActiveByBooking(ctx context.Context, bookingID string) (*Dispute, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE booking_id = $1 AND status <> 'resolved'`,
		bookingID)
	return scanDispute(row)
}

func (s *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	outcome, err := marshalOutcome(d)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, outcome = $3, resolution_tier = NULLIF($4, ''), resolved_at = $5, updated_at = $6
		WHERE id = $1`,
		d.ID, d.Status, outcome, d.ResolutionTier, d.ResolvedAt, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

func (s *PostgresStore) AddEvidence(ctx context.Context, e *Evidence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispute_evidence (id, dispute_id, party, content, submitted_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.DisputeID, e.Party, e.Content, e.SubmittedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrDisputeNotFound
		}
		return err
	}
	return nil
}

func (s *PostgresStore) ListEvidence(ctx context.Context, disputeID string) ([]*Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dispute_id, party, content, submitted_at
		FROM dispute_evidence WHERE dispute_id = $1
		ORDER BY submitted_at ASC`, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Evidence
	for rows.Next() {
		var e Evidence
		if err := rows.Scan(&e.ID, &e.DisputeID, &e.Party, &e.Content, &e.SubmittedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListDeadlinePassed(ctx context.Context, before time.Time, limit int) ([]*Dispute, error) {
	return s.list(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE status IN ('initiated', 'evidence_collection') AND evidence_deadline < $1
		ORDER BY evidence_deadline ASC
		LIMIT $2`, before, limit)
}

func (s *PostgresStore) ListUnsettled(ctx context.Context, limit int) ([]*Dispute, error) {
	return s.list(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE outcome IS NOT NULL AND status <> 'resolved'
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Dispute, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func marshalOutcome(d *Dispute) ([]byte, error) {
	if d.Outcome == nil {
		return nil, nil
	}
	return json.Marshal(d.Outcome)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (*Dispute, error) {
	var d Dispute
	var outcome []byte
	var tier sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&d.ID, &d.BookingID, &d.InitiatedBy, &d.Reason, &d.Description,
		&d.Amount, &d.Status, &d.EvidenceDeadline, &outcome, &tier, &resolvedAt,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(outcome) > 0 {
		if err := json.Unmarshal(outcome, &d.Outcome); err != nil {
			return nil, err
		}
	}
	if tier.Valid {
		d.ResolutionTier = tier.String
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return &d, nil
}
