// Package dispute runs the adjudication workflow for a contested booking.
//
// Flow:
//  1. Either party files → escrow frozen, evidence window opens
//  2. Both parties submit evidence, or the window expires
//  3. Automated review scores the case within a bounded time budget
//  4. Low confidence → manual review by an operator
//  5. Resolution settles the frozen funds exactly once
package dispute

import (
	"context"
	"errors"
	"time"

	"github.com/jmcale/bookpay/internal/escrow"
)

var (
	ErrDisputeNotFound    = errors.New("dispute not found")
	ErrDisputeActive      = errors.New("an active dispute already exists for this booking")
	ErrBookingNotEligible = errors.New("booking is not eligible for dispute")
	ErrInvalidReason      = errors.New("invalid dispute reason")
	ErrInvalidState       = errors.New("invalid dispute status for this operation")
	ErrNotParty           = errors.New("submitter is not a party to this dispute")
)

// Reason is the closed set of grounds for filing a dispute.
type Reason string

const (
	ReasonServiceNotProvided Reason = "service_not_provided"
	ReasonPoorQuality        Reason = "poor_quality"
	ReasonIncompleteService  Reason = "incomplete_service"
	ReasonOvercharge         Reason = "overcharge"
	ReasonNoShow             Reason = "no_show"
	ReasonSafety             Reason = "safety"
	ReasonOther              Reason = "other"
)

// ValidReason reports whether r is a known reason code.
func ValidReason(r Reason) bool {
	switch r {
	case ReasonServiceNotProvided, ReasonPoorQuality, ReasonIncompleteService,
		ReasonOvercharge, ReasonNoShow, ReasonSafety, ReasonOther:
		return true
	}
	return false
}

// Status represents the adjudication stage.
type Status string

const (
	StatusInitiated          Status = "initiated"
	StatusEvidenceCollection Status = "evidence_collection"
	StatusAutomatedReview    Status = "automated_review"
	StatusManualReview       Status = "manual_review"
	StatusResolved           Status = "resolved"
)

// Party identifies which side of the booking acted.
type Party string

const (
	PartyCustomer Party = "customer"
	PartyProvider Party = "provider"
)

// Dispute represents a contested booking. An Outcome set while Status is not
// yet resolved means adjudication finished but the funds have not settled;
// the timer retries settlement without re-running adjudication.
type Dispute struct {
	ID               string          `json:"id"`
	BookingID        string          `json:"bookingId"`
	InitiatedBy      Party           `json:"initiatedBy"`
	Reason           Reason          `json:"reason"`
	Description      string          `json:"description"`
	Amount           int64           `json:"amount"`
	Status           Status          `json:"status"`
	EvidenceDeadline time.Time       `json:"evidenceDeadline"`
	Outcome          *escrow.Outcome `json:"outcome,omitempty"`
	ResolutionTier   string          `json:"resolutionTier,omitempty"` // automated | manual
	ResolvedAt       *time.Time      `json:"resolvedAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// IsTerminal returns true once the dispute is resolved and settled.
func (d *Dispute) IsTerminal() bool {
	return d.Status == StatusResolved
}

// Evidence is an opaque attachment from one of the parties.
type Evidence struct {
	ID          string    `json:"id"`
	DisputeID   string    `json:"disputeId"`
	Party       Party     `json:"party"`
	Content     string    `json:"content"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Store persists disputes and their evidence.
type Store interface {
	// Create fails with ErrDisputeActive if the booking already has an
	// unresolved dispute.
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	GetActiveByBooking(ctx context.Context, bookingID string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	AddEvidence(ctx context.Context, e *Evidence) error
	ListEvidence(ctx context.Context, disputeID string) ([]*Evidence, error)
	// ListDeadlinePassed returns disputes still collecting evidence whose
	// deadline is before the given time.
	ListDeadlinePassed(ctx context.Context, before time.Time, limit int) ([]*Dispute, error)
	// ListUnsettled returns disputes with a recorded outcome that have not
	// reached resolved, for settlement retry.
	ListUnsettled(ctx context.Context, limit int) ([]*Dispute, error)
}

// Decision is the result of an adjudication pass.
type Decision struct {
	Resolved bool
	Outcome  escrow.Outcome
}

// Decider is the pluggable adjudication policy. Automated review calls it
// with the collected evidence; returning Resolved=false escalates to manual
// review.
type Decider interface {
	Decide(ctx context.Context, d *Dispute, evidence []*Evidence) (Decision, error)
}

// EscalateAll is the default decider: every case goes to manual review.
type EscalateAll struct{}

func (EscalateAll) Decide(ctx context.Context, d *Dispute, evidence []*Evidence) (Decision, error) {
	return Decision{Resolved: false}, nil
}

// StatusReport is the public view of a dispute's progress.
type StatusReport struct {
	DisputeID     string          `json:"disputeId"`
	Status        Status          `json:"status"`
	TimeRemaining int64           `json:"timeRemainingSeconds"`
	Outcome       *escrow.Outcome `json:"outcome,omitempty"`
}

// FileRequest contains the parameters for filing a dispute.
type FileRequest struct {
	BookingID   string `json:"bookingId" binding:"required"`
	InitiatedBy Party  `json:"initiatedBy" binding:"required"`
	Reason      Reason `json:"reason" binding:"required"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"` // 0 means the full escrowed amount
}

// EvidenceRequest contains the parameters for submitting evidence.
type EvidenceRequest struct {
	Party   Party  `json:"party" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// DecisionRequest contains a manual reviewer's outcome.
type DecisionRequest struct {
	Outcome escrow.Outcome `json:"outcome" binding:"required"`
}
