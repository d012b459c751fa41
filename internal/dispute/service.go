package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmcale/bookpay/internal/escrow"
	"github.com/jmcale/bookpay/internal/idgen"
	"github.com/jmcale/bookpay/internal/logging"
	"github.com/jmcale/bookpay/internal/metrics"
	"github.com/jmcale/bookpay/internal/retry"
	"github.com/jmcale/bookpay/internal/syncutil"
	"github.com/jmcale/bookpay/internal/traces"
)

// EscrowService is the slice of the escrow service the workflow drives.
type EscrowService interface {
	GetByBooking(ctx context.Context, bookingID string) (*escrow.Account, error)
	Freeze(ctx context.Context, bookingID string) (*escrow.Account, error)
	Thaw(ctx context.Context, bookingID string) (*escrow.Account, error)
	Unfreeze(ctx context.Context, bookingID string, outcome escrow.Outcome) (*escrow.Account, error)
}

// EventPublisher pushes dispute transitions to connected clients.
type EventPublisher interface {
	Publish(kind, bookingID string, payload any)
}

// Policy carries the workflow timings, injected so tests can shrink them.
type Policy struct {
	EvidenceWindow time.Duration
	ReviewTimeout  time.Duration
	SettleAttempts int
	SettleBackoff  time.Duration
}

// Service implements the dispute state machine.
type Service struct {
	store     Store
	escrow    EscrowService
	decider   Decider
	policy    Policy
	publisher EventPublisher
	locks     *syncutil.KeyedMutex // per-dispute locks serializing workflow transitions
}

// NewService creates a new dispute service. A nil decider escalates every
// case to manual review.
func NewService(store Store, esc EscrowService, decider Decider, policy Policy) *Service {
	if decider == nil {
		decider = EscalateAll{}
	}
	if policy.EvidenceWindow <= 0 {
		policy.EvidenceWindow = 72 * time.Hour
	}
	if policy.ReviewTimeout <= 0 {
		policy.ReviewTimeout = 30 * time.Second
	}
	if policy.SettleAttempts <= 0 {
		policy.SettleAttempts = 3
	}
	if policy.SettleBackoff <= 0 {
		policy.SettleBackoff = 200 * time.Millisecond
	}
	return &Service{store: store, escrow: esc, decider: decider, policy: policy, locks: syncutil.NewKeyedMutex()}
}

// WithPublisher adds a realtime event publisher.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) publish(kind, bookingID string, payload any) {
	if s.publisher != nil {
		s.publisher.Publish(kind, bookingID, payload)
	}
}

// File opens a dispute on a booking whose escrow is still held. The escrow
// is frozen before the dispute record is created; a failed create thaws it
// back so the dispute can be refiled.
func (s *Service) File(ctx context.Context, req FileRequest) (*Dispute, error) {
	if !ValidReason(req.Reason) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReason, req.Reason)
	}
	if req.InitiatedBy != PartyCustomer && req.InitiatedBy != PartyProvider {
		return nil, fmt.Errorf("%w: %q", ErrNotParty, req.InitiatedBy)
	}

	account, err := s.escrow.GetByBooking(ctx, req.BookingID)
	if errors.Is(err, escrow.ErrEscrowNotFound) {
		return nil, fmt.Errorf("%w: no escrowed funds", ErrBookingNotEligible)
	}
	if err != nil {
		return nil, err
	}
	if req.Amount < 0 || req.Amount > account.Remaining {
		return nil, fmt.Errorf("%w: disputed amount exceeds escrowed balance", ErrBookingNotEligible)
	}
	if existing, err := s.store.GetActiveByBooking(ctx, req.BookingID); err == nil && existing != nil {
		return nil, ErrDisputeActive
	}

	ctx, span := traces.StartSpan(ctx, "dispute.file", traces.BookingID(req.BookingID))
	defer span.End()

	// Freeze wins or loses the race against a concurrent release; a loss
	// means the funds settled and the booking is no longer disputable.
	if _, err := s.escrow.Freeze(ctx, req.BookingID); err != nil {
		if errors.Is(err, escrow.ErrInvalidState) {
			return nil, fmt.Errorf("%w: funds already settled or frozen", ErrBookingNotEligible)
		}
		return nil, err
	}

	amount := req.Amount
	if amount == 0 {
		amount = account.Remaining
	}
	now := time.Now()
	d := &Dispute{
		ID:               idgen.WithPrefix("dsp_"),
		BookingID:        req.BookingID,
		InitiatedBy:      req.InitiatedBy,
		Reason:           req.Reason,
		Description:      req.Description,
		Amount:           amount,
		Status:           StatusInitiated,
		EvidenceDeadline: now.Add(s.policy.EvidenceWindow),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, d); err != nil {
		if _, thawErr := s.escrow.Thaw(ctx, req.BookingID); thawErr != nil {
			logging.L(ctx).Error("CRITICAL: escrow frozen but dispute not created and thaw failed",
				"bookingId", req.BookingID, "error", thawErr)
		}
		return nil, err
	}

	metrics.DisputesFiledTotal.WithLabelValues(string(req.Reason)).Inc()
	s.publish("dispute.filed", d.BookingID, d)

	// Filing immediately opens the evidence window.
	d.Status = StatusEvidenceCollection
	d.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, d); err != nil {
		// The deadline timer will still pick it up; initiated disputes
		// with a passed deadline advance the same way.
		logging.L(ctx).Error("dispute created but evidence window not opened",
			"disputeId", d.ID, "error", err)
	}
	return d, nil
}

// SubmitEvidence attaches material from one of the parties. Submissions to a
// resolved dispute are ignored; both parties submitting closes the window
// early and starts automated review.
func (s *Service) SubmitEvidence(ctx context.Context, disputeID string, req EvidenceRequest) (*Dispute, error) {
	if req.Party != PartyCustomer && req.Party != PartyProvider {
		return nil, fmt.Errorf("%w: %q", ErrNotParty, req.Party)
	}

	unlock, err := s.locks.Lock(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.IsTerminal() {
		// Stale submission after resolution; ignore rather than error.
		return d, nil
	}
	if d.Status != StatusInitiated && d.Status != StatusEvidenceCollection {
		return nil, fmt.Errorf("%w: dispute is %s", ErrInvalidState, d.Status)
	}

	if err := s.store.AddEvidence(ctx, &Evidence{
		ID:          idgen.WithPrefix("evd_"),
		DisputeID:   d.ID,
		Party:       req.Party,
		Content:     req.Content,
		SubmittedAt: time.Now(),
	}); err != nil {
		return nil, err
	}
	s.publish("dispute.evidence", d.BookingID, d)

	evidence, err := s.store.ListEvidence(ctx, d.ID)
	if err != nil {
		return d, nil
	}
	if bothPartiesSubmitted(evidence) {
		return s.runAutomatedReview(ctx, d)
	}
	return d, nil
}

func bothPartiesSubmitted(evidence []*Evidence) bool {
	var customer, provider bool
	for _, e := range evidence {
		switch e.Party {
		case PartyCustomer:
			customer = true
		case PartyProvider:
			provider = true
		}
	}
	return customer && provider
}

// ExpireDeadline advances a dispute whose evidence window has passed.
// Absence of evidence is itself evidence; the workflow never stalls here.
func (s *Service) ExpireDeadline(ctx context.Context, disputeID string) (*Dispute, error) {
	unlock, err := s.locks.Lock(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusInitiated && d.Status != StatusEvidenceCollection {
		// A submission already advanced it, or it resolved. Stale timer.
		return d, nil
	}
	if time.Now().Before(d.EvidenceDeadline) {
		return d, nil
	}
	return s.runAutomatedReview(ctx, d)
}

// runAutomatedReview scores the case within the review time budget. Caller
// holds the dispute lock. Low confidence, errors, and timeouts all escalate
// to manual review rather than failing the dispute.
func (s *Service) runAutomatedReview(ctx context.Context, d *Dispute) (*Dispute, error) {
	d.Status = StatusAutomatedReview
	d.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}
	s.publish("dispute.review", d.BookingID, d)

	evidence, err := s.store.ListEvidence(ctx, d.ID)
	if err != nil {
		evidence = nil
	}

	reviewCtx, cancel := context.WithTimeout(ctx, s.policy.ReviewTimeout)
	defer cancel()
	decision, err := s.decider.Decide(reviewCtx, d, evidence)
	if err != nil || !decision.Resolved {
		if err != nil {
			logging.L(ctx).Warn("automated review failed, escalating",
				"disputeId", d.ID, "error", err)
		}
		d.Status = StatusManualReview
		d.UpdatedAt = time.Now()
		if uerr := s.store.Update(ctx, d); uerr != nil {
			return nil, uerr
		}
		s.publish("dispute.escalated", d.BookingID, d)
		return d, nil
	}

	return s.resolve(ctx, d, decision.Outcome, "automated")
}

// SubmitManualDecision accepts an operator's outcome for a dispute in manual
// review. Re-submitting after resolution is a no-op.
func (s *Service) SubmitManualDecision(ctx context.Context, disputeID string, outcome escrow.Outcome) (*Dispute, error) {
	unlock, err := s.locks.Lock(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.IsTerminal() {
		return d, nil
	}
	if d.Status != StatusManualReview {
		return nil, fmt.Errorf("%w: dispute is %s", ErrInvalidState, d.Status)
	}
	return s.resolve(ctx, d, outcome, "manual")
}

// resolve records the outcome, settles the frozen funds, and only then marks
// the dispute resolved. The outcome is persisted before any money moves so a
// settlement failure is retried by the timer without re-running adjudication.
func (s *Service) resolve(ctx context.Context, d *Dispute, outcome escrow.Outcome, tier string) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.resolve",
		traces.DisputeID(d.ID), traces.BookingID(d.BookingID))
	defer span.End()

	d.Outcome = &outcome
	d.ResolutionTier = tier
	d.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	if err := s.settle(ctx, d); err != nil {
		logging.L(ctx).Error("dispute adjudicated but settlement pending",
			"disputeId", d.ID, "bookingId", d.BookingID, "error", err)
		return d, err
	}
	return d, nil
}

// settle moves the funds per the recorded outcome and flips the dispute to
// resolved. Caller holds the dispute lock.
func (s *Service) settle(ctx context.Context, d *Dispute) error {
	err := retry.Do(ctx, s.policy.SettleAttempts, s.policy.SettleBackoff, func() error {
		_, uerr := s.escrow.Unfreeze(ctx, d.BookingID, *d.Outcome)
		if uerr != nil && (errors.Is(uerr, escrow.ErrOverRelease) || errors.Is(uerr, escrow.ErrInvalidAmount)) {
			return retry.Permanent(uerr)
		}
		return uerr
	})
	if err != nil {
		return err
	}

	now := time.Now()
	d.Status = StatusResolved
	d.ResolvedAt = &now
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d); err != nil {
		// Funds settled; Unfreeze tolerates a replay, so the retry path
		// will converge the record.
		logging.L(ctx).Error("CRITICAL: funds settled but dispute not marked resolved",
			"disputeId", d.ID, "error", err)
		return err
	}

	metrics.DisputesResolvedTotal.WithLabelValues(d.ResolutionTier).Inc()
	metrics.DisputeResolutionDuration.Observe(now.Sub(d.CreatedAt).Seconds())
	s.publish("dispute.resolved", d.BookingID, d)
	return nil
}

// RetrySettlement re-attempts fund movement for an adjudicated dispute whose
// settlement failed. Called by the timer.
func (s *Service) RetrySettlement(ctx context.Context, disputeID string) error {
	unlock, err := s.locks.Lock(ctx, disputeID)
	if err != nil {
		return err
	}
	defer unlock()

	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return err
	}
	if d.IsTerminal() || d.Outcome == nil {
		return nil
	}
	return s.settle(ctx, d)
}

// GetStatus returns the public progress report for a dispute.
func (s *Service) GetStatus(ctx context.Context, disputeID string) (*StatusReport, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	var remaining int64
	if d.Status == StatusInitiated || d.Status == StatusEvidenceCollection {
		if until := time.Until(d.EvidenceDeadline); until > 0 {
			remaining = int64(until.Seconds())
		}
	}
	return &StatusReport{
		DisputeID:     d.ID,
		Status:        d.Status,
		TimeRemaining: remaining,
		Outcome:       d.Outcome,
	}, nil
}

// Get returns a dispute by ID.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// GetActiveByBooking returns the booking's unresolved dispute, if any.
func (s *Service) GetActiveByBooking(ctx context.Context, bookingID string) (*Dispute, error) {
	return s.store.GetActiveByBooking(ctx, bookingID)
}

// Evidence returns the material submitted for a dispute.
func (s *Service) Evidence(ctx context.Context, disputeID string) ([]*Evidence, error) {
	return s.store.ListEvidence(ctx, disputeID)
}
