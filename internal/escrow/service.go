package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmcale/bookpay/internal/booking"
	"github.com/jmcale/bookpay/internal/gateway"
	"github.com/jmcale/bookpay/internal/idgen"
	"github.com/jmcale/bookpay/internal/ledger"
	"github.com/jmcale/bookpay/internal/logging"
	"github.com/jmcale/bookpay/internal/metrics"
	"github.com/jmcale/bookpay/internal/retry"
	"github.com/jmcale/bookpay/internal/syncutil"
	"github.com/jmcale/bookpay/internal/traces"
)

// Service implements the escrow state machine.
type Service struct {
	store     Store
	bookings  BookingStore
	ledger    Recorder
	gateway   gateway.PaymentGateway
	policy    Policy
	publisher EventPublisher
	locks     *syncutil.KeyedMutex // per-booking locks serializing money operations
}

// NewService creates a new escrow service.
func NewService(store Store, bookings BookingStore, rec Recorder, gw gateway.PaymentGateway, policy Policy) *Service {
	if policy.GatewayAttempts <= 0 {
		policy.GatewayAttempts = 3
	}
	if policy.GatewayBackoff <= 0 {
		policy.GatewayBackoff = 200 * time.Millisecond
	}
	return &Service{
		store:    store,
		bookings: bookings,
		ledger:   rec,
		gateway:  gw,
		policy:   policy,
		locks:    syncutil.NewKeyedMutex(),
	}
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

// Authorize places a hold on the customer's payment method for the booking
// amount. Idempotent per booking: a second call returns the existing account
// instead of charging again.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (*Account, error) {
	unlock, err := s.locks.Lock(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.store.GetByBooking(ctx, req.BookingID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrEscrowNotFound) {
		return nil, err
	}

	bkg, err := s.bookings.Get(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if bkg.Status != booking.StatusPending {
		return nil, fmt.Errorf("%w: booking is %s", ErrInvalidState, bkg.Status)
	}
	if bkg.Amount < s.policy.MinChargeAmount {
		return nil, fmt.Errorf("%w: %d below minimum chargeable %d", ErrInvalidAmount, bkg.Amount, s.policy.MinChargeAmount)
	}

	mode := req.CaptureMode
	if mode == "" {
		mode = s.policy.DefaultCaptureMode
	}
	if mode == "" {
		mode = gateway.CaptureManual
	}

	ctx, span := traces.StartSpan(ctx, "escrow.authorize",
		traces.BookingID(bkg.ID), traces.Amount(bkg.Amount))
	defer span.End()

	fee := ComputeFee(bkg.Amount, s.policy.CommissionBps)

	var charge *gateway.Charge
	err = retry.Do(ctx, s.policy.GatewayAttempts, s.policy.GatewayBackoff, func() error {
		var gerr error
		charge, gerr = s.gateway.AuthorizeCharge(ctx, gateway.AuthorizeRequest{
			BookingID:      bkg.ID,
			CustomerID:     bkg.CustomerID,
			Amount:         bkg.Amount,
			Currency:       bkg.Currency,
			CaptureMode:    mode,
			IdempotencyKey: bkg.ID + ":authorize",
		})
		return gerr
	})
	if err != nil {
		if errors.Is(err, gateway.ErrChargeDeclined) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: authorize: %v", ErrPaymentFailed, err)
	}

	now := time.Now()
	account := &Account{
		ID:          idgen.WithPrefix("esc_"),
		BookingID:   bkg.ID,
		CustomerID:  bkg.CustomerID,
		ProviderID:  bkg.ProviderID,
		Amount:      bkg.Amount,
		PlatformFee: fee,
		NetAmount:   bkg.Amount - fee,
		Remaining:   bkg.Amount,
		Currency:    bkg.Currency,
		CaptureMode: mode,
		GatewayRef:  charge.Ref,
		State:       StateAuthorized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, account); err != nil {
		// Best-effort void of the hold if the record cannot be persisted.
		_ = s.gateway.CancelCharge(ctx, charge.Ref, bkg.ID+":cancel")
		return nil, fmt.Errorf("failed to create escrow account: %w", err)
	}

	if _, err := s.ledger.Record(ctx, &ledger.Transaction{
		BookingID:  bkg.ID,
		CustomerID: bkg.CustomerID,
		ProviderID: bkg.ProviderID,
		Type:       ledger.TypePayment,
		Amount:     bkg.Amount,
		Currency:   bkg.Currency,
		GatewayRef: charge.Ref,
		Status:     ledger.StatusPending,
	}); err != nil {
		logging.L(ctx).Error("escrow authorized but payment transaction not recorded",
			"bookingId", bkg.ID, "gatewayRef", charge.Ref, "error", err)
	}

	s.publish("escrow.authorized", bkg.ID, account)

	if charge.Captured {
		// Automatic capture mode: the gateway already took the funds.
		if err := s.confirmCaptureLocked(ctx, account); err != nil {
			return nil, err
		}
	}
	return account, nil
}

// ConfirmCapture records a gateway capture success for the charge. Replays
// of the same reference are a no-op.
func (s *Service) ConfirmCapture(ctx context.Context, gatewayRef string) error {
	account, err := s.store.GetByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return err
	}

	unlock, err := s.locks.Lock(ctx, account.BookingID)
	if err != nil {
		return err
	}
	defer unlock()

	// Re-read under lock.
	account, err = s.store.GetByBooking(ctx, account.BookingID)
	if err != nil {
		return err
	}
	return s.confirmCaptureLocked(ctx, account)
}

func (s *Service) confirmCaptureLocked(ctx context.Context, account *Account) error {
	tx, err := s.ledger.GetByGatewayRef(ctx, account.GatewayRef)
	if err != nil {
		return err
	}
	if tx.Status == ledger.StatusCompleted {
		return nil
	}
	if _, err := s.ledger.MarkStatus(ctx, tx.ID, ledger.StatusCompleted); err != nil {
		return err
	}
	if _, err := s.bookings.Transition(ctx, account.BookingID, booking.StatusConfirmed,
		booking.StatusPending, booking.StatusConfirmed); err != nil {
		return err
	}
	s.publish("escrow.captured", account.BookingID, account)
	return nil
}

// MarkAuthorizationFailed records a gateway payment failure for the charge.
// The booking is cancelled and the account closed without any money moving.
func (s *Service) MarkAuthorizationFailed(ctx context.Context, gatewayRef string) error {
	account, err := s.store.GetByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return err
	}

	unlock, err := s.locks.Lock(ctx, account.BookingID)
	if err != nil {
		return err
	}
	defer unlock()

	account, err = s.store.GetByBooking(ctx, account.BookingID)
	if err != nil {
		return err
	}
	if account.IsTerminal() {
		return nil
	}
	if account.State != StateAuthorized {
		return fmt.Errorf("%w: escrow is %s", ErrInvalidState, account.State)
	}

	tx, err := s.ledger.GetByGatewayRef(ctx, account.GatewayRef)
	if err == nil && tx.Status != ledger.StatusFailed {
		_, _ = s.ledger.MarkStatus(ctx, tx.ID, ledger.StatusFailed)
	}

	now := time.Now()
	account.State = StateFailed
	account.Remaining = 0
	account.UpdatedAt = now
	account.SettledAt = &now
	if err := s.store.Update(ctx, account); err != nil {
		return err
	}
	if _, err := s.bookings.Transition(ctx, account.BookingID, booking.StatusCancelled,
		booking.StatusPending, booking.StatusConfirmed); err != nil {
		return err
	}
	s.publish("escrow.failed", account.BookingID, account)
	return nil
}

// Release pays the provider the net amount and finalizes the fee. Valid only
// while the escrow is held; a disputed booking releases through Unfreeze.
func (s *Service) Release(ctx context.Context, bookingID string) (*Account, error) {
	unlock, err := s.locks.Lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	account, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if account.State != StateAuthorized {
		return nil, fmt.Errorf("%w: escrow is %s", ErrInvalidState, account.State)
	}

	ctx, span := traces.StartSpan(ctx, "escrow.release",
		traces.BookingID(bookingID), traces.Amount(account.Remaining))
	defer span.End()

	if err := s.settle(ctx, account, account.Remaining, 0); err != nil {
		return nil, err
	}
	return account, nil
}

// Refund returns funds to the customer. A zero amount means the full
// remaining balance. Valid only while the escrow is held; a disputed booking
// refunds through Unfreeze.
func (s *Service) Refund(ctx context.Context, bookingID string, amount int64, reason string) (*Account, error) {
	unlock, err := s.locks.Lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	account, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if account.State != StateAuthorized {
		return nil, fmt.Errorf("%w: escrow is %s", ErrInvalidState, account.State)
	}
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	if amount == 0 {
		amount = account.Remaining
	}
	if amount > account.Remaining {
		return nil, ErrOverRelease
	}

	ctx, span := traces.StartSpan(ctx, "escrow.refund",
		traces.BookingID(bookingID), traces.Amount(amount))
	defer span.End()

	logging.L(ctx).Info("refunding escrow", "bookingId", bookingID, "amount", amount, "reason", reason)
	if err := s.settle(ctx, account, 0, amount); err != nil {
		return nil, err
	}
	return account, nil
}

// Freeze suspends releases and refunds while a dispute is adjudicated.
// Called exclusively by the dispute workflow.
func (s *Service) Freeze(ctx context.Context, bookingID string) (*Account, error) {
	unlock, err := s.locks.Lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	account, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if account.State != StateAuthorized {
		return nil, fmt.Errorf("%w: escrow is %s", ErrInvalidState, account.State)
	}

	account.State = StateDisputed
	account.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, account); err != nil {
		return nil, err
	}
	if _, err := s.bookings.Transition(ctx, bookingID, booking.StatusDisputed,
		booking.StatusPending, booking.StatusConfirmed); err != nil {
		// Roll the account back so the dispute can be refiled.
		account.State = StateAuthorized
		account.UpdatedAt = time.Now()
		_ = s.store.Update(ctx, account)
		return nil, err
	}
	s.publish("escrow.frozen", bookingID, account)
	return account, nil
}

// Thaw reverts a freeze without moving any money, used when dispute filing
// fails after the funds were already frozen.
func (s *Service) Thaw(ctx context.Context, bookingID string) (*Account, error) {
	unlock, err := s.locks.Lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	account, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if account.State != StateDisputed {
		return nil, fmt.Errorf("%w: escrow is %s", ErrInvalidState, account.State)
	}

	account.State = StateAuthorized
	account.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, account); err != nil {
		return nil, err
	}
	if _, err := s.bookings.Transition(ctx, bookingID, booking.StatusConfirmed,
		booking.StatusDisputed); err != nil {
		return nil, err
	}
	return account, nil
}

// Unfreeze applies a dispute resolution to frozen funds. Exactly one of
// release, refund, or split is performed; the caller retries on failure and
// the operation stays idempotent through gateway idempotency keys.
func (s *Service) Unfreeze(ctx context.Context, bookingID string, outcome Outcome) (*Account, error) {
	unlock, err := s.locks.Lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	account, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if account.IsTerminal() {
		// A retried resolution after a crash between settle and the
		// dispute's own status update. Funds already moved.
		return account, nil
	}
	if account.State != StateDisputed {
		return nil, fmt.Errorf("%w: escrow is %s", ErrInvalidState, account.State)
	}

	releaseGross, refundGross, err := validateOutcome(outcome, account.Remaining)
	if err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "escrow.unfreeze",
		traces.BookingID(bookingID), traces.Amount(releaseGross+refundGross))
	defer span.End()

	if err := s.settle(ctx, account, releaseGross, refundGross); err != nil {
		return nil, err
	}
	return account, nil
}

// settle performs the actual money movement: capture if needed, refund,
// payout, then the state flip. Caller holds the booking lock. Gross amounts
// are consumed from the remaining balance; each settled share pays out its
// amount minus the fee it owes.
func (s *Service) settle(ctx context.Context, account *Account, releaseGross, refundGross int64) error {
	fromDisputed := account.State == StateDisputed

	// A manual hold must be captured before funds can be transferred or
	// partially refunded. Skip when the capture confirmation already landed
	// through the webhook.
	if account.CaptureMode == gateway.CaptureManual {
		tx, txErr := s.ledger.GetByGatewayRef(ctx, account.GatewayRef)
		if txErr != nil || tx.Status != ledger.StatusCompleted {
			err := retry.Do(ctx, s.policy.GatewayAttempts, s.policy.GatewayBackoff, func() error {
				_, cerr := s.gateway.CaptureCharge(ctx, account.GatewayRef, account.BookingID+":capture")
				return cerr
			})
			if err != nil {
				return fmt.Errorf("%w: capture: %v", ErrPaymentFailed, err)
			}
			if txErr == nil {
				if _, err := s.ledger.MarkStatus(ctx, tx.ID, ledger.StatusCompleted); err != nil {
					logging.L(ctx).Error("charge captured but payment transaction not marked completed",
						"bookingId", account.BookingID, "gatewayRef", account.GatewayRef, "error", err)
				}
			}
		}
	}

	if refundGross > 0 {
		// On a dispute refund with a non-refundable fee the platform keeps
		// its commission; the customer gets the refund share net of it.
		refundNet := refundGross
		var refundFee int64
		if fromDisputed && !s.policy.FeeRefundable {
			refundFee = account.PlatformFee
			if refundGross < account.Amount {
				refundFee = ComputeFee(refundGross, s.policy.CommissionBps)
			}
			refundNet = refundGross - refundFee
		}

		if refundNet > 0 {
			var re *gateway.Refund
			err := retry.Do(ctx, s.policy.GatewayAttempts, s.policy.GatewayBackoff, func() error {
				var rerr error
				re, rerr = s.gateway.RefundCharge(ctx, account.GatewayRef, refundNet,
					account.BookingID+":refund")
				return rerr
			})
			if err != nil {
				return fmt.Errorf("%w: refund: %v", ErrPaymentFailed, err)
			}
			if _, err := s.ledger.Record(ctx, &ledger.Transaction{
				BookingID:  account.BookingID,
				CustomerID: account.CustomerID,
				ProviderID: account.ProviderID,
				Type:       ledger.TypeRefund,
				Amount:     refundNet,
				Currency:   account.Currency,
				GatewayRef: re.Ref,
				Status:     ledger.StatusCompleted,
			}); err != nil {
				logging.L(ctx).Error("CRITICAL: refund sent but not recorded in ledger",
					"bookingId", account.BookingID, "amount", refundNet, "error", err)
			}
		}
		if refundFee > 0 {
			if _, err := s.ledger.Record(ctx, &ledger.Transaction{
				BookingID:  account.BookingID,
				CustomerID: account.CustomerID,
				ProviderID: account.ProviderID,
				Type:       ledger.TypeFee,
				Amount:     refundFee,
				Currency:   account.Currency,
				Status:     ledger.StatusCompleted,
			}); err != nil {
				logging.L(ctx).Error("fee transaction not recorded", "bookingId", account.BookingID, "error", err)
			}
		}
	}

	payout := int64(0)
	if releaseGross > 0 {
		fee := account.PlatformFee
		if releaseGross < account.Amount {
			fee = ComputeFee(releaseGross, s.policy.CommissionBps)
		}
		payout = releaseGross - fee

		var tr *gateway.Transfer
		err := retry.Do(ctx, s.policy.GatewayAttempts, s.policy.GatewayBackoff, func() error {
			var terr error
			tr, terr = s.gateway.TransferFunds(ctx, gateway.TransferRequest{
				BookingID:      account.BookingID,
				ProviderID:     account.ProviderID,
				Amount:         payout,
				Currency:       account.Currency,
				IdempotencyKey: account.BookingID + ":release",
			})
			return terr
		})
		if err != nil {
			return fmt.Errorf("%w: transfer: %v", ErrPaymentFailed, err)
		}
		if _, err := s.ledger.Record(ctx, &ledger.Transaction{
			BookingID:  account.BookingID,
			CustomerID: account.CustomerID,
			ProviderID: account.ProviderID,
			Type:       ledger.TypePayout,
			Amount:     payout,
			Currency:   account.Currency,
			GatewayRef: tr.Ref,
			Status:     ledger.StatusCompleted,
		}); err != nil {
			logging.L(ctx).Error("CRITICAL: payout sent but not recorded in ledger",
				"bookingId", account.BookingID, "amount", payout, "error", err)
		}
		if _, err := s.ledger.Record(ctx, &ledger.Transaction{
			BookingID:  account.BookingID,
			CustomerID: account.CustomerID,
			ProviderID: account.ProviderID,
			Type:       ledger.TypeFee,
			Amount:     fee,
			Currency:   account.Currency,
			Status:     ledger.StatusCompleted,
		}); err != nil {
			logging.L(ctx).Error("fee transaction not recorded", "bookingId", account.BookingID, "error", err)
		}
	}

	now := time.Now()
	if releaseGross > 0 {
		account.State = StateReleased
	} else {
		account.State = StateRefunded
	}
	account.Remaining -= releaseGross + refundGross
	account.UpdatedAt = now
	account.SettledAt = &now

	if err := s.store.Update(ctx, account); err != nil {
		// Retry once. Funds already moved; the record must reflect it.
		if retryErr := s.store.Update(ctx, account); retryErr != nil {
			logging.L(ctx).Error("CRITICAL: funds settled but escrow record stale, manual resolution required",
				"bookingId", account.BookingID, "state", account.State, "error", retryErr)
			return fmt.Errorf("failed to update escrow after settlement (requires manual resolution): %w", err)
		}
	}

	bookingStatus := booking.StatusCompleted
	if releaseGross == 0 {
		bookingStatus = booking.StatusRefunded
	}
	fromStatuses := []booking.Status{booking.StatusConfirmed, booking.StatusPending}
	if fromDisputed {
		fromStatuses = []booking.Status{booking.StatusDisputed}
	}
	if _, err := s.bookings.Transition(ctx, account.BookingID, bookingStatus, fromStatuses...); err != nil {
		logging.L(ctx).Error("CRITICAL: escrow settled but booking status update failed",
			"bookingId", account.BookingID, "status", bookingStatus, "error", err)
		return fmt.Errorf("failed to update booking after settlement: %w", err)
	}

	metrics.EscrowSettlementsTotal.WithLabelValues(settlementOutcome(releaseGross, refundGross)).Inc()
	s.publish("escrow.settled", account.BookingID, account)
	return nil
}

func settlementOutcome(releaseGross, refundGross int64) string {
	switch {
	case releaseGross > 0 && refundGross > 0:
		return "split"
	case releaseGross > 0:
		return "released"
	default:
		return "refunded"
	}
}

// Summary reports the account plus how much has actually settled in the
// ledger, for reconciliation.
func (s *Service) Summary(ctx context.Context, bookingID string) (*Account, int64, error) {
	account, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, 0, err
	}
	settled, err := s.ledger.SettledTotal(ctx, bookingID)
	if err != nil {
		return nil, 0, err
	}
	return account, settled, nil
}

// GetByBooking returns the escrow account for a booking.
func (s *Service) GetByBooking(ctx context.Context, bookingID string) (*Account, error) {
	return s.store.GetByBooking(ctx, bookingID)
}
