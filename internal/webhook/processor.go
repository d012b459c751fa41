package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmcale/bookpay/internal/escrow"
	"github.com/jmcale/bookpay/internal/ledger"
	"github.com/jmcale/bookpay/internal/logging"
	"github.com/jmcale/bookpay/internal/metrics"
	"github.com/jmcale/bookpay/internal/traces"
)

// EscrowApplier is the slice of the escrow service webhook events drive.
type EscrowApplier interface {
	ConfirmCapture(ctx context.Context, gatewayRef string) error
	MarkAuthorizationFailed(ctx context.Context, gatewayRef string) error
}

// LedgerMarker updates transaction statuses as the gateway settles them.
type LedgerMarker interface {
	GetByGatewayRef(ctx context.Context, ref string) (*ledger.Transaction, error)
	MarkStatus(ctx context.Context, id string, status ledger.Status) (*ledger.Transaction, error)
}

// Processor verifies, deduplicates, and applies gateway events.
type Processor struct {
	verifier Verifier
	store    Store
	escrow   EscrowApplier
	ledger   LedgerMarker
}

// NewProcessor creates a webhook processor.
func NewProcessor(verifier Verifier, store Store, esc EscrowApplier, led LedgerMarker) *Processor {
	return &Processor{verifier: verifier, store: store, escrow: esc, ledger: led}
}

// Process handles one raw delivery. Replays of an already-processed event ID
// return nil without applying anything.
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) error {
	ev, err := p.verifier.Verify(payload, signature)
	if err != nil {
		metrics.GatewayEventsTotal.WithLabelValues("webhook", "rejected").Inc()
		return err
	}

	ctx, span := traces.StartSpan(ctx, "webhook.process", traces.EventID(ev.ID))
	defer span.End()

	if ev.Kind == KindUnknown {
		logging.L(ctx).Info("ignoring unknown gateway event", "eventId", ev.ID)
		metrics.GatewayEventsTotal.WithLabelValues("webhook", "ignored").Inc()
		return nil
	}

	seen, err := p.store.Seen(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		metrics.GatewayEventsTotal.WithLabelValues(string(ev.Kind), "duplicate").Inc()
		return nil
	}

	if err := p.apply(ctx, ev); err != nil {
		metrics.GatewayEventsTotal.WithLabelValues(string(ev.Kind), "error").Inc()
		return err
	}

	if err := p.store.MarkProcessed(ctx, ev.ID, ev.Kind, time.Now()); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			// A concurrent delivery applied it first; effects are idempotent.
			return nil
		}
		return fmt.Errorf("mark processed: %w", err)
	}
	metrics.GatewayEventsTotal.WithLabelValues(string(ev.Kind), "applied").Inc()
	return nil
}

func (p *Processor) apply(ctx context.Context, ev *Event) error {
	log := logging.L(ctx)
	switch ev.Kind {
	case KindPaymentSucceeded:
		err := p.escrow.ConfirmCapture(ctx, ev.GatewayRef)
		if errors.Is(err, escrow.ErrEscrowNotFound) {
			log.Warn("payment succeeded for unknown escrow", "eventId", ev.ID, "gatewayRef", ev.GatewayRef)
			return nil
		}
		return err

	case KindPaymentFailed:
		err := p.escrow.MarkAuthorizationFailed(ctx, ev.GatewayRef)
		if errors.Is(err, escrow.ErrEscrowNotFound) {
			log.Warn("payment failed for unknown escrow", "eventId", ev.ID, "gatewayRef", ev.GatewayRef)
			return nil
		}
		return err

	case KindPayoutCreated:
		return p.markPayout(ctx, ev, ledger.StatusProcessing)
	case KindPayoutPaid:
		return p.markPayout(ctx, ev, ledger.StatusCompleted)
	case KindPayoutFailed:
		log.Error("gateway reported payout failure, reconciliation needed",
			"eventId", ev.ID, "gatewayRef", ev.GatewayRef)
		return p.markPayout(ctx, ev, ledger.StatusFailed)

	case KindChargeRefunded, KindAccountUpdated:
		// Confirmations of actions this system initiated, or account
		// status changes outside the money state machine.
		log.Info("gateway event acknowledged", "eventId", ev.ID, "kind", ev.Kind)
		return nil

	default:
		return nil
	}
}

func (p *Processor) markPayout(ctx context.Context, ev *Event, status ledger.Status) error {
	tx, err := p.ledger.GetByGatewayRef(ctx, ev.GatewayRef)
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		logging.L(ctx).Warn("payout event for unknown transaction", "eventId", ev.ID, "gatewayRef", ev.GatewayRef)
		return nil
	}
	if err != nil {
		return err
	}
	if tx.Status == status {
		return nil
	}
	_, err = p.ledger.MarkStatus(ctx, tx.ID, status)
	return err
}
