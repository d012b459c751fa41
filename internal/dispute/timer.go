package dispute

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer periodically advances disputes whose evidence deadline has passed
// and retries settlements for adjudicated disputes whose fund movement
// failed. Deadlines are persisted, so the loop survives process restarts.
type Timer struct {
	service  *Service
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a new dispute deadline timer.
func NewTimer(service *Service, store Store, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Timer{
		service:  service,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the deadline loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeTick(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in dispute timer", "panic", fmt.Sprint(r))
		}
	}()
	t.tick(ctx)
}

func (t *Timer) tick(ctx context.Context) {
	now := time.Now()

	// 1. Advance disputes whose evidence window has expired.
	expired, err := t.store.ListDeadlinePassed(ctx, now, 100)
	if err != nil {
		t.logger.Warn("failed to list expired evidence windows", "error", err)
	} else {
		for _, d := range expired {
			if _, err := t.service.ExpireDeadline(ctx, d.ID); err != nil {
				t.logger.Warn("failed to advance expired dispute",
					"disputeId", d.ID, "error", err)
			} else {
				t.logger.Info("evidence window expired, review started", "disputeId", d.ID)
			}
		}
	}

	// 2. Retry fund movement for adjudicated but unsettled disputes.
	unsettled, err := t.store.ListUnsettled(ctx, 100)
	if err != nil {
		t.logger.Warn("failed to list unsettled disputes", "error", err)
		return
	}
	for _, d := range unsettled {
		if err := t.service.RetrySettlement(ctx, d.ID); err != nil {
			t.logger.Warn("dispute settlement retry failed",
				"disputeId", d.ID, "bookingId", d.BookingID, "error", err)
		} else {
			t.logger.Info("dispute settlement completed on retry", "disputeId", d.ID)
		}
	}
}
