package webhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcale/bookpay/internal/ledger"
)

// jsonVerifier accepts signature "valid" and decodes the payload directly,
// standing in for the Stripe signature check in tests.
type jsonVerifier struct{}

func (jsonVerifier) Verify(payload []byte, signature string) (*Event, error) {
	if signature != "valid" {
		return nil, ErrInvalidSignature
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

type recordingApplier struct {
	confirmed []string
	failed    []string
}

func (r *recordingApplier) ConfirmCapture(ctx context.Context, ref string) error {
	r.confirmed = append(r.confirmed, ref)
	return nil
}

func (r *recordingApplier) MarkAuthorizationFailed(ctx context.Context, ref string) error {
	r.failed = append(r.failed, ref)
	return nil
}

func newTestProcessor(led LedgerMarker) (*Processor, *recordingApplier) {
	applier := &recordingApplier{}
	if led == nil {
		led = ledger.New(ledger.NewMemoryStore())
	}
	return NewProcessor(jsonVerifier{}, NewMemoryStore(), applier, led), applier
}

func eventPayload(t *testing.T, id string, kind Kind, ref string) []byte {
	t.Helper()
	payload, err := json.Marshal(Event{ID: id, Kind: kind, GatewayRef: ref})
	require.NoError(t, err)
	return payload
}

func TestProcessRejectsBadSignature(t *testing.T) {
	p, applier := newTestProcessor(nil)

	err := p.Process(context.Background(), eventPayload(t, "evt_1", KindPaymentSucceeded, "pi_1"), "forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, applier.confirmed)
}

func TestProcessAppliesPaymentSucceeded(t *testing.T) {
	p, applier := newTestProcessor(nil)

	err := p.Process(context.Background(), eventPayload(t, "evt_1", KindPaymentSucceeded, "pi_1"), "valid")
	require.NoError(t, err)
	assert.Equal(t, []string{"pi_1"}, applier.confirmed)
}

func TestProcessReplayIsNoOp(t *testing.T) {
	p, applier := newTestProcessor(nil)
	ctx := context.Background()
	payload := eventPayload(t, "evt_replay", KindPaymentSucceeded, "pi_1")

	require.NoError(t, p.Process(ctx, payload, "valid"))
	require.NoError(t, p.Process(ctx, payload, "valid"))

	assert.Len(t, applier.confirmed, 1, "replay must not re-apply the event")
}

func TestProcessIgnoresUnknownKind(t *testing.T) {
	p, applier := newTestProcessor(nil)

	err := p.Process(context.Background(), eventPayload(t, "evt_x", KindUnknown, ""), "valid")
	require.NoError(t, err)
	assert.Empty(t, applier.confirmed)
	assert.Empty(t, applier.failed)
}

func TestProcessPaymentFailed(t *testing.T) {
	p, applier := newTestProcessor(nil)

	err := p.Process(context.Background(), eventPayload(t, "evt_f", KindPaymentFailed, "pi_bad"), "valid")
	require.NoError(t, err)
	assert.Equal(t, []string{"pi_bad"}, applier.failed)
}

func TestProcessPayoutPaidMarksTransaction(t *testing.T) {
	led := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()

	tx, err := led.Record(ctx, &ledger.Transaction{
		BookingID:  "bkg_1111111111111111",
		Type:       ledger.TypePayout,
		Amount:     9200,
		Currency:   "usd",
		GatewayRef: "tr_1",
		Status:     ledger.StatusProcessing,
	})
	require.NoError(t, err)

	p, _ := newTestProcessor(led)
	require.NoError(t, p.Process(ctx, eventPayload(t, "evt_p", KindPayoutPaid, "tr_1"), "valid"))

	got, err := led.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, got.Status)
}

func TestProcessPayoutEventForUnknownTransaction(t *testing.T) {
	p, _ := newTestProcessor(nil)

	// Unknown references are logged and acknowledged, not errored, so the
	// gateway stops redelivering.
	err := p.Process(context.Background(), eventPayload(t, "evt_u", KindPayoutPaid, "tr_missing"), "valid")
	assert.NoError(t, err)
}
