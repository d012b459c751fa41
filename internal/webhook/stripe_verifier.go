package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
)

// StripeVerifier validates deliveries against the endpoint's signing secret.
type StripeVerifier struct {
	secret string
}

// NewStripeVerifier creates a verifier for the given webhook signing secret.
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

func (v *StripeVerifier) Verify(payload []byte, signature string) (*Event, error) {
	ev, err := stripewebhook.ConstructEvent(payload, signature, v.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return normalize(ev)
}

func normalize(ev stripe.Event) (*Event, error) {
	var object struct {
		ID            string `json:"id"`
		PaymentIntent string `json:"payment_intent"`
	}
	if len(ev.Data.Raw) > 0 {
		if err := json.Unmarshal(ev.Data.Raw, &object); err != nil {
			return nil, fmt.Errorf("malformed event payload: %w", err)
		}
	}

	out := &Event{ID: ev.ID, Raw: ev.Data.Raw}
	switch ev.Type {
	case "payment_intent.succeeded":
		out.Kind = KindPaymentSucceeded
		out.GatewayRef = object.ID
	case "payment_intent.payment_failed":
		out.Kind = KindPaymentFailed
		out.GatewayRef = object.ID
	case "charge.refunded":
		out.Kind = KindChargeRefunded
		out.GatewayRef = object.PaymentIntent
	case "payout.created":
		out.Kind = KindPayoutCreated
		out.GatewayRef = object.ID
	case "payout.paid":
		out.Kind = KindPayoutPaid
		out.GatewayRef = object.ID
	case "payout.failed":
		out.Kind = KindPayoutFailed
		out.GatewayRef = object.ID
	case "account.updated":
		out.Kind = KindAccountUpdated
		out.GatewayRef = object.ID
	default:
		out.Kind = KindUnknown
	}
	return out, nil
}
