package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const EventCheckoutSessionCompleted = string(stripe.EventTypeCheckoutSessionCompleted)

// CompletedSession is the part of a paid checkout session needed to
// materialize an order.
type CompletedSession struct {
	ID              string
	CustomerEmail   string
	Metadata        map[string]string
	AmountTotal     int64 // minor units actually charged
	PaymentIntentID string
}

type WebhookEvent struct {
	ID      string
	Type    string
	Session *CompletedSession // set for checkout.session.completed
}

type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Parse checks the Stripe-Signature header against payload and decodes the
// event.
func (v *WebhookVerifier) Parse(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, err
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return out, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return WebhookEvent{}, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	out.Session = &CompletedSession{
		ID:            session.ID,
		CustomerEmail: session.CustomerEmail,
		Metadata:      session.Metadata,
		AmountTotal:   session.AmountTotal,
	}
	if session.PaymentIntent != nil {
		out.Session.PaymentIntentID = session.PaymentIntent.ID
	}
	return out, nil
}
