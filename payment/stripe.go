// Package payment talks to Stripe: promotion code lookup, hosted checkout
// sessions and webhook verification.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"marketplace-svc/circuitbreaker"
	"marketplace-svc/config"
	"marketplace-svc/models"
	"marketplace-svc/money"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrPromotionNotFound = errors.New("promotion code not found")

type Promotion struct {
	ID         string
	Code       string
	PercentOff float64
}

type LineItem struct {
	Name     string
	Price    float64
	Quantity int
}

type CheckoutRequest struct {
	Items         []LineItem
	TaxPrice      float64
	ShippingPrice float64
	PromotionID   string
	CustomerEmail string
	Metadata      map[string]string
	// ExpiresAt closes the session early; Stripe accepts 30 minutes to 24
	// hours from creation. Zero keeps Stripe's default.
	ExpiresAt time.Time
}

type StripeProvider struct {
	api     *client.API
	breaker *circuitbreaker.CircuitBreaker
	cfg     config.Stripe
	logger  *zap.Logger
}

func NewStripeProvider(cfg config.Stripe, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *StripeProvider {
	return newStripeProvider(cfg, nil, breaker, logger)
}

// backends is nil outside tests.
func newStripeProvider(cfg config.Stripe, backends *stripe.Backends, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *StripeProvider {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &StripeProvider{
		api:     api,
		breaker: breaker.WithFailurePredicate(IsProviderFailure),
		cfg:     cfg,
		logger:  logger,
	}
}

// LookupPromotion finds the active promotion code spelled exactly code.
func (p *StripeProvider) LookupPromotion(ctx context.Context, code string) (Promotion, error) {
	ctx, span := otel.Tracer("payment").Start(ctx, "LookupPromotion")
	defer span.End()

	var promo Promotion
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		params := &stripe.PromotionCodeListParams{
			Code:   stripe.String(code),
			Active: stripe.Bool(true),
		}
		params.Context = ctx
		iter := p.api.PromotionCodes.List(params)
		for iter.Next() {
			pc := iter.PromotionCode()
			if pc.Code != code || !pc.Active || pc.Coupon == nil {
				continue
			}
			promo = Promotion{ID: pc.ID, Code: pc.Code, PercentOff: pc.Coupon.PercentOff}
			return nil
		}
		if err := iter.Err(); err != nil {
			return err
		}
		return ErrPromotionNotFound
	})
	if err != nil && !errors.Is(err, ErrPromotionNotFound) {
		span.RecordError(err)
	}
	return promo, err
}

// CreateCheckoutSession opens a hosted payment page for the given lines.
// Tax and shipping are charged as separate lines when non-zero.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (models.CheckoutSession, error) {
	ctx, span := otel.Tracer("payment").Start(ctx, "CreateCheckoutSession")
	defer span.End()

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.cfg.SuccessURL),
		CancelURL:  stripe.String(p.cfg.CancelURL),
		LineItems:  p.lineItems(req),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.PromotionID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{PromotionCode: stripe.String(req.PromotionID)},
		}
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	var session models.CheckoutSession
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		params.Context = ctx
		s, err := p.api.CheckoutSessions.New(params)
		if err != nil {
			return err
		}
		session = models.CheckoutSession{SessionID: s.ID, SessionURL: s.URL}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return models.CheckoutSession{}, fmt.Errorf("failed to create checkout session: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", session.SessionID))
	return session, nil
}

func (p *StripeProvider) lineItems(req CheckoutRequest) []*stripe.CheckoutSessionLineItemParams {
	lines := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items)+2)
	add := func(name string, price float64, qty int) {
		lines = append(lines, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.cfg.Currency),
				UnitAmount: stripe.Int64(money.ToMinorUnits(price)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
			Quantity: stripe.Int64(int64(qty)),
		})
	}

	for _, item := range req.Items {
		add(item.Name, item.Price, item.Quantity)
	}
	if req.TaxPrice > 0 {
		add("Tax", req.TaxPrice, 1)
	}
	if req.ShippingPrice > 0 {
		add("Shipping", req.ShippingPrice, 1)
	}
	return lines
}

// ExpireCheckoutSession closes a session that is still open. A session that
// already completed or expired is left alone.
func (p *StripeProvider) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	ctx, span := otel.Tracer("payment").Start(ctx, "ExpireCheckoutSession")
	defer span.End()

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		params := &stripe.CheckoutSessionExpireParams{}
		params.Context = ctx
		_, err := p.api.CheckoutSessions.Expire(sessionID, params)
		return err
	})
	if isNotOpen(err) {
		p.logger.Info("Checkout session already closed", zap.String("session_id", sessionID))
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to expire checkout session %s: %w", sessionID, err)
	}
	return nil
}

// RefundPayment returns the full amount of a captured payment intent.
func (p *StripeProvider) RefundPayment(ctx context.Context, paymentIntentID string) error {
	ctx, span := otel.Tracer("payment").Start(ctx, "RefundPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment_intent.id", paymentIntentID))

	var refundID string
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
		params.Context = ctx
		r, err := p.api.Refunds.New(params)
		if err != nil {
			return err
		}
		refundID = r.ID
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to refund payment %s: %w", paymentIntentID, err)
	}
	p.logger.Info("Payment refunded", zap.String("payment_intent_id", paymentIntentID), zap.String("refund_id", refundID))
	return nil
}

// IsProviderFailure reports whether err says Stripe itself is unhealthy, as
// opposed to Stripe rejecting the request.
func IsProviderFailure(err error) bool {
	if err == nil || errors.Is(err, ErrPromotionNotFound) {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return true
}

func isNotOpen(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Type == stripe.ErrorTypeInvalidRequest &&
		(strings.Contains(stripeErr.Msg, "status") || stripeErr.HTTPStatusCode == http.StatusNotFound)
}
