package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"marketplace-svc/apperror"
	"marketplace-svc/cart"
	"marketplace-svc/database"
	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/money"
	"marketplace-svc/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// metadata keys carried through the checkout session
const (
	metaCartID     = "cartId"
	metaUserID     = "userId"
	metaDigest     = "cartDigest"
	metaPhone      = "phone"
	metaCountry    = "country"
	metaState      = "state"
	metaCity       = "city"
	metaStreet     = "street"
	metaPostalCode = "postalCode"
)

const (
	// Stripe rejects session expiries under 30 minutes.
	checkoutSessionTTL = 31 * time.Minute
	// the cart outlives its open session by this much, leaving room for a
	// late completion webhook
	checkoutGrace = 15 * time.Minute
)

// CreateCheckoutSession prices the user's cart and opens a card payment
// session for it. A previously opened session of the cart is expired, and
// the cart's expiry job is moved past the new session's lifetime.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID, email string, req models.CreateOrderRequest) (models.CheckoutSession, error) {
	var (
		cartID   string
		previous string
		digest   string
		checkout payment.CheckoutRequest
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		c, err := tx.GetCartByUser(ctx, userID)
		if errors.Is(err, database.ErrNotFound) {
			return apperror.NotFound("No shopping cart for this user.")
		}
		if err != nil {
			return err
		}
		if err := cart.Refresh(ctx, tx, c); err != nil {
			return err
		}
		if len(c.CartItems) == 0 {
			return apperror.BadRequest("Shopping cart is empty.")
		}

		products, err := tx.GetProducts(ctx, c.ProductIDs())
		if err != nil {
			return err
		}
		cartID = c.ID
		previous = c.PendingCheckoutSessionID
		digest = cartDigest(c)
		checkout = checkoutRequest(c, products, email, req)
		checkout.Metadata[metaDigest] = digest
		checkout.ExpiresAt = s.now().Add(checkoutSessionTTL)
		return tx.SaveCart(ctx, c)
	})
	if err != nil {
		return models.CheckoutSession{}, err
	}

	s.expireSession(ctx, previous)

	session, err := s.payments.CreateCheckoutSession(ctx, checkout)
	if err != nil {
		return models.CheckoutSession{}, err
	}

	jobID, err := s.jobs.ScheduleAfter(ctx, cartID, checkoutSessionTTL+checkoutGrace)
	if err != nil {
		s.expireSession(ctx, session.SessionID)
		return models.CheckoutSession{}, fmt.Errorf("failed to schedule cart expiry: %w", err)
	}

	var replacedJob string
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		c, err := tx.GetCartByID(ctx, cartID)
		if err != nil {
			return err
		}
		if len(c.CartItems) == 0 || c.PendingCheckoutSessionID != previous || cartDigest(c) != digest {
			return apperror.New(http.StatusConflict, "Shopping cart changed while opening the checkout session, please try again.")
		}
		replacedJob = c.PendingExpiryJobID
		c.PendingExpiryJobID = jobID
		c.PendingCheckoutSessionID = session.SessionID
		return tx.SaveCart(ctx, c)
	})
	if err != nil {
		s.cancelJob(ctx, jobID)
		s.expireSession(ctx, session.SessionID)
		if _, ok := apperror.As(err); ok {
			s.logger.Warn("Discarded checkout session of a changed cart",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("cart_id", cartID),
				zap.String("session_id", session.SessionID),
			)
			return models.CheckoutSession{}, err
		}
		return models.CheckoutSession{}, fmt.Errorf("failed to record checkout session: %w", err)
	}
	s.cancelJob(ctx, replacedJob)

	s.logger.Info("Checkout session created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("cart_id", cartID),
		zap.String("session_id", session.SessionID),
		zap.String("job_id", jobID),
	)
	return session, nil
}

func checkoutRequest(c *models.Cart, products map[string]*models.Product, email string, req models.CreateOrderRequest) payment.CheckoutRequest {
	items := make([]payment.LineItem, 0, len(c.CartItems))
	for _, item := range c.CartItems {
		name := item.ProductID
		if p, ok := products[item.ProductID]; ok && p.Title != "" {
			name = p.Title
		}
		if item.Size != "" {
			name = fmt.Sprintf("%s (%s)", name, item.Size)
		}
		items = append(items, payment.LineItem{Name: name, Price: item.Price, Quantity: item.Quantity})
	}

	out := payment.CheckoutRequest{
		Items:         items,
		TaxPrice:      c.Pricing.TaxPrice,
		ShippingPrice: c.Pricing.ShippingPrice,
		CustomerEmail: email,
		Metadata: map[string]string{
			metaCartID:     c.ID,
			metaUserID:     c.UserID,
			metaPhone:      req.Phone,
			metaCountry:    req.Country,
			metaState:      req.State,
			metaCity:       req.City,
			metaStreet:     req.Street,
			metaPostalCode: req.PostalCode,
		},
	}
	if c.Coupon != nil {
		out.PromotionID = c.Coupon.CouponID
	}
	return out
}

var errAlreadyProcessed = errors.New("checkout session already has an order")

// ConfirmCheckoutSession materializes the paid order of a completed checkout
// session. Redelivered sessions return the existing order with created set
// to false.
//
// A session whose cart is gone, empty or no longer what was paid for is
// recorded as a cancelled order with a failed payment and refunded; the
// cart and stock are left alone.
func (s *Service) ConfirmCheckoutSession(ctx context.Context, session payment.CompletedSession) (order *models.Order, created bool, err error) {
	md := session.Metadata
	cartID, userID := md[metaCartID], md[metaUserID]
	if cartID == "" || userID == "" {
		return nil, false, apperror.BadRequest("checkout session %s has no cart metadata", session.ID)
	}
	addr := models.ShippingAddress{
		Country:    md[metaCountry],
		State:      md[metaState],
		City:       md[metaCity],
		Street:     md[metaStreet],
		PostalCode: md[metaPostalCode],
	}

	var (
		pending  pendingWork
		mismatch string
	)
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		existing, err := tx.FindOrderBySession(ctx, session.ID)
		if err == nil {
			order = existing
			return errAlreadyProcessed
		}
		if !errors.Is(err, database.ErrNotFound) {
			return err
		}

		c, err := tx.GetCartByID(ctx, cartID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			c, mismatch = nil, "cart no longer exists"
		case err != nil:
			return err
		case c.UserID != userID:
			return apperror.BadRequest("checkout session %s does not belong to the cart owner", session.ID)
		case len(c.CartItems) == 0:
			mismatch = "cart is empty"
		case cartDigest(c) != md[metaDigest]:
			mismatch = "cart changed after the session was opened"
		}

		paidAt := s.now()
		if mismatch != "" {
			order = unmatchedOrder(session, userID, md[metaPhone], addr)
			order.PaidAt = &paidAt
			err = tx.InsertOrder(ctx, order)
			if err == nil && c != nil && c.PendingCheckoutSessionID == session.ID {
				c.PendingCheckoutSessionID = ""
				err = tx.SaveCart(ctx, c)
			}
		} else {
			order = snapshot(c, md[metaPhone], addr)
			order.ID = uuid.NewString()
			order.PaymentMethod = models.PaymentMethodCreditCard
			order.PaymentStatus = models.PaymentStatusCompleted
			order.CheckoutSessionID = session.ID
			order.PaidAt = &paidAt
			pending, err = s.materialize(ctx, tx, c, order)
		}
		if errors.Is(err, database.ErrDuplicate) {
			// lost the race against a concurrent delivery
			order = nil
			return errAlreadyProcessed
		}
		return err
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.logger.Info("Checkout session already materialized", zap.String("session_id", session.ID))
		if order == nil {
			order, err = s.store.Queries().FindOrderBySession(ctx, session.ID)
			if err != nil {
				return nil, false, err
			}
		}
		return order, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if mismatch != "" {
		s.refundUnmatched(ctx, order, session, mismatch)
		return order, true, nil
	}
	s.afterCommit(ctx, order, pending)
	return order, true, nil
}

// unmatchedOrder records a payment that no cart content backs. It holds
// what was charged and nothing to ship.
func unmatchedOrder(session payment.CompletedSession, userID, phone string, addr models.ShippingAddress) *models.Order {
	return &models.Order{
		ID:                uuid.NewString(),
		UserID:            userID,
		OrderItems:        []models.OrderItem{},
		Pricing:           models.Pricing{TotalPrice: money.FromMinorUnits(session.AmountTotal)},
		PaymentMethod:     models.PaymentMethodCreditCard,
		PaymentStatus:     models.PaymentStatusFailed,
		OrderStatus:       models.OrderStatusCancelled,
		Phone:             phone,
		ShippingAddress:   addr,
		CheckoutSessionID: session.ID,
	}
}

func (s *Service) refundUnmatched(ctx context.Context, order *models.Order, session payment.CompletedSession, reason string) {
	fields := []zap.Field{
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID),
		zap.String("payment_intent_id", session.PaymentIntentID),
		zap.Int64("amount_total", session.AmountTotal),
		zap.String("reason", reason),
	}
	s.logger.Error("Paid checkout session does not match its cart", fields...)

	switch {
	case session.PaymentIntentID == "":
		s.logger.Error("Paid checkout session has no payment intent to refund", fields...)
	default:
		if err := s.payments.RefundPayment(ctx, session.PaymentIntentID); err != nil {
			s.logger.Error("Failed to refund unmatched payment", append(fields, zap.Error(err))...)
			break
		}
		order.PaymentStatus = models.PaymentStatusRefunded
		if err := s.store.Queries().UpdateOrderStatus(ctx, order); err != nil {
			s.logger.Error("Failed to record refund", append(fields, zap.Error(err))...)
		}
	}
	s.publish(ctx, order, "checkout_mismatch")
}
