package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-svc/apperror"
	"marketplace-svc/cart"
	"marketplace-svc/database"
	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (models.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
	RefundPayment(ctx context.Context, paymentIntentID string) error
}

// JobScheduler moves and cancels the cart expiry job.
type JobScheduler interface {
	ScheduleAfter(ctx context.Context, cartID string, delay time.Duration) (string, error)
	Cancel(ctx context.Context, jobID string) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

type Service struct {
	store    database.Store
	jobs     JobScheduler
	payments PaymentProvider
	events   EventPublisher
	eventLog EventLog
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store database.Store, jobs JobScheduler, payments PaymentProvider, events EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		jobs:     jobs,
		payments: payments,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// pendingWork is what a committed order leaves to clean up outside the
// transaction.
type pendingWork struct {
	jobID     string
	sessionID string
}

// CreateCashOrder turns the user's cart into a cash-on-delivery order and
// empties the cart.
func (s *Service) CreateCashOrder(ctx context.Context, userID string, req models.CreateOrderRequest) (*models.Order, error) {
	var (
		order   *models.Order
		pending pendingWork
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

		order = snapshot(c, req.Phone, req.ShippingAddress)
		order.ID = uuid.NewString()
		order.PaymentMethod = models.PaymentMethodCashOnDelivery
		order.PaymentStatus = models.PaymentStatusPending

		pending, err = s.materialize(ctx, tx, c, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, order, pending)
	return order, nil
}

// materialize stores order, consumes the cart's reservations and empties
// the cart.
func (s *Service) materialize(ctx context.Context, tx database.Tx, c *models.Cart, order *models.Order) (pendingWork, error) {
	if err := tx.InsertOrder(ctx, order); err != nil {
		return pendingWork{}, err
	}
	for _, item := range order.OrderItems {
		if err := tx.IncrementSold(ctx, item.ProductID, item.Quantity); err != nil {
			return pendingWork{}, fmt.Errorf("failed to update sold count: %w", err)
		}
	}
	if err := saveAddress(ctx, tx, order.UserID, order.ShippingAddress); err != nil {
		return pendingWork{}, fmt.Errorf("failed to save address: %w", err)
	}

	pending := pendingWork{jobID: c.PendingExpiryJobID, sessionID: c.PendingCheckoutSessionID}
	if pending.sessionID == order.CheckoutSessionID {
		pending.sessionID = ""
	}
	c.CartItems = nil
	c.PendingCheckoutSessionID = ""
	cart.Recompute(c, models.AppSettings{})
	if err := tx.SaveCart(ctx, c); err != nil {
		return pendingWork{}, err
	}
	return pending, nil
}

func (s *Service) afterCommit(ctx context.Context, order *models.Order, pending pendingWork) {
	middleware.RecordOrderCreated(string(order.PaymentMethod))
	s.logger.Info("Order created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("payment_method", string(order.PaymentMethod)),
	)

	s.cancelJob(ctx, pending.jobID)
	s.expireSession(ctx, pending.sessionID)
	s.publish(ctx, order, "order_created")
}

func (s *Service) cancelJob(ctx context.Context, jobID string) {
	if jobID == "" {
		return
	}
	if err := s.jobs.Cancel(ctx, jobID); err != nil {
		s.logger.Warn("Failed to cancel cart expiry job", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) expireSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := s.payments.ExpireCheckoutSession(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to expire checkout session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, order *models.Order, eventType string) {
	if s.events == nil {
		return
	}
	total := order.Pricing.TotalPrice
	if order.Pricing.TotalPriceAfterDiscount != nil {
		total = *order.Pricing.TotalPriceAfterDiscount
	}
	event := models.OrderEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		ItemCount:     len(order.OrderItems),
		TotalPrice:    total,
		EventType:     eventType,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("event_type", eventType),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}

// snapshot copies the priced cart into a new processing order.
func snapshot(c *models.Cart, phone string, addr models.ShippingAddress) *models.Order {
	items := make([]models.OrderItem, len(c.CartItems))
	for i, item := range c.CartItems {
		items[i] = models.OrderItem(item)
	}
	order := &models.Order{
		UserID:          c.UserID,
		OrderItems:      items,
		Pricing:         c.Pricing,
		OrderStatus:     models.OrderStatusProcessing,
		Phone:           phone,
		ShippingAddress: addr,
	}
	if c.Pricing.TotalPriceAfterDiscount != nil {
		v := *c.Pricing.TotalPriceAfterDiscount
		order.Pricing.TotalPriceAfterDiscount = &v
	}
	if c.Coupon != nil {
		coupon := *c.Coupon
		order.Coupon = &coupon
	}
	return order
}
