package orders

import (
	"context"
	"errors"

	"marketplace-svc/apperror"
	"marketplace-svc/database"
	"marketplace-svc/models"

	"go.uber.org/zap"
)

func (s *Service) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.store.Queries().ListOrdersByUser(ctx, userID)
}

// GetOrder returns an order of userID. Admins may read any order.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string, admin bool) (*models.Order, error) {
	order, err := s.store.Queries().GetOrder(ctx, orderID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !admin && order.UserID != userID) {
		return nil, apperror.NotFound("No order for this ID %s.", orderID)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrderStatus moves an order along processing → shipped → delivered,
// or cancels it. Delivered and cancelled orders are final. Delivering a cash
// order marks it paid.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, apperror.BadRequest("Invalid order status %q.", status)
	}

	var order *models.Order
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if errors.Is(err, database.ErrNotFound) {
			return apperror.NotFound("No order for this ID %s.", orderID)
		}
		if err != nil {
			return err
		}

		switch order.OrderStatus {
		case models.OrderStatusDelivered, models.OrderStatusCancelled:
			return apperror.BadRequest("Order is already %s.", order.OrderStatus)
		}
		if status == models.OrderStatusProcessing && order.OrderStatus == models.OrderStatusShipped {
			return apperror.BadRequest("Order is already shipped.")
		}

		now := s.now()
		order.OrderStatus = status
		if status == models.OrderStatusDelivered {
			order.DeliveredAt = &now
			if order.PaymentStatus == models.PaymentStatusPending {
				order.PaymentStatus = models.PaymentStatusCompleted
				order.PaidAt = &now
			}
		}
		return tx.UpdateOrderStatus(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status updated", zap.String("order_id", orderID), zap.String("order_status", string(status)))
	s.publish(ctx, order, "order_status_changed")
	return order, nil
}
