package handlers

import (
	"context"
	"net/http"

	"marketplace-svc/middleware"
	"marketplace-svc/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateCashOrder(ctx context.Context, userID string, req models.CreateOrderRequest) (*models.Order, error)
	CreateCheckoutSession(ctx context.Context, userID, email string, req models.CreateOrderRequest) (models.CheckoutSession, error)
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)
	GetOrder(ctx context.Context, userID, orderID string, admin bool) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error)
	ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error)
}

type OrderHandler struct {
	service OrderService
	logger  *zap.Logger
}

func NewOrderHandler(service OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

func (h *OrderHandler) CreateCashOrder(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "CreateCashOrder")
	defer span.End()

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	userID := middleware.UserID(c)
	span.SetAttributes(attribute.String("user_id", userID))

	order, err := h.service.CreateCashOrder(ctx, userID, req)
	if err != nil {
		respondError(c, h.logger, span, "create_cash_order", err)
		return
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Order created successfully.",
		"data":    order,
	})
}

func (h *OrderHandler) CreateCheckoutSession(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "CreateCheckoutSession")
	defer span.End()

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	userID := middleware.UserID(c)
	span.SetAttributes(attribute.String("user_id", userID))

	session, err := h.service.CreateCheckoutSession(ctx, userID, middleware.UserEmail(c), req)
	if err != nil {
		respondError(c, h.logger, span, "create_checkout_session", err)
		return
	}

	span.SetAttributes(attribute.String("session.id", session.SessionID))
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Checkout session created successfully.",
		"data":    session,
	})
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ListOrders")
	defer span.End()

	orders, err := h.service.ListOrders(ctx, middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, span, "list_orders", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": len(orders),
		"data":    orders,
	})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "GetOrder")
	defer span.End()

	orderID := c.Param("id")
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := h.service.GetOrder(ctx, middleware.UserID(c), orderID, middleware.IsAdmin(c))
	if err != nil {
		respondError(c, h.logger, span, "get_order", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": order})
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "UpdateOrderStatus")
	defer span.End()

	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	orderID := c.Param("id")
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(req.OrderStatus)),
	)

	order, err := h.service.UpdateOrderStatus(ctx, orderID, req.OrderStatus)
	if err != nil {
		respondError(c, h.logger, span, "update_order_status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Order status updated successfully.",
		"data":    order,
	})
}

// ListAddresses returns the shipping addresses remembered from the user's
// orders.
func (h *OrderHandler) ListAddresses(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ListAddresses")
	defer span.End()

	addresses, err := h.service.ListAddresses(ctx, middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, span, "list_addresses", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": len(addresses),
		"data":    addresses,
	})
}
