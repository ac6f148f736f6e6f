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

type CartService interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	AddToCart(ctx context.Context, userID string, req models.AddToCartRequest) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID string, req models.UpdateCartItemRequest) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID string, req models.RemoveFromCartRequest) (*models.Cart, error)
	ClearCart(ctx context.Context, userID string) (*models.Cart, error)
	ApplyCoupon(ctx context.Context, userID string, req models.ApplyCouponRequest) (*models.Cart, error)
}

type CartHandler struct {
	service CartService
	logger  *zap.Logger
}

func NewCartHandler(service CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		service: service,
		logger:  logger,
	}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "GetCart")
	defer span.End()

	userID := middleware.UserID(c)
	span.SetAttributes(attribute.String("user_id", userID))

	cart, err := h.service.GetCart(ctx, userID)
	if err != nil {
		respondError(c, h.logger, span, "get_cart", err)
		return
	}
	h.respond(c, http.StatusOK, "Cart retrieved successfully.", cart)
}

func (h *CartHandler) AddToCart(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "AddToCart")
	defer span.End()

	var req models.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	userID := middleware.UserID(c)
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("product_id", req.ProductID),
		attribute.String("size", req.Size),
		attribute.Int("quantity", req.Quantity),
	)

	cart, err := h.service.AddToCart(ctx, userID, req)
	if err != nil {
		respondError(c, h.logger, span, "add_to_cart", err)
		return
	}
	h.respond(c, http.StatusOK, "Product added to cart successfully.", cart)
}

func (h *CartHandler) UpdateItemQuantity(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "UpdateItemQuantity")
	defer span.End()

	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	userID := middleware.UserID(c)
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("product_id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)

	cart, err := h.service.UpdateItemQuantity(ctx, userID, req)
	if err != nil {
		respondError(c, h.logger, span, "update_cart_item", err)
		return
	}
	h.respond(c, http.StatusOK, "Product quantity updated successfully.", cart)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "RemoveItem")
	defer span.End()

	var req models.RemoveFromCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	userID := middleware.UserID(c)
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("product_id", req.ProductID),
	)

	cart, err := h.service.RemoveItem(ctx, userID, req)
	if err != nil {
		respondError(c, h.logger, span, "remove_cart_item", err)
		return
	}
	h.respond(c, http.StatusOK, "Product removed from cart successfully.", cart)
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ClearCart")
	defer span.End()

	userID := middleware.UserID(c)
	span.SetAttributes(attribute.String("user_id", userID))

	cart, err := h.service.ClearCart(ctx, userID)
	if err != nil {
		respondError(c, h.logger, span, "clear_cart", err)
		return
	}
	h.respond(c, http.StatusOK, "Cart cleared successfully.", cart)
}

func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ApplyCoupon")
	defer span.End()

	var req models.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	userID := middleware.UserID(c)
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("coupon_code", req.CouponCode),
	)

	cart, err := h.service.ApplyCoupon(ctx, userID, req)
	if err != nil {
		respondError(c, h.logger, span, "apply_coupon", err)
		return
	}
	h.respond(c, http.StatusOK, "Coupon applied successfully.", cart)
}

func (h *CartHandler) respond(c *gin.Context, status int, message string, cart *models.Cart) {
	c.JSON(status, gin.H{
		"status":         "success",
		"message":        message,
		"numOfCartItems": len(cart.CartItems),
		"data":           cart,
	})
}
