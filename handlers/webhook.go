package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"marketplace-svc/middleware"
	"marketplace-svc/payment"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// larger bodies are rejected with 413
const maxWebhookBody = 65536

type EventParser interface {
	Parse(payload []byte, signature string) (payment.WebhookEvent, error)
}

type WebhookProcessor interface {
	HandleWebhookEvent(ctx context.Context, event payment.WebhookEvent) error
}

type WebhookHandler struct {
	parser    EventParser
	processor WebhookProcessor
	logger    *zap.Logger
}

func NewWebhookHandler(parser EventParser, processor WebhookProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser:    parser,
		processor: processor,
		logger:    logger,
	}
}

// HandleStripe acknowledges every event whose signature verifies, including
// events whose processing failed.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "HandleStripeWebhook")
	defer span.End()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RecordWebhookEvent("unknown", "too_large")
			h.logger.Warn("Webhook payload too large",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.Int64("limit", tooLarge.Limit),
			)
			c.String(http.StatusRequestEntityTooLarge, "Webhook Error: %s", err.Error())
			return
		}
		c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
		return
	}

	event, err := h.parser.Parse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		middleware.RecordWebhookEvent("unknown", "invalid_signature")
		h.logger.Warn("Webhook signature verification failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Error(err),
		)
		c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", event.Type),
	)

	if err := h.processor.HandleWebhookEvent(ctx, event); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to process webhook event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
