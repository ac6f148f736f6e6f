package orders

import (
	"context"

	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/payment"

	"go.uber.org/zap"
)

// EventLog remembers webhook events that were fully handled.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

func (s *Service) WithEventLog(log EventLog) *Service {
	s.eventLog = log
	return s
}

// HandleWebhookEvent processes a verified payment webhook event. Only
// checkout.session.completed has an effect; it is safe to deliver more than
// once.
func (s *Service) HandleWebhookEvent(ctx context.Context, event payment.WebhookEvent) error {
	if event.Type != payment.EventCheckoutSessionCompleted || event.Session == nil {
		middleware.RecordWebhookEvent(event.Type, "ignored")
		return nil
	}

	if s.eventLog != nil {
		seen, err := s.eventLog.Seen(ctx, event.ID)
		if err != nil {
			s.logger.Warn("Failed to check webhook event log", zap.String("event_id", event.ID), zap.Error(err))
		} else if seen {
			middleware.RecordWebhookEvent(event.Type, "duplicate")
			return nil
		}
	}

	order, created, err := s.ConfirmCheckoutSession(ctx, *event.Session)
	if err != nil {
		middleware.RecordWebhookEvent(event.Type, "error")
		return err
	}

	result := "duplicate"
	switch {
	case created && order.OrderStatus == models.OrderStatusCancelled:
		result = "mismatch"
	case created:
		result = "processed"
	}
	middleware.RecordWebhookEvent(event.Type, result)
	s.logger.Info("Checkout session confirmed",
		zap.String("event_id", event.ID),
		zap.String("session_id", event.Session.ID),
		zap.String("order_id", order.ID),
		zap.Bool("created", created),
	)

	if s.eventLog != nil {
		if err := s.eventLog.MarkProcessed(ctx, event.ID); err != nil {
			s.logger.Warn("Failed to record webhook event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	return nil
}
