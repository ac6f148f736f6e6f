package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"marketplace-svc/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestOrderPublisher_PublishOrderEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()

	var sent models.OrderEvent
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "order_events" {
			t.Errorf("Expected topic order_events, got %s", msg.Topic)
		}
		b, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		return json.Unmarshal(b, &sent)
	})

	publisher := NewOrderPublisher(producer, "order_events", zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
	err := publisher.PublishOrderEvent(context.Background(), models.OrderEvent{
		OrderID:       "o1",
		UserID:        "u1",
		PaymentMethod: models.PaymentMethodCashOnDelivery,
		ItemCount:     2,
		EventType:     "order_created",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if sent.OrderID != "o1" || sent.EventType != "order_created" {
		t.Errorf("Unexpected event sent: %+v", sent)
	}
}

func TestSaramaHeaderCarrier(t *testing.T) {
	carrier := make(saramaHeaderCarrier, 0)
	carrier.Set("traceparent", "00-abc-def-01")

	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("Expected header value, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 || keys[0] != "traceparent" {
		t.Errorf("Unexpected keys: %v", keys)
	}
}
