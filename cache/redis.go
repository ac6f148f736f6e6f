package cache

import (
	"context"
	"fmt"
	"time"

	"marketplace-svc/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(cfg config.Redis, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

const webhookEventTTL = 72 * time.Hour

// WebhookEvents remembers payment webhook events that were fully processed
// so redeliveries can be acknowledged without touching the database.
type WebhookEvents struct {
	rdb *redis.Client
}

func NewWebhookEvents(rdb *redis.Client) *WebhookEvents {
	return &WebhookEvents{rdb: rdb}
}

func webhookKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

func (w *WebhookEvents) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := w.rdb.Exists(ctx, webhookKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (w *WebhookEvents) MarkProcessed(ctx context.Context, eventID string) error {
	return w.rdb.Set(ctx, webhookKey(eventID), time.Now().Unix(), webhookEventTTL).Err()
}
