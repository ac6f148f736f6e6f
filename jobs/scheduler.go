package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TaskCartExpire = "cart:expire"
	QueueCarts     = "carts"
)

type CartExpirePayload struct {
	CartID string `json:"cartId"`
}

// Scheduler enqueues the delayed job that empties an abandoned cart.
type Scheduler struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	delay     time.Duration
	maxRetry  int
	logger    *zap.Logger
}

func NewScheduler(opt asynq.RedisConnOpt, delay time.Duration, maxRetry int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		delay:     delay,
		maxRetry:  maxRetry,
		logger:    logger,
	}
}

// Schedule enqueues an expiry job for cartID and returns its id.
func (s *Scheduler) Schedule(ctx context.Context, cartID string) (string, error) {
	return s.ScheduleAfter(ctx, cartID, s.delay)
}

// ScheduleAfter enqueues an expiry job for cartID that runs after delay.
func (s *Scheduler) ScheduleAfter(ctx context.Context, cartID string, delay time.Duration) (string, error) {
	payload, err := json.Marshal(CartExpirePayload{CartID: cartID})
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskCartExpire, payload)
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.TaskID(uuid.NewString()),
		asynq.ProcessIn(delay),
		asynq.Queue(QueueCarts),
		asynq.MaxRetry(s.maxRetry),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", TaskCartExpire, err)
	}

	s.logger.Info("Cart expiry scheduled",
		zap.String("cart_id", cartID),
		zap.String("job_id", info.ID),
		zap.Time("process_at", info.NextProcessAt),
	)
	return info.ID, nil
}

// Cancel deletes a scheduled expiry job. A job that no longer exists is
// not an error.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	err := s.inspector.DeleteTask(QueueCarts, jobID)
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("failed to delete job %s: %w", jobID, err)
}

func (s *Scheduler) Close() error {
	return errors.Join(s.client.Close(), s.inspector.Close())
}
