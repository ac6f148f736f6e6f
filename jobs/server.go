package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-svc/middleware"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	retryBaseDelay = 5 * time.Second
	retryMaxDelay  = time.Hour
)

// Expirer empties an abandoned cart on behalf of the job with id jobID.
type Expirer interface {
	ExpireCart(ctx context.Context, cartID, jobID string) (bool, error)
}

type Handler struct {
	expirer Expirer
	logger  *zap.Logger
}

func NewHandler(expirer Expirer, logger *zap.Logger) *Handler {
	return &Handler{expirer: expirer, logger: logger}
}

func (h *Handler) HandleCartExpire(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("jobs").Start(ctx, "HandleCartExpire")
	defer span.End()

	var p CartExpirePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.CartID == "" {
		h.logger.Error("Invalid cart expiry payload", zap.ByteString("payload", t.Payload()), zap.Error(err))
		return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
	}
	jobID, _ := asynq.GetTaskID(ctx)
	span.SetAttributes(attribute.String("cart.id", p.CartID), attribute.String("job.id", jobID))

	expired, err := h.expirer.ExpireCart(ctx, p.CartID, jobID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to expire cart", zap.String("cart_id", p.CartID), zap.String("job_id", jobID), zap.Error(err))
		return err
	}
	if expired {
		middleware.RecordCartExpired()
	}
	return nil
}

func NewMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskCartExpire, h.HandleCartExpire)
	return mux
}

// RetryDelay backs off exponentially from 5s, capped at one hour.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 20 {
		return retryMaxDelay
	}
	d := retryBaseDelay << n
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewServer(opt asynq.RedisClientOpt, concurrency int, h *Handler, logger *zap.Logger) *Server {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         map[string]int{QueueCarts: 1},
		RetryDelayFunc: RetryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Warn("Job failed",
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Error(err),
			)
		}),
	})
	return &Server{srv: srv, mux: NewMux(h)}
}

// Start runs the workers in the background.
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

func (s *Server) Shutdown() {
	s.srv.Shutdown()
}
