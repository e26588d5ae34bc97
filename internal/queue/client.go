package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/historyhub/internal/config"
	"github.com/nikhilbhutani/historyhub/internal/events"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Bus is an events.Bus that hands every event to the worker process as an
// asynq task.
type Bus struct {
	client enqueuer
	closer func() error
	logger *slog.Logger
}

func NewBus(cfg config.RedisConfig, logger *slog.Logger) *Bus {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	b := newBus(client, logger)
	b.closer = client.Close
	return b
}

func newBus(client enqueuer, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{client: client, closer: func() error { return nil }, logger: logger}
}

func (b *Bus) Close() error {
	return b.closer()
}

func (b *Bus) Emit(ctx context.Context, name string, payload any) {
	env, err := events.NewEnvelope(name, payload)
	if err != nil {
		b.logger.Error("dropping event", "event", name, "error", err)
		return
	}
	if err := b.enqueue(ctx, env); err != nil {
		b.logger.Warn("failed to enqueue event", "event", name, "id", env.ID, "error", err)
	}
}

func (b *Bus) enqueue(ctx context.Context, env events.Envelope) error {
	task, err := NewHistoryEventTask(env)
	if err != nil {
		return err
	}
	_, err = b.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.TaskID(env.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeHistoryEvent, err)
	}
	return nil
}
