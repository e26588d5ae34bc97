package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/historyhub/internal/events"
	"github.com/nikhilbhutani/historyhub/internal/queue"
)

// deliveryRetention keeps finished delivery tasks long enough for their IDs
// to block a re-enqueue when a fan-out is retried.
const deliveryRetention = 24 * time.Hour

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type poster interface {
	DeliverTo(ctx context.Context, url string, env events.Envelope) error
}

// FanoutWorker turns one history event into a delivery task per webhook URL,
// so a failing receiver is retried on its own.
type FanoutWorker struct {
	client enqueuer
	urls   []string
	logger *slog.Logger
}

func NewFanoutWorker(client enqueuer, urls []string, logger *slog.Logger) *FanoutWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &FanoutWorker{client: client, urls: urls, logger: logger}
}

func (w *FanoutWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	env, err := queue.ParseHistoryEvent(t)
	if err != nil {
		// A malformed payload will never succeed; do not retry it.
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	for _, url := range w.urls {
		task, err := queue.NewWebhookDeliveryTask(queue.WebhookDelivery{URL: url, Envelope: env})
		if err != nil {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		_, err = w.client.EnqueueContext(ctx, task,
			asynq.Queue(queue.QueueDefault),
			asynq.MaxRetry(5),
			asynq.Timeout(30*time.Second),
			asynq.Retention(deliveryRetention),
			asynq.TaskID(env.ID.String()+"|"+url),
		)
		switch {
		case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
			// Queued by an earlier attempt of this fan-out.
		case err != nil:
			return fmt.Errorf("enqueue delivery to %s: %w", url, err)
		}
	}

	w.logger.Info("fanned out history event", "event", env.Name, "id", env.ID, "webhooks", len(w.urls))
	return nil
}

// DeliveryWorker posts one envelope to one webhook URL.
type DeliveryWorker struct {
	sink   poster
	logger *slog.Logger
}

func NewDeliveryWorker(sink poster, logger *slog.Logger) *DeliveryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryWorker{sink: sink, logger: logger}
}

func (w *DeliveryWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	d, err := queue.ParseWebhookDelivery(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	w.logger.Info("delivering history event", "event", d.Envelope.Name, "id", d.Envelope.ID, "url", d.URL)
	if err := w.sink.DeliverTo(ctx, d.URL, d.Envelope); err != nil {
		return fmt.Errorf("deliver %s: %w", d.Envelope.Name, err)
	}
	return nil
}
