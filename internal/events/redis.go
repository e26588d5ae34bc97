package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes envelopes on redis pub/sub channels named prefix+event.
type RedisBus struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

func NewRedisBus(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: client, prefix: prefix, logger: logger}
}

func (b *RedisBus) Emit(ctx context.Context, name string, payload any) {
	env, err := NewEnvelope(name, payload)
	if err != nil {
		b.logger.Error("dropping event", "event", name, "error", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("marshal envelope", "event", name, "error", err)
		return
	}
	if err := b.client.Publish(ctx, b.prefix+name, data).Err(); err != nil {
		b.logger.Warn("publish event failed", "event", name, "error", err)
	}
}

// Stream subscribes to the given event names, or every event under the
// prefix when none are given.
func (b *RedisBus) Stream(ctx context.Context, names ...string) (<-chan Envelope, error) {
	var pubsub *redis.PubSub
	if len(names) == 0 {
		pubsub = b.client.PSubscribe(ctx, b.prefix+"*")
	} else {
		channels := make([]string, len(names))
		for i, n := range names {
			channels[i] = b.prefix + n
		}
		pubsub = b.client.Subscribe(ctx, channels...)
	}
	// Wait for the subscription to be confirmed so no event is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan Envelope, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.Warn("discarding malformed envelope", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
