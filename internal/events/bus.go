// Package events carries change notifications from the history store to
// whoever is listening. Publishing is fire-and-forget: Emit never reports
// failure to the caller and never waits for subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bus publishes named events.
type Bus interface {
	Emit(ctx context.Context, name string, payload any)
}

// Streamer is implemented by buses that can feed events back to a reader,
// such as the SSE endpoint.
type Streamer interface {
	Stream(ctx context.Context, names ...string) (<-chan Envelope, error)
}

// Wildcard subscribes to every event name.
const Wildcard = "*"

// Envelope is the wire form of an event.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// NewEnvelope encodes payload immediately so later mutation by the caller
// cannot leak into delivered events. A nil payload produces no payload field.
func NewEnvelope(name string, payload any) (Envelope, error) {
	env := Envelope{
		ID:        uuid.New(),
		Name:      name,
		EmittedAt: time.Now().UTC(),
	}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	env.Payload = data
	return env, nil
}

func (e Envelope) Matches(names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if n == Wildcard || n == e.Name {
			return true
		}
	}
	return false
}

// Multi fans an event out to several buses in order.
// TODO: build the envelope once here so every member shares one event ID.
type Multi []Bus

func (m Multi) Emit(ctx context.Context, name string, payload any) {
	for _, b := range m {
		if b != nil {
			b.Emit(ctx, name, payload)
		}
	}
}

// Stream uses the first member that can stream.
func (m Multi) Stream(ctx context.Context, names ...string) (<-chan Envelope, error) {
	for _, b := range m {
		if s, ok := b.(Streamer); ok {
			return s.Stream(ctx, names...)
		}
	}
	return nil, ErrStreamUnsupported
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, string, any) {}
