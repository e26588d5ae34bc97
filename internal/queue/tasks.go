package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/historyhub/internal/events"
)

const (
	TypeHistoryEvent    = "history:event"
	TypeWebhookDelivery = "history:webhook"

	QueueDefault = "default"
)

// NewHistoryEventTask wraps env for the worker.
func NewHistoryEventTask(env events.Envelope) (*asynq.Task, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeHistoryEvent, data), nil
}

func ParseHistoryEvent(t *asynq.Task) (events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return events.Envelope{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return env, nil
}

// WebhookDelivery is one envelope bound for one webhook URL.
type WebhookDelivery struct {
	URL      string          `json:"url"`
	Envelope events.Envelope `json:"envelope"`
}

func NewWebhookDeliveryTask(d WebhookDelivery) (*asynq.Task, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeWebhookDelivery, data), nil
}

func ParseWebhookDelivery(t *asynq.Task) (WebhookDelivery, error) {
	var d WebhookDelivery
	if err := json.Unmarshal(t.Payload(), &d); err != nil {
		return WebhookDelivery{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if d.URL == "" {
		return WebhookDelivery{}, fmt.Errorf("unmarshal payload: missing url")
	}
	return d, nil
}
