package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/nikhilbhutani/historyhub/internal/events"
)

// Sink posts event envelopes to a fixed set of URLs, signing each body with
// HMAC-SHA256 when a secret is configured.
type Sink struct {
	urls       []string
	secret     string
	httpClient *http.Client
}

func NewSink(urls []string, secret string) *Sink {
	return &Sink{
		urls:   urls,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *Sink) Empty() bool { return len(s.urls) == 0 }

func (s *Sink) URLs() []string { return slices.Clone(s.urls) }

// Deliver posts env to every URL and returns the joined delivery errors.
// Calling it again after a partial failure re-posts to every URL, so
// receivers should dedupe on X-Webhook-ID.
func (s *Sink) Deliver(ctx context.Context, env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	var errs []error
	for _, url := range s.urls {
		if err := s.post(ctx, url, env, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeliverTo posts env to a single URL.
func (s *Sink) DeliverTo(ctx context.Context, url string, env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return s.post(ctx, url, env, payload)
}

func (s *Sink) post(ctx context.Context, url string, env events.Envelope, payload []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Event", env.Name)
	httpReq.Header.Set("X-Webhook-ID", env.ID.String())
	if s.secret != "" {
		httpReq.Header.Set("X-Webhook-Signature", Sign(payload, s.secret))
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("deliver to %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// Dispatcher is an events.Bus that delivers through a Sink from a background
// goroutine, so Emit never waits on the network.
type Dispatcher struct {
	sink       *Sink
	deliveries chan events.Envelope
	logger     *slog.Logger
	wg         sync.WaitGroup
	closeOnce  sync.Once
	mu         sync.RWMutex
	closed     bool
}

func NewDispatcher(sink *Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sink:       sink,
		deliveries: make(chan events.Envelope, 1000),
		logger:     logger,
	}
	d.wg.Add(1)
	go d.processLoop()
	return d
}

func (d *Dispatcher) Emit(_ context.Context, name string, payload any) {
	env, err := events.NewEnvelope(name, payload)
	if err != nil {
		d.logger.Error("dropping webhook event", "event", name, "error", err)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.deliveries <- env:
	default:
		d.logger.Warn("webhook delivery queue full, dropping", "event", name, "id", env.ID)
	}
}

// Close stops accepting events and waits for queued deliveries.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.deliveries)
		d.mu.Unlock()
	})
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) processLoop() {
	defer d.wg.Done()
	for env := range d.deliveries {
		d.deliver(env)
	}
}

func (d *Dispatcher) deliver(env events.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := d.sink.Deliver(ctx, env); err != nil {
		d.logger.Error("webhook delivery failed", "event", env.Name, "id", env.ID, "error", err)
	}
}
