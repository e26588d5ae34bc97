package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nikhilbhutani/historyhub/internal/events"
)

type logger interface {
	Log(ctx context.Context, env events.Envelope) error
}

// Recorder is an events.Bus that writes each event to the audit log from a
// background goroutine.
type Recorder struct {
	svc     logger
	queue   chan events.Envelope
	logger  *slog.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
}

func NewRecorder(svc logger, bufferSize int, log *slog.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		svc:     svc,
		queue:   make(chan events.Envelope, bufferSize),
		logger:  log,
		timeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go r.processLoop()
	return r
}

func (r *Recorder) Emit(_ context.Context, name string, payload any) {
	env, err := events.NewEnvelope(name, payload)
	if err != nil {
		r.logger.Error("dropping audit event", "event", name, "error", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- env:
	default:
		r.logger.Warn("audit queue full, dropping", "event", name, "id", env.ID)
	}
}

// Close flushes queued entries.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

func (r *Recorder) processLoop() {
	defer r.wg.Done()
	for env := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.svc.Log(ctx, env); err != nil {
			r.logger.Error("failed to record audit entry", "event", env.Name, "id", env.ID, "error", err)
		}
		cancel()
	}
}
