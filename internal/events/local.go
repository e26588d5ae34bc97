package events

import (
	"context"
	"log/slog"
	"sync"
)

// Handler receives delivered events. Handlers run on the bus goroutine and
// should return quickly.
type Handler func(ctx context.Context, e Envelope)

// Local is an in-process bus. Events are queued on a bounded channel and
// delivered by a single goroutine in emit order; when the queue is full the
// event is dropped with a warning.
type Local struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
	closed bool

	queue  chan Envelope
	done   chan struct{}
	logger *slog.Logger
}

func NewLocal(bufferSize int, logger *slog.Logger) *Local {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Local{
		subs:   make(map[string]map[uint64]Handler),
		queue:  make(chan Envelope, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.processLoop()
	return l
}

// Subscribe registers h for name (or Wildcard) and returns a function that
// removes it.
func (l *Local) Subscribe(name string, h Handler) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	if l.subs[name] == nil {
		l.subs[name] = make(map[uint64]Handler)
	}
	l.subs[name][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[name], id)
			if len(l.subs[name]) == 0 {
				delete(l.subs, name)
			}
		})
	}
}

func (l *Local) Emit(_ context.Context, name string, payload any) {
	env, err := NewEnvelope(name, payload)
	if err != nil {
		l.logger.Error("dropping event", "event", name, "error", err)
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.logger.Warn("event bus closed, dropping", "event", name)
		return
	}

	select {
	case l.queue <- env:
	default:
		l.logger.Warn("event queue full, dropping", "event", name, "id", env.ID)
	}
}

// Stream delivers matching events on a channel until ctx is done.
func (l *Local) Stream(ctx context.Context, names ...string) (<-chan Envelope, error) {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return nil, ErrBusClosed
	}

	out := make(chan Envelope, 16)
	var (
		mu     sync.Mutex
		active = true
	)
	unsubscribe := l.Subscribe(Wildcard, func(_ context.Context, e Envelope) {
		if !e.Matches(names) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if !active {
			return
		}
		select {
		case out <- e:
		default:
			l.logger.Warn("stream reader too slow, dropping", "event", e.Name)
		}
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-l.done:
		}
		unsubscribe()
		mu.Lock()
		active = false
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

// Close stops accepting events, delivers what is queued, and waits for the
// delivery goroutine to exit.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *Local) processLoop() {
	defer close(l.done)
	for env := range l.queue {
		l.deliver(env)
	}
}

func (l *Local) deliver(env Envelope) {
	l.mu.RLock()
	var handlers []Handler
	for _, h := range l.subs[env.Name] {
		handlers = append(handlers, h)
	}
	if env.Name != Wildcard {
		for _, h := range l.subs[Wildcard] {
			handlers = append(handlers, h)
		}
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		l.call(h, env)
	}
}

func (l *Local) call(h Handler, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event handler panicked", "event", env.Name, "panic", r)
		}
	}()
	h(context.Background(), env)
}
