// Package history owns the single persisted history record: read with safe
// defaults, shallow-merge writes and clears, each write or clear announced on
// an event bus.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nikhilbhutani/historyhub/internal/events"
	"github.com/nikhilbhutani/historyhub/internal/kvstore"
)

const (
	DefaultKey = "history"

	EventUpdated = "history-updated"
	EventCleared = "history-cleared"
)

var (
	ErrInvalidPatch     = errors.New("history: invalid patch")
	ErrStoreWrite       = errors.New("history: store write failed")
	ErrStoreUnavailable = errors.New("history: store unavailable")
)

// State says where a read result came from.
type State string

const (
	StateEmpty       State = "empty"       // nothing stored
	StateLoaded      State = "loaded"      // stored record parsed
	StateCorrupt     State = "corrupt"     // stored value failed to parse
	StateUnavailable State = "unavailable" // the key-value store errored
)

// Snapshot is the result of Read. Record is always usable; for StateCorrupt
// and StateUnavailable it is the empty default and Err holds the cause.
type Snapshot struct {
	Record Record `json:"record"`
	State  State  `json:"state"`
	Err    error  `json:"-"`
}

// Store serializes its own writes and clears. Writers in other processes
// sharing the same key are not coordinated.
type Store struct {
	mu     sync.Mutex // held across read-merge-set-emit and remove-emit
	kv     kvstore.Store
	bus    events.Bus
	key    string
	logger *slog.Logger
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Store over kv. A nil bus discards events.
func New(kv kvstore.Store, bus events.Bus, opts ...Option) *Store {
	if bus == nil {
		bus = events.Discard{}
	}
	s := &Store{
		kv:     kv,
		bus:    bus,
		key:    DefaultKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Key() string { return s.key }

// Read never fails; degraded outcomes are reported through Snapshot.State.
func (s *Store) Read(ctx context.Context) Snapshot {
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Error("failed to read history", "key", s.key, "error", err)
		return Snapshot{Record: Empty(), State: StateUnavailable, Err: err}
	}
	if !found {
		return Snapshot{Record: Empty(), State: StateEmpty}
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.Error("failed to parse history", "key", s.key, "error", err)
		return Snapshot{Record: Empty(), State: StateCorrupt, Err: err}
	}
	return Snapshot{Record: rec, State: StateLoaded}
}

// Write shallow-merges p over the current record, stores the result and
// publishes EventUpdated with it. On failure nothing is published and the
// zero Record is returned with an error wrapping one of the package
// sentinels. If the current record cannot be read the write is aborted with
// ErrStoreUnavailable. A corrupt stored value is replaced.
func (s *Store) Write(ctx context.Context, p Patch) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.Read(ctx)
	if current.State == StateUnavailable {
		s.logger.Error("aborting history write, current record unreadable", "key", s.key, "error", current.Err)
		return Record{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, current.Err)
	}

	merged, err := current.Record.Merge(p)
	if err != nil {
		s.logger.Error("failed to merge history", "key", s.key, "error", err)
		return Record{}, err
	}

	data, err := json.Marshal(merged)
	if err != nil {
		s.logger.Error("failed to encode history", "key", s.key, "error", err)
		return Record{}, fmt.Errorf("%w: encode: %w", ErrStoreWrite, err)
	}

	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		s.logger.Error("failed to store history", "key", s.key, "error", err)
		return Record{}, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	s.bus.Emit(ctx, EventUpdated, merged)
	return merged, nil
}

// Clear removes the stored record and publishes EventCleared with no payload.
// A store error is logged and returned, and no event is published.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, s.key); err != nil {
		s.logger.Error("failed to clear history", "key", s.key, "error", err)
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	s.bus.Emit(ctx, EventCleared, nil)
	return nil
}
