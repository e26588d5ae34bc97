package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/historyhub/internal/kvstore"
)

type emitted struct {
	name    string
	payload any
}

type recordingBus struct {
	mu     sync.Mutex
	events []emitted
}

func (b *recordingBus) Emit(_ context.Context, name string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, emitted{name: name, payload: payload})
}

// flakyKV wraps a memory store and fails the operations whose error is set.
type flakyKV struct {
	*kvstore.Memory
	getErr, setErr, removeErr error
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.Memory.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *flakyKV) Remove(ctx context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Memory.Remove(ctx, key)
}

func newTestStore(t *testing.T) (*Store, *flakyKV, *recordingBus) {
	t.Helper()
	kv := &flakyKV{Memory: kvstore.NewMemory()}
	bus := &recordingBus{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(kv, bus, WithLogger(logger)), kv, bus
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

var recordCmp = cmpopts.EquateEmpty()

const emptyJSON = `{"documents":[],"clips":[],"events":[]}`

func TestRead_AbsentReturnsEmptyDefault(t *testing.T) {
	s, _, bus := newTestStore(t)

	snap := s.Read(context.Background())
	assert.Equal(t, StateEmpty, snap.State)
	assert.NoError(t, snap.Err)
	assert.JSONEq(t, emptyJSON, toJSON(t, snap.Record))
	assert.Empty(t, bus.events)
}

func TestRead_CorruptReturnsEmptyDefault(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "{documents: ["},
		{name: "json null", raw: "null"},
		{name: "json array", raw: "[1,2]"},
		{name: "documents not an array", raw: `{"documents":"doc1"}`},
		{name: "events is an object", raw: `{"events":{"a":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, kv, _ := newTestStore(t)
			require.NoError(t, kv.Set(context.Background(), DefaultKey, tt.raw))

			snap := s.Read(context.Background())
			assert.Equal(t, StateCorrupt, snap.State)
			assert.Error(t, snap.Err)
			assert.JSONEq(t, emptyJSON, toJSON(t, snap.Record))
		})
	}
}

func TestRead_UnavailableStore(t *testing.T) {
	s, kv, _ := newTestStore(t)
	kv.getErr = errors.New("connection refused")

	snap := s.Read(context.Background())
	assert.Equal(t, StateUnavailable, snap.State)
	assert.EqualError(t, snap.Err, "connection refused")
	assert.JSONEq(t, emptyJSON, toJSON(t, snap.Record))
}

func TestRead_DefaultsMissingFieldsAndKeepsExtensions(t *testing.T) {
	s, kv, _ := newTestStore(t)
	require.NoError(t, kv.Set(context.Background(), DefaultKey,
		`{"clips":[{"id":"c1","start":1.5}],"documents":null,"lastOpened":"doc-7","layout":{"panes":2}}`))

	snap := s.Read(context.Background())
	require.Equal(t, StateLoaded, snap.State)
	assert.JSONEq(t,
		`{"documents":[],"clips":[{"id":"c1","start":1.5}],"events":[],"lastOpened":"doc-7","layout":{"panes":2}}`,
		toJSON(t, snap.Record))
	assert.Len(t, snap.Record.Extensions, 2)
}

func TestWrite_ShallowMergeAndEvent(t *testing.T) {
	s, _, bus := newTestStore(t)
	ctx := context.Background()

	_, err := s.Write(ctx, Patch{"documents": []string{"a", "b"}, "theme": "dark"})
	require.NoError(t, err)

	merged, err := s.Write(ctx, Patch{"documents": []string{"c"}, "clips": []int{1}})
	require.NoError(t, err)

	// Sequences are replaced wholesale, untouched keys survive.
	want := `{"documents":["c"],"clips":[1],"events":[],"theme":"dark"}`
	assert.JSONEq(t, want, toJSON(t, merged))
	assert.JSONEq(t, want, toJSON(t, s.Read(ctx).Record))

	require.Len(t, bus.events, 2)
	last := bus.events[1]
	assert.Equal(t, EventUpdated, last.name)
	payload, ok := last.payload.(Record)
	require.True(t, ok, "payload should be a Record, got %T", last.payload)
	if diff := cmp.Diff(merged, payload, recordCmp); diff != "" {
		t.Errorf("event payload mismatch (-returned +payload):\n%s", diff)
	}
}

func TestWrite_RoundTripMatchesRead(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	merged, err := s.Write(ctx, Patch{
		"events": []map[string]any{{"type": "export", "at": "2024-01-01T00:00:00Z"}},
		"extra":  map[string]any{"nested": []int{1, 2, 3}},
	})
	require.NoError(t, err)

	snap := s.Read(ctx)
	require.Equal(t, StateLoaded, snap.State)
	if diff := cmp.Diff(merged, snap.Record, recordCmp); diff != "" {
		t.Errorf("read mismatch (-written +read):\n%s", diff)
	}
}

func TestWrite_NullResetsRecognizedField(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Write(ctx, Patch{"clips": []string{"clip1"}})
	require.NoError(t, err)

	merged, err := s.Write(ctx, Patch{"clips": nil})
	require.NoError(t, err)
	assert.JSONEq(t, emptyJSON, toJSON(t, merged))
}

func TestWrite_EmptyPatchStillPersistsAndPublishes(t *testing.T) {
	s, kv, bus := newTestStore(t)
	ctx := context.Background()

	merged, err := s.Write(ctx, Patch{})
	require.NoError(t, err)
	assert.JSONEq(t, emptyJSON, toJSON(t, merged))

	raw, found, err := kv.Get(ctx, DefaultKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, emptyJSON, raw)
	assert.Len(t, bus.events, 1)
}

func TestWrite_Idempotent(t *testing.T) {
	s, kv, bus := newTestStore(t)
	ctx := context.Background()

	first, err := s.Write(ctx, Patch{"documents": []int{1, 2}})
	require.NoError(t, err)
	storedFirst, _, _ := kv.Get(ctx, DefaultKey)

	second, err := s.Write(ctx, Patch{"documents": []int{1, 2}})
	require.NoError(t, err)
	storedSecond, _, _ := kv.Get(ctx, DefaultKey)

	assert.Equal(t, storedFirst, storedSecond)
	if diff := cmp.Diff(first, second, recordCmp); diff != "" {
		t.Errorf("second write changed the record:\n%s", diff)
	}
	assert.Len(t, bus.events, 2)
}

func TestWrite_ReplacesCorruptRecord(t *testing.T) {
	s, kv, bus := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, DefaultKey, "not-json"))

	merged, err := s.Write(ctx, Patch{"documents": []string{"doc1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"documents":["doc1"],"clips":[],"events":[]}`, toJSON(t, merged))
	assert.Equal(t, StateLoaded, s.Read(ctx).State)
	assert.Len(t, bus.events, 1)
}

func TestWrite_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(kv *flakyKV)
		patch   Patch
		wantErr error
	}{
		{
			name:    "store set fails",
			setup:   func(kv *flakyKV) { kv.setErr = errors.New("quota exceeded") },
			patch:   Patch{"documents": []string{"doc1"}},
			wantErr: ErrStoreWrite,
		},
		{
			name:    "store get fails",
			setup:   func(kv *flakyKV) { kv.getErr = errors.New("connection reset") },
			patch:   Patch{"documents": []string{"doc1"}},
			wantErr: ErrStoreUnavailable,
		},
		{
			name:    "recognized field not an array",
			setup:   func(*flakyKV) {},
			patch:   Patch{"clips": "clip1"},
			wantErr: ErrInvalidPatch,
		},
		{
			name:    "value cannot be encoded",
			setup:   func(*flakyKV) {},
			patch:   Patch{"callback": func() {}},
			wantErr: ErrInvalidPatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, kv, bus := newTestStore(t)
			ctx := context.Background()
			require.NoError(t, kv.Memory.Set(ctx, DefaultKey, `{"documents":["keep"]}`))
			tt.setup(kv)

			got, err := s.Write(ctx, tt.patch)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, got.Documents)
			assert.Empty(t, bus.events)

			raw, _, _ := kv.Memory.Get(ctx, DefaultKey)
			assert.JSONEq(t, `{"documents":["keep"]}`, raw)
		})
	}
}

func TestClear(t *testing.T) {
	s, kv, bus := newTestStore(t)
	ctx := context.Background()

	_, err := s.Write(ctx, Patch{"documents": []string{"doc1"}})
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))
	_, found, _ := kv.Get(ctx, DefaultKey)
	assert.False(t, found)

	snap := s.Read(ctx)
	assert.Equal(t, StateEmpty, snap.State)
	assert.JSONEq(t, emptyJSON, toJSON(t, snap.Record))

	require.Len(t, bus.events, 2)
	assert.Equal(t, EventCleared, bus.events[1].name)
	assert.Nil(t, bus.events[1].payload)
}

func TestClear_AbsentKey(t *testing.T) {
	s, _, bus := newTestStore(t)

	require.NoError(t, s.Clear(context.Background()))
	require.Len(t, bus.events, 1)
	assert.Equal(t, EventCleared, bus.events[0].name)
}

func TestClear_StoreError(t *testing.T) {
	s, kv, bus := newTestStore(t)
	kv.removeErr = errors.New("read-only replica")

	err := s.Clear(context.Background())
	require.ErrorIs(t, err, ErrStoreWrite)
	assert.Empty(t, bus.events)
}

func TestWithKey(t *testing.T) {
	kv := kvstore.NewMemory()
	s := New(kv, nil, WithKey("studio/history"), WithKey(""))
	assert.Equal(t, "studio/history", s.Key())

	_, err := s.Write(context.Background(), Patch{"documents": []string{"x"}})
	require.NoError(t, err)

	_, found, _ := kv.Get(context.Background(), "studio/history")
	assert.True(t, found)
	_, found, _ = kv.Get(context.Background(), DefaultKey)
	assert.False(t, found)
}

func TestEndToEnd(t *testing.T) {
	s, _, bus := newTestStore(t)
	ctx := context.Background()

	_, err := s.Write(ctx, Patch{"documents": []string{"doc1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"documents":["doc1"],"clips":[],"events":[]}`, toJSON(t, s.Read(ctx).Record))

	_, err = s.Write(ctx, Patch{"clips": []string{"clip1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"documents":["doc1"],"clips":["clip1"],"events":[]}`, toJSON(t, s.Read(ctx).Record))

	require.NoError(t, s.Clear(ctx))
	assert.JSONEq(t, emptyJSON, toJSON(t, s.Read(ctx).Record))

	names := make([]string, len(bus.events))
	for i, e := range bus.events {
		names[i] = e.name
	}
	assert.Equal(t, []string{EventUpdated, EventUpdated, EventCleared}, names)
}

// slowKV delays every Get the way a network-backed store does.
type slowKV struct {
	*kvstore.Memory
	delay time.Duration
}

func (k *slowKV) Get(ctx context.Context, key string) (string, bool, error) {
	time.Sleep(k.delay)
	return k.Memory.Get(ctx, key)
}

func TestWrite_ConcurrentPatchesBothSurvive(t *testing.T) {
	kv := &slowKV{Memory: kvstore.NewMemory(), delay: 20 * time.Millisecond}
	bus := &recordingBus{}
	s := New(kv, bus, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	patches := []Patch{
		{FieldDocuments: []string{"doc1"}},
		{FieldClips: []string{"clip1"}},
	}
	var wg sync.WaitGroup
	for _, p := range patches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Write(ctx, p)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, found, err := kv.Memory.Get(ctx, DefaultKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"documents":["doc1"],"clips":["clip1"],"events":[]}`, stored)

	// The later event carries exactly what ended up stored.
	require.Len(t, bus.events, 2)
	assert.JSONEq(t, stored, toJSON(t, bus.events[1].payload))
}

func TestWriteAndClear_Serialized(t *testing.T) {
	kv := &slowKV{Memory: kvstore.NewMemory(), delay: 5 * time.Millisecond}
	bus := &recordingBus{}
	s := New(kv, bus, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Write(ctx, Patch{FieldEvents: []string{"e"}})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Clear(ctx))
		}()
	}
	wg.Wait()

	// Whatever ran last decides both the stored value and the last event.
	last := bus.events[len(bus.events)-1]
	snap := s.Read(ctx)
	switch last.name {
	case EventCleared:
		assert.Equal(t, StateEmpty, snap.State)
	case EventUpdated:
		assert.Equal(t, StateLoaded, snap.State)
		assert.JSONEq(t, toJSON(t, last.payload), toJSON(t, snap.Record))
	default:
		t.Fatalf("unexpected event %q", last.name)
	}
	assert.Len(t, bus.events, 20)
}

func TestWrite_UnavailableIsLogged(t *testing.T) {
	var logs bytes.Buffer
	kv := &flakyKV{Memory: kvstore.NewMemory(), getErr: errors.New("connection refused")}
	bus := &recordingBus{}
	s := New(kv, bus, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	_, err := s.Write(context.Background(), Patch{FieldDocuments: []string{"d1"}})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, logs.String(), "aborting history write")
	assert.Empty(t, bus.events)
}
