package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type collector struct {
	mu  sync.Mutex
	got []Envelope
}

func (c *collector) handle(_ context.Context, e Envelope) {
	c.mu.Lock()
	c.got = append(c.got, e)
	c.mu.Unlock()
}

func (c *collector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.got))
	for i, e := range c.got {
		out[i] = e.Name
	}
	return out
}

func TestLocal_DeliversInOrder(t *testing.T) {
	bus := NewLocal(8, quietLogger())

	var c collector
	bus.Subscribe("history-updated", c.handle)

	ctx := context.Background()
	bus.Emit(ctx, "history-updated", map[string]int{"n": 1})
	bus.Emit(ctx, "history-cleared", nil)
	bus.Emit(ctx, "history-updated", map[string]int{"n": 2})

	require.NoError(t, bus.Close())

	require.Len(t, c.got, 2)
	assert.JSONEq(t, `{"n":1}`, string(c.got[0].Payload))
	assert.JSONEq(t, `{"n":2}`, string(c.got[1].Payload))
}

func TestLocal_Wildcard(t *testing.T) {
	bus := NewLocal(8, quietLogger())

	var c collector
	bus.Subscribe(Wildcard, c.handle)

	bus.Emit(context.Background(), "history-updated", nil)
	bus.Emit(context.Background(), "history-cleared", nil)
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"history-updated", "history-cleared"}, c.names())
}

func TestLocal_Unsubscribe(t *testing.T) {
	bus := NewLocal(8, quietLogger())

	var c collector
	unsubscribe := bus.Subscribe("history-cleared", c.handle)
	unsubscribe()
	unsubscribe() // second call is a no-op

	bus.Emit(context.Background(), "history-cleared", nil)
	require.NoError(t, bus.Close())

	assert.Empty(t, c.names())
}

func TestLocal_DropsWhenQueueFull(t *testing.T) {
	bus := NewLocal(1, quietLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	var c collector
	var once sync.Once
	bus.Subscribe(Wildcard, func(ctx context.Context, e Envelope) {
		once.Do(func() {
			close(started)
			<-release
		})
		c.handle(ctx, e)
	})

	ctx := context.Background()
	bus.Emit(ctx, "first", nil)
	<-started
	bus.Emit(ctx, "second", nil) // fills the buffer
	bus.Emit(ctx, "third", nil)  // dropped
	close(release)

	require.NoError(t, bus.Close())
	assert.Equal(t, []string{"first", "second"}, c.names())
}

func TestLocal_HandlerPanicIsRecovered(t *testing.T) {
	bus := NewLocal(4, quietLogger())

	var c collector
	bus.Subscribe("boom", func(context.Context, Envelope) { panic("handler failure") })
	bus.Subscribe("boom", c.handle)

	bus.Emit(context.Background(), "boom", nil)
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"boom"}, c.names())
}

func TestLocal_EmitAfterClose(t *testing.T) {
	bus := NewLocal(4, quietLogger())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), "late", nil)
	})

	_, err := bus.Stream(context.Background())
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestLocal_StreamFiltersAndStops(t *testing.T) {
	bus := NewLocal(8, quietLogger())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := bus.Stream(ctx, "history-cleared")
	require.NoError(t, err)

	bus.Emit(context.Background(), "history-updated", map[string]any{"documents": []string{}})
	bus.Emit(context.Background(), "history-cleared", nil)

	select {
	case env := <-stream:
		assert.Equal(t, "history-cleared", env.Name)
		assert.Empty(t, env.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-stream
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("history-cleared", nil)
	require.NoError(t, err)
	assert.Equal(t, "history-cleared", env.Name)
	assert.Nil(t, env.Payload)
	assert.NotEqual(t, uuid.Nil, env.ID)

	_, err = NewEnvelope("bad", make(chan int))
	assert.Error(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "payload")
}

func TestMulti(t *testing.T) {
	a := NewLocal(4, quietLogger())
	b := NewLocal(4, quietLogger())

	var ca, cb collector
	a.Subscribe(Wildcard, ca.handle)
	b.Subscribe(Wildcard, cb.handle)

	Multi{a, nil, Discard{}, b}.Emit(context.Background(), "history-updated", nil)
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	assert.Equal(t, []string{"history-updated"}, ca.names())
	assert.Equal(t, []string{"history-updated"}, cb.names())

	_, err := Multi{Discard{}}.Stream(context.Background())
	assert.ErrorIs(t, err, ErrStreamUnsupported)
}
