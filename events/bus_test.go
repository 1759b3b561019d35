package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeIDs(t *testing.T) {
	b := NewBus()
	noop := func(context.Context, Event) error { return nil }

	assert.Equal(t, "a.created_0", b.Subscribe("a.created", noop))
	assert.Equal(t, "a.created_1", b.Subscribe("a.created", noop))
	assert.Equal(t, "b.done_0", b.Subscribe("b.done", noop))
	assert.Equal(t, 2, b.SubscriberCount("a.created"))
	assert.Equal(t, []string{"a.created", "b.done"}, b.Events())
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	var calls atomic.Int32
	h := func(context.Context, Event) error { calls.Add(1); return nil }

	first := b.Subscribe("x", h)
	b.Subscribe("x", h)

	assert.True(t, b.Unsubscribe("x", first))
	assert.False(t, b.Unsubscribe("x", first))
	assert.False(t, b.Unsubscribe("y", "y_0"))
	assert.Equal(t, 1, b.SubscriberCount("x"))

	require.NoError(t, b.Emit(context.Background(), "x", nil, ""))
	assert.Equal(t, int32(1), calls.Load())

	// Ids are not reused after removal.
	assert.Equal(t, "x_2", b.Subscribe("x", h))
}

func TestEmitDeliversToAllHandlers(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	var got []Event
	record := func(_ context.Context, e Event) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	}
	b.Subscribe("content_generation.content_generated", record)
	b.Subscribe("content_generation.content_generated", record)
	b.Subscribe("other", func(context.Context, Event) error {
		t.Error("handler for a different name was called")
		return nil
	})

	data := map[string]any{"topic": "go"}
	require.NoError(t, b.Emit(context.Background(), "content_generation.content_generated", data, "content_generation"))

	require.Len(t, got, 2, "Emit returns after handlers finish")
	for _, e := range got {
		assert.Equal(t, "content_generation.content_generated", e.Name)
		assert.Equal(t, "content_generation", e.Source)
		assert.Equal(t, data, e.Data)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.Equal(t, got[0].ID, got[1].ID)
}

func TestEmitIsolatesHandlerFailures(t *testing.T) {
	var logs bytes.Buffer
	b := NewBus(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	var ok atomic.Bool

	b.Subscribe("e", func(context.Context, Event) error { return errors.New("boom") })
	b.Subscribe("e", func(context.Context, Event) error { panic("kaboom") })
	b.Subscribe("e", func(context.Context, Event) error { ok.Store(true); return nil })

	require.NoError(t, b.Emit(context.Background(), "e", nil, ""))
	assert.True(t, ok.Load())
	assert.Contains(t, logs.String(), "event handler error")
	assert.Contains(t, logs.String(), "event handler panic")
}

func TestEmitCancelledContext(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Emit(ctx, "e", nil, ""), context.Canceled)
	assert.Empty(t, b.History("", 0))
}

func TestMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	b := NewBus(WithLogger(logger))

	var order []string
	b.Use(func(_ context.Context, e Event) error { order = append(order, "first:"+e.Name); return nil })
	b.Use(func(_ context.Context, e Event) error { order = append(order, "second:"+e.Name); return nil })
	b.Use(LoggingMiddleware(logger))
	b.Use(ValidationMiddleware(map[string]func(map[string]any) error{
		"needs_id": func(d map[string]any) error {
			if _, ok := d["id"]; !ok {
				return errors.New("missing id")
			}
			return nil
		},
	}))

	delivered := false
	b.Subscribe("needs_id", func(context.Context, Event) error { delivered = true; return nil })

	require.NoError(t, b.Emit(context.Background(), "needs_id", map[string]any{}, ""))
	assert.Equal(t, []string{"first:needs_id", "second:needs_id"}, order)
	assert.True(t, delivered, "validation failure does not block delivery")
	assert.Contains(t, logs.String(), "event validation failed for needs_id")
	assert.Contains(t, logs.String(), "source=unknown")
}

func TestHistory(t *testing.T) {
	b := NewBus(WithMaxHistory(3))
	ctx := context.Background()
	for _, n := range []string{"a", "b", "a", "c", "a"} {
		require.NoError(t, b.Emit(ctx, n, nil, ""))
	}

	all := b.History("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "c", "a"}, names(all))

	assert.Len(t, b.History("a", 0), 2)
	assert.Equal(t, []string{"c", "a"}, names(b.History("", 2)))
	// limit applies before the name filter
	assert.Equal(t, []string{"a"}, names(b.History("a", 1)))

	b.ClearHistory()
	assert.Empty(t, b.History("", 0))
}

func TestDefaultHistoryBound(t *testing.T) {
	b := NewBus()
	ctx := context.Background()
	for i := 0; i < DefaultMaxHistory+10; i++ {
		require.NoError(t, b.Emit(ctx, "tick", nil, ""))
	}
	assert.Len(t, b.History("", 0), DefaultMaxHistory)
}

func names(evts []Event) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.Name
	}
	return out
}
