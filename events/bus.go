// Package events is an in-process publish/subscribe bus used by feature
// modules to notify each other of domain events.
package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxHistory = 1000

// Event is a single emitted notification.
type Event struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Data      map[string]any `json:"data"`
	Source    string         `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler receives events for a subscribed name.
type Handler func(ctx context.Context, e Event) error

// Middleware observes every emitted event before delivery.
type Middleware func(ctx context.Context, e Event) error

type subscription struct {
	id      string
	handler Handler
}

// Bus delivers events to subscribers synchronously, fanning out to all
// handlers of a name concurrently and waiting for them to finish.
type Bus struct {
	mu         sync.RWMutex
	subs       map[string][]subscription
	seq        map[string]int
	middleware []Middleware
	history    []Event
	maxHistory int
	logger     *slog.Logger
}

type Option func(*Bus)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l.With("component", "event_bus")
		}
	}
}

func WithMaxHistory(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxHistory = n
		}
	}
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:       make(map[string][]subscription),
		seq:        make(map[string]int),
		maxHistory: DefaultMaxHistory,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers handler for name and returns a subscription id.
func (b *Bus) Subscribe(name string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("%s_%d", name, b.seq[name])
	b.seq[name]++
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: handler})
	b.logger.Debug("subscribed", "event", name, "subscription", id)
	return id
}

// Unsubscribe removes the subscription with the given id.
func (b *Bus) Unsubscribe(name, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[name]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		b.subs[name] = append(subs[:i:i], subs[i+1:]...)
		if len(b.subs[name]) == 0 {
			delete(b.subs, name)
		}
		b.logger.Debug("unsubscribed", "event", name, "subscription", id)
		return true
	}
	return false
}

// Use appends middleware run for every event, in registration order.
func (b *Bus) Use(m Middleware) {
	b.mu.Lock()
	b.middleware = append(b.middleware, m)
	b.mu.Unlock()
}

// Emit records the event, runs middleware and delivers it to subscribers.
// Middleware and handler failures are logged and never returned.
func (b *Bus) Emit(ctx context.Context, name string, data map[string]any, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	evt := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      data,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}

	b.mu.Lock()
	b.history = append(b.history, evt)
	if over := len(b.history) - b.maxHistory; over > 0 {
		b.history = append([]Event(nil), b.history[over:]...)
	}
	mw := append([]Middleware(nil), b.middleware...)
	subs := append([]subscription(nil), b.subs[name]...)
	b.mu.Unlock()

	for _, m := range mw {
		if err := m(ctx, evt); err != nil {
			b.logger.Error("middleware error", "event", name, "error", err)
		}
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					b.logger.Error("event handler panic", "event", name, "subscription", s.id, "error", rec)
				}
			}()
			if err := s.handler(ctx, evt); err != nil {
				b.logger.Error("event handler error", "event", name, "subscription", s.id, "error", err)
			}
		}(s)
	}
	wg.Wait()

	b.logger.Debug("emitted event", "event", name, "items", len(data), "subscribers", len(subs))
	return nil
}

// History returns up to limit of the most recent events, optionally
// filtered by name. A limit <= 0 means no limit.
func (b *Bus) History(name string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hist := b.history
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]Event, 0, len(hist))
	for _, e := range hist {
		if name == "" || e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (b *Bus) ClearHistory() {
	b.mu.Lock()
	b.history = nil
	b.mu.Unlock()
	b.logger.Debug("cleared event history")
}

func (b *Bus) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Events lists event names that have subscribers, sorted.
func (b *Bus) Events() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs))
	for n := range b.subs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
