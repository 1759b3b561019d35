package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
)

// Manager loads configuration from an ordered list of sources, validates it,
// and notifies subscribers when a reload changes it.
//
// Updates are atomic: a reload that fails to load, decode or validate leaves
// the current configuration untouched. All methods are safe for concurrent
// use.
type Manager struct {
	sources []ConfigSource
	config  any
	binder  *Binder
	logger  *slog.Logger

	mu   sync.RWMutex
	subs []chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options configures the behavior of a Manager.
type Options struct {
	// AutoReload starts a watcher per source and reloads on change.
	AutoReload bool

	// Logger receives watcher errors and reload failures. Optional.
	Logger *slog.Logger
}

// NewManager binds cfg, a pointer to a struct, from sources. Later sources
// override earlier ones, so [defaults, file, env, cli] lets flags win.
//
// Example:
//
//	var cfg config.Root
//	mgr, err := config.NewManager(&cfg, config.Options{AutoReload: true},
//	    &source.FileSource{BasePath: "configs"},
//	    &source.EnvSource{},
//	    &source.CLISource{},
//	)
func NewManager(cfg any, opts Options, sources ...ConfigSource) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sources: sources,
		config:  cfg,
		binder:  NewBinder(),
		logger:  logger.With("component", "config"),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := m.Reload(ctx); err != nil {
		cancel()
		return nil, err
	}

	if opts.AutoReload {
		m.startWatchers()
	}
	return m, nil
}

// Reload loads every source, merges, binds and validates into a fresh value,
// then swaps it into the caller's struct. Subscribers are notified only when
// something changed.
func (m *Manager) Reload(ctx context.Context) error {
	merged := map[string]any{}
	for _, src := range m.sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		vals, err := src.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load config from %s: %w", src.Name(), err)
		}
		mergeMaps(merged, vals)
	}

	newCfg := reflect.New(reflect.TypeOf(m.config).Elem()).Interface()
	if err := m.binder.Bind(merged, newCfg); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}

	m.mu.Lock()
	oldCfg := reflect.New(reflect.TypeOf(m.config).Elem()).Interface()
	reflect.ValueOf(oldCfg).Elem().Set(reflect.ValueOf(m.config).Elem())
	reflect.ValueOf(m.config).Elem().Set(reflect.ValueOf(newCfg).Elem())
	m.mu.Unlock()

	if !reflect.DeepEqual(oldCfg, newCfg) {
		m.notify(diffEvent(oldCfg, newCfg))
	}
	return nil
}

// Snapshot returns a copy of the current configuration value, for the
// element type of the pointer passed to NewManager.
func (m *Manager) Snapshot() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := reflect.New(reflect.TypeOf(m.config).Elem())
	cp.Elem().Set(reflect.ValueOf(m.config).Elem())
	return cp.Elem().Interface()
}

// Subscribe registers a channel for change events. Delivery is non-blocking:
// if the channel buffer is full the event is dropped. The channel is never
// closed by the Manager.
func (m *Manager) Subscribe(ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, ch)
}

func (m *Manager) notify(evt Event) {
	m.mu.RLock()
	subs := append([]chan Event(nil), m.subs...)
	m.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close stops watchers started by AutoReload and waits for them to exit.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) startWatchers() {
	for _, src := range m.sources {
		ch := make(chan Event, 1)
		if err := src.Watch(m.ctx, ch); err != nil {
			m.logger.Warn("config watch unavailable", "source", src.Name(), "error", err)
			continue
		}
		m.wg.Add(1)
		go func(src ConfigSource) {
			defer m.wg.Done()
			for {
				select {
				case <-m.ctx.Done():
					return
				case evt := <-ch:
					if evt.Err != nil {
						m.logger.Warn("config watch error", "source", src.Name(), "error", evt.Err)
						continue
					}
					if err := m.Reload(m.ctx); err != nil {
						m.logger.Error("config reload failed", "source", src.Name(), "error", err)
					}
				}
			}
		}(src)
	}
}
