package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/events"
)

// Router is the HTTP surface handed to modules.
type Router = gin.IRouter

// UIComponent renders one UI entry point into a view model.
type UIComponent func(ctx context.Context) (any, error)

const DefaultAuthor = "Content Agent Team"

// Descriptor is a module's metadata. Name is the dependency-graph node id,
// the registry key, the "<name>_module" container key and the event prefix.
type Descriptor struct {
	Name                 string   `yaml:"name" json:"name" validate:"required"`
	Version              string   `yaml:"version" json:"version" validate:"required"`
	Description          string   `yaml:"description" json:"description"`
	Dependencies         []string `yaml:"dependencies" json:"dependencies"`
	OptionalDependencies []string `yaml:"optional_dependencies" json:"optional_dependencies"`
	Author               string   `yaml:"author" json:"author"`
}

// Health status values.
const (
	StatusHealthy        = "healthy"
	StatusNotInitialized = "not_initialized"
	StatusDegraded       = "degraded"
	StatusUnhealthy      = "unhealthy"
)

type HealthStatus struct {
	Module  string         `json:"module"`
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Details map[string]any `json:"details,omitempty"`
}

// Module is a unit of capability loaded by the Registry. Implementations
// embed *Base, which supplies metadata, health, cleanup and event helpers.
type Module interface {
	Info() Descriptor
	// Initialize constructs and registers the module's services. A returned
	// error marks the load as failed. It must return once ctx is done; past
	// the init timeout its registrations are discarded.
	Initialize(ctx context.Context) error
	RegisterRoutes(r Router)
	UIComponents() map[string]UIComponent
	HealthCheck(ctx context.Context) HealthStatus
	// Cleanup runs when the module is unloaded.
	Cleanup(ctx context.Context) error
	IsInitialized() bool

	setInitialized(bool)
}

// EventBus is the slice of the event bus modules depend on.
type EventBus interface {
	Emit(ctx context.Context, name string, data map[string]any, source string) error
	Subscribe(name string, h events.Handler) string
	Unsubscribe(name, id string) bool
}

type eventSub struct{ event, id string }

// Base carries the shared state every module needs.
type Base struct {
	info        Descriptor
	container   *Container
	logger      *slog.Logger
	initialized atomic.Bool

	mu   sync.Mutex
	subs []eventSub
}

func NewBase(c *Container, info Descriptor) *Base {
	if info.Author == "" {
		info.Author = DefaultAuthor
	}
	logger, err := Resolve[*slog.Logger](c, LoggerService)
	if err != nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Base{
		info:      info,
		container: c,
		logger:    logger.With("module", info.Name),
	}
}

func (b *Base) Info() Descriptor { return b.info }

func (b *Base) Container() *Container { return b.container }

func (b *Base) Logger() *slog.Logger { return b.logger }

func (b *Base) IsInitialized() bool { return b.initialized.Load() }

func (b *Base) setInitialized(v bool) { b.initialized.Store(v) }

// Cleanup drops the subscriptions made through SubscribeToEvent and marks
// the module uninitialized. Modules overriding it should call it last.
func (b *Base) Cleanup(context.Context) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	if len(subs) > 0 {
		if bus, err := b.bus(); err == nil {
			for _, s := range subs {
				bus.Unsubscribe(s.event, s.id)
			}
		}
	}
	b.initialized.Store(false)
	return nil
}

func (b *Base) HealthCheck(context.Context) HealthStatus {
	status := StatusNotInitialized
	if b.IsInitialized() {
		status = StatusHealthy
	}
	return HealthStatus{Module: b.info.Name, Status: status, Version: b.info.Version}
}

// Config returns the bound application configuration from the container.
func (b *Base) Config() (*config.Root, error) {
	return Resolve[*config.Root](b.container, ConfigService)
}

func (b *Base) Service(name string) (any, error) { return b.container.Get(name) }

func (b *Base) RegisterService(name string, v any) { b.container.Register(name, v) }

func (b *Base) bus() (EventBus, error) {
	return Resolve[EventBus](b.container, EventBusService)
}

// EmitEvent publishes "<module>.<event>". Failures are logged, not returned.
func (b *Base) EmitEvent(ctx context.Context, event string, data map[string]any) {
	name := fmt.Sprintf("%s.%s", b.info.Name, event)
	bus, err := b.bus()
	if err != nil {
		b.logger.Error("failed to emit event", "event", event, "error", err)
		return
	}
	if err := bus.Emit(ctx, name, data, b.info.Name); err != nil {
		b.logger.Error("failed to emit event", "event", event, "error", err)
	}
}

// SubscribeToEvent subscribes to a fully qualified event name. It returns
// the subscription id, or "" when the bus is unavailable.
func (b *Base) SubscribeToEvent(event string, h events.Handler) string {
	bus, err := b.bus()
	if err != nil {
		b.logger.Error("failed to subscribe to event", "event", event, "error", err)
		return ""
	}
	id := bus.Subscribe(event, h)
	b.mu.Lock()
	b.subs = append(b.subs, eventSub{event: event, id: id})
	b.mu.Unlock()
	return id
}
