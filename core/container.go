package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"sync"
)

// Well-known service names seeded by the host before discovery.
const (
	ConfigService        = "config"
	ConfigManagerService = "config_manager"
	LoggerService        = "logger"
	EventBusService      = "event_bus"
	MetricsService       = "metrics"
	RegistryService      = "module_registry"
)

// Service kinds reported by ListServices.
const (
	KindInstance  = "instance"
	KindFactory   = "factory"
	KindSingleton = "singleton"
)

var (
	ErrServiceNotFound      = errors.New("service not found")
	ErrDependencyResolution = errors.New("dependency resolution failed")
)

// ServiceNotFoundError is returned by Get when a name is unbound.
type ServiceNotFoundError struct {
	Name string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("container: service %q not found", e.Name)
}

func (e *ServiceNotFoundError) Is(target error) bool { return target == ErrServiceNotFound }

// DependencyResolutionError names the parameter AutoWire could not satisfy.
type DependencyResolutionError struct {
	Param  string
	Target string
	Err    error
}

func (e *DependencyResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("container: cannot resolve dependency %q for %s: %v", e.Param, e.Target, e.Err)
	}
	return fmt.Sprintf("container: cannot resolve dependency %q for %s", e.Param, e.Target)
}

func (e *DependencyResolutionError) Is(target error) bool { return target == ErrDependencyResolution }

func (e *DependencyResolutionError) Unwrap() error { return e.Err }

// WrongTypeError is returned by Resolve when the bound value has another type.
type WrongTypeError struct {
	Name string
	Have any
	Want reflect.Type
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("container: wrong type for %q. have=%T want=%v", e.Name, e.Have, e.Want)
}

// FactoryFunc builds a service value on demand.
type FactoryFunc func() (any, error)

type singleton struct {
	mu      sync.Mutex
	factory FactoryFunc
	built   bool
	value   any
}

// Container is a name-keyed service locator with instance, factory and
// singleton bindings. Re-registering a name overwrites the previous binding
// of the same kind. It is safe for concurrent use; a singleton's factory runs
// at most once even under concurrent Get calls.
type Container struct {
	*bindings
	scope *scope
}

type bindings struct {
	mu         sync.RWMutex
	instances  map[string]any
	factories  map[string]FactoryFunc
	singletons map[string]*singleton
	logger     *slog.Logger
}

// scope records the names registered through one module's view of the
// container. Once revoked, registrations through it are dropped.
type scope struct {
	mu      sync.Mutex
	owner   string
	names   []string
	revoked bool
}

func NewContainer() *Container {
	return &Container{bindings: &bindings{
		instances:  make(map[string]any),
		factories:  make(map[string]FactoryFunc),
		singletons: make(map[string]*singleton),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}}
}

// scoped returns a view sharing c's bindings that records registrations made
// on behalf of owner.
func (c *Container) scoped(owner string) *Container {
	return &Container{bindings: c.bindings, scope: &scope{owner: owner}}
}

// track reports whether a registration of name may proceed.
func (c *Container) track(name string) bool {
	if c.scope == nil {
		return true
	}
	c.scope.mu.Lock()
	defer c.scope.mu.Unlock()
	if c.scope.revoked {
		c.log().Warn("dropped registration from revoked module", "module", c.scope.owner, "name", name)
		return false
	}
	c.scope.names = append(c.scope.names, name)
	return true
}

// revoke removes every binding registered through the view and drops any
// later registration. It returns the removed names.
func (c *Container) revoke() []string {
	if c.scope == nil {
		return nil
	}
	c.scope.mu.Lock()
	names := c.scope.names
	c.scope.names, c.scope.revoked = nil, true
	c.scope.mu.Unlock()
	var removed []string
	for _, n := range names {
		if c.Remove(n) {
			removed = append(removed, n)
		}
	}
	return removed
}

// SetLogger attaches a logger for registration debug output.
func (c *Container) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.logger = l.With("component", "container")
	c.mu.Unlock()
}

func (c *Container) Register(name string, instance any) {
	if !c.track(name) {
		return
	}
	c.mu.Lock()
	c.instances[name] = instance
	l := c.logger
	c.mu.Unlock()
	l.Debug("registered service", "name", name, "kind", KindInstance)
}

func (c *Container) RegisterFactory(name string, factory FactoryFunc) {
	if !c.track(name) {
		return
	}
	c.mu.Lock()
	c.factories[name] = factory
	l := c.logger
	c.mu.Unlock()
	l.Debug("registered service", "name", name, "kind", KindFactory)
}

func (c *Container) RegisterSingleton(name string, factory FactoryFunc) {
	if !c.track(name) {
		return
	}
	c.mu.Lock()
	c.singletons[name] = &singleton{factory: factory}
	l := c.logger
	c.mu.Unlock()
	l.Debug("registered service", "name", name, "kind", KindSingleton)
}

func (c *Container) log() *slog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// Get resolves name: instance first, then singleton, then factory.
func (c *Container) Get(name string) (any, error) {
	c.mu.RLock()
	inst, isInst := c.instances[name]
	single, isSingle := c.singletons[name]
	factory, isFactory := c.factories[name]
	c.mu.RUnlock()

	switch {
	case isInst:
		return inst, nil
	case isSingle:
		return single.get()
	case isFactory:
		return factory()
	}
	return nil, &ServiceNotFoundError{Name: name}
}

func (s *singleton) get() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.built {
		return s.value, nil
	}
	v, err := s.factory()
	if err != nil {
		return nil, err
	}
	s.value, s.built = v, true
	return v, nil
}

// MustGet is Get that panics on error.
func (c *Container) MustGet(name string) any {
	v, err := c.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, a := c.instances[name]
	_, b := c.factories[name]
	_, d := c.singletons[name]
	return a || b || d
}

// Remove deletes every binding for name and reports whether any existed.
func (c *Container) Remove(name string) bool {
	c.mu.Lock()
	removed := false
	if _, ok := c.instances[name]; ok {
		delete(c.instances, name)
		removed = true
	}
	if _, ok := c.factories[name]; ok {
		delete(c.factories, name)
		removed = true
	}
	if _, ok := c.singletons[name]; ok {
		delete(c.singletons, name)
		removed = true
	}
	l := c.logger
	c.mu.Unlock()
	if removed {
		l.Debug("removed service", "name", name)
	}
	return removed
}

// ListServices reports, for every bound name, the kind Get would resolve.
func (c *Container) ListServices() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.instances)+len(c.factories)+len(c.singletons))
	for name := range c.factories {
		out[name] = KindFactory
	}
	for name := range c.singletons {
		out[name] = KindSingleton
	}
	for name := range c.instances {
		out[name] = KindInstance
	}
	return out
}

// Names returns the bound service names, sorted.
func (c *Container) Names() []string {
	services := c.ListServices()
	names := make([]string, 0, len(services))
	for n := range services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve is a typed Get.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	raw, err := c.Get(name)
	if err != nil {
		return zero, err
	}
	v, ok := raw.(T)
	if !ok {
		return zero, &WrongTypeError{Name: name, Have: raw, Want: reflect.TypeFor[T]()}
	}
	return v, nil
}

// MustResolve is Resolve that panics on error.
func MustResolve[T any](c *Container, name string) T {
	v, err := Resolve[T](c, name)
	if err != nil {
		panic(err)
	}
	return v
}

// Param names a constructor dependency for AutoWire. When the container has
// no binding for Name and HasDefault is set, Default is passed instead.
type Param struct {
	Name       string
	Default    any
	HasDefault bool
}

// Optional declares a parameter that falls back to def when unresolved.
func Optional(name string, def any) Param {
	return Param{Name: name, Default: def, HasDefault: true}
}

// Required declares a parameter that must be bound.
func Required(name string) Param { return Param{Name: name} }

// AutoWire resolves each declared parameter by name and hands the resulting
// arguments to build. Parameters are explicit; nothing is inferred.
func AutoWire[T any](c *Container, target string, params []Param, build func(args map[string]any) (T, error)) (T, error) {
	var zero T
	args := make(map[string]any, len(params))
	for _, p := range params {
		if c.Has(p.Name) {
			v, err := c.Get(p.Name)
			if err != nil {
				return zero, &DependencyResolutionError{Param: p.Name, Target: target, Err: err}
			}
			args[p.Name] = v
			continue
		}
		if p.HasDefault {
			args[p.Name] = p.Default
			continue
		}
		return zero, &DependencyResolutionError{Param: p.Name, Target: target}
	}
	v, err := build(args)
	if err != nil {
		c.log().Error("auto-wire failed", "target", target, "error", err)
		return zero, err
	}
	return v, nil
}
