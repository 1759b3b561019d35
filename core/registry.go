package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// ManifestFile is the entry file that marks a directory as a module.
	ManifestFile = "module.yaml"
	// ReservedPrefix excludes directories from discovery.
	ReservedPrefix = "_"
)

var (
	ErrUnknownModule     = errors.New("no factory registered for module")
	ErrMissingDependency = errors.New("dependency not loaded")
	ErrNameMismatch      = errors.New("module name does not match registry key")
	ErrNotLoaded         = errors.New("module not loaded")
)

// Factory constructs a module bound to the shared container. It must not
// perform I/O; that belongs in Initialize.
type Factory func(c *Container) Module

// State is a module's position in a load attempt.
type State string

const (
	StateDiscovered        State = "discovered"
	StateDependencyChecked State = "dependency_checked"
	StateInitializing      State = "initializing"
	StateLoaded            State = "loaded"
	StateFailed            State = "failed"
	StateUnloaded          State = "unloaded"
)

// LoadObserver is told about every load attempt.
type LoadObserver interface {
	ObserveModuleLoad(name string, ok bool, d time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveModuleLoad(string, bool, time.Duration) {}

type RegistryOption func(*Registry)

func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l.With("component", "module_registry")
		}
	}
}

// WithFactories installs the compile-time module table.
func WithFactories(f map[string]Factory) RegistryOption {
	return func(r *Registry) {
		for name, fn := range f {
			r.factories[name] = fn
		}
	}
}

// WithInitTimeout bounds each module's Initialize call. Zero disables it.
func WithInitTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.initTimeout = d }
}

// WithDisabled skips the named modules during discovery.
func WithDisabled(names ...string) RegistryOption {
	return func(r *Registry) {
		for _, n := range names {
			r.disabled[n] = struct{}{}
		}
	}
}

func WithLoadObserver(o LoadObserver) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// Registry discovers, orders, loads and tracks feature modules.
type Registry struct {
	container   *Container
	factories   map[string]Factory
	disabled    map[string]struct{}
	initTimeout time.Duration
	observer    LoadObserver
	logger      *slog.Logger
	validate    *validator.Validate

	mu         sync.RWMutex
	discovered map[string]Descriptor
	modules    map[string]Module
	order      []string
	states     map[string]State
	failed     map[string]error
}

func NewRegistry(c *Container, opts ...RegistryOption) *Registry {
	r := &Registry{
		container:  c,
		factories:  make(map[string]Factory),
		disabled:   make(map[string]struct{}),
		observer:   noopObserver{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		validate:   validator.New(),
		discovered: make(map[string]Descriptor),
		modules:    make(map[string]Module),
		states:     make(map[string]State),
		failed:     make(map[string]error),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterFactory adds or replaces the constructor for name.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// DiscoverAndLoad discovers modules under root and loads them one at a time
// in dependency order. A module's failure never stops the loop. The error is
// non-nil only when root exists but cannot be read.
func (r *Registry) DiscoverAndLoad(ctx context.Context, root string) (map[string]bool, error) {
	results := make(map[string]bool)
	found, err := r.Discover(root)
	if err != nil {
		return results, err
	}
	names := make([]string, 0, len(found))
	for n := range found {
		names = append(names, n)
	}
	sort.Strings(names)
	r.logger.Info("discovered modules", "count", len(found), "modules", names)

	graph := make(map[string][]string, len(found))
	for name, d := range found {
		graph[name] = d.Dependencies
	}
	order, flushed := ResolveOrder(graph)
	if len(flushed) > 0 {
		r.logger.Warn("circular dependency detected, loading remaining modules anyway", "modules", flushed)
	}

	for _, name := range order {
		ok := r.LoadModule(ctx, name)
		results[name] = ok
		if ok {
			r.logger.Info("loaded module", "module", name)
		} else {
			r.logger.Error("failed to load module", "module", name, "error", r.FailureReason(name))
		}
	}
	return results, nil
}

// Discover reads the manifest of every candidate directory under root.
// Candidates whose manifest cannot be read or validated are logged and
// omitted. A missing root yields no modules.
func (r *Registry) Discover(root string) (map[string]Descriptor, error) {
	found := make(map[string]Descriptor)
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("modules directory not found", "path", root)
			return found, nil
		}
		return found, fmt.Errorf("registry: read %s: %w", root, err)
	}

	for _, entry := range entries {
		dir := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(dir, ReservedPrefix) {
			continue
		}
		manifest := filepath.Join(root, dir, ManifestFile)
		if _, err := os.Stat(manifest); err != nil {
			continue
		}
		if _, off := r.disabled[dir]; off {
			r.logger.Info("module disabled, skipping", "module", dir)
			continue
		}
		desc, err := r.readManifest(manifest)
		if err != nil {
			r.logger.Warn("could not read module info", "module", dir, "error", err)
			continue
		}
		if desc.Name != dir {
			r.logger.Warn("could not read module info", "module", dir,
				"error", fmt.Errorf("%w: manifest declares %q", ErrNameMismatch, desc.Name))
			continue
		}
		found[dir] = desc
	}

	r.mu.Lock()
	for name, d := range found {
		r.discovered[name] = d
		if _, loaded := r.modules[name]; !loaded {
			r.states[name] = StateDiscovered
		}
	}
	r.mu.Unlock()
	return found, nil
}

func (r *Registry) readManifest(path string) (Descriptor, error) {
	var d Descriptor
	b, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := r.validate.Struct(d); err != nil {
		return d, fmt.Errorf("validate %s: %w", path, err)
	}
	return d, nil
}

// ResolveOrder orders graph (module -> hard dependencies) so that every
// dependency precedes its dependents. Dependencies absent from graph count
// as satisfied. If what remains is cyclic, it is appended as one final batch
// and also returned as flushed. Ties within a batch are broken by name.
func ResolveOrder(graph map[string][]string) (order []string, flushed []string) {
	remaining := make(map[string]struct{}, len(graph))
	for n := range graph {
		remaining[n] = struct{}{}
	}
	order = make([]string, 0, len(graph))

	for len(remaining) > 0 {
		var ready []string
		for name := range remaining {
			blocked := false
			for _, dep := range graph[name] {
				if _, pending := remaining[dep]; pending {
					blocked = true
					break
				}
			}
			if !blocked {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			for name := range remaining {
				ready = append(ready, name)
			}
			sort.Strings(ready)
			flushed = ready
		} else {
			sort.Strings(ready)
		}
		order = append(order, ready...)
		for _, n := range ready {
			delete(remaining, n)
		}
	}
	return order, flushed
}

// LoadModule constructs, checks and initializes one module. It reports
// whether the module is loaded; the cause of a failure is available from
// FailureReason. Panics from the factory or Initialize count as failures.
func (r *Registry) LoadModule(ctx context.Context, name string) bool {
	start := time.Now()
	err := r.load(ctx, name)
	r.observer.ObserveModuleLoad(name, err == nil, time.Since(start))
	if err != nil {
		r.fail(name, err)
		return false
	}
	return true
}

func (r *Registry) load(ctx context.Context, name string) error {
	r.mu.RLock()
	_, loaded := r.modules[name]
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}

	view := r.container.scoped(name)
	m, err := construct(factory, view)
	if err != nil {
		return err
	}
	info := m.Info()
	if info.Name != name {
		return fmt.Errorf("%w: %q reports %q", ErrNameMismatch, name, info.Name)
	}

	if err := r.checkDependencies(info); err != nil {
		return err
	}
	r.setState(name, StateDependencyChecked)

	r.setState(name, StateInitializing)
	if err := r.initialize(ctx, name, m, view); err != nil {
		return fmt.Errorf("initialize %s: %w", name, err)
	}

	m.setInitialized(true)
	r.mu.Lock()
	r.modules[name] = m
	r.order = append(r.order, name)
	r.states[name] = StateLoaded
	delete(r.failed, name)
	r.mu.Unlock()
	r.container.Register(ModuleServiceName(name), m)
	return nil
}

func construct(f Factory, c *Container) (m Module, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("construct module: panic: %v", rec)
		}
	}()
	m = f(c)
	if m == nil {
		return nil, errors.New("construct module: factory returned nil")
	}
	return m, nil
}

func (r *Registry) checkDependencies(info Descriptor) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, dep := range info.Dependencies {
		if _, ok := r.modules[dep]; !ok {
			r.logger.Error("missing dependency", "module", info.Name, "dependency", dep)
			return fmt.Errorf("%w: %s requires %s", ErrMissingDependency, info.Name, dep)
		}
	}
	return nil
}

// initialize runs m.Initialize under the init timeout. On expiry the
// services registered through view are removed and later registrations are
// dropped, so a late initializer cannot leak bindings into the container.
func (r *Registry) initialize(ctx context.Context, name string, m Module, view *Container) error {
	if r.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.initTimeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("panic: %v", rec)
			}
		}()
		done <- m.Initialize(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		revoked := view.revoke()
		r.logger.Warn("module initialization abandoned", "module", name, "error", ctx.Err(), "revoked", revoked)
		go func() {
			err := <-done
			r.logger.Warn("abandoned module initializer returned", "module", name, "error", err)
		}()
		return ctx.Err()
	}
}

func (r *Registry) fail(name string, err error) {
	r.mu.Lock()
	r.failed[name] = err
	r.states[name] = StateFailed
	r.mu.Unlock()
}

func (r *Registry) setState(name string, s State) {
	r.mu.Lock()
	r.states[name] = s
	r.mu.Unlock()
}

// Unload runs the module's Cleanup and drops it from the registry and the
// container.
func (r *Registry) Unload(ctx context.Context, name string) error {
	r.mu.Lock()
	m, ok := r.modules[name]
	if ok {
		delete(r.modules, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i:i], r.order[i+1:]...)
				break
			}
		}
		r.states[name] = StateUnloaded
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	r.container.Remove(ModuleServiceName(name))
	if err := m.Cleanup(ctx); err != nil {
		return fmt.Errorf("cleanup %s: %w", name, err)
	}
	r.logger.Info("unloaded module", "module", name)
	return nil
}

// UnloadAll unloads every module in reverse load order and returns the
// first cleanup error.
func (r *Registry) UnloadAll(ctx context.Context) error {
	order := r.LoadOrder()
	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		if err := r.Unload(ctx, order[i]); err != nil {
			r.logger.Error("unload failed", "module", order[i], "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Registry) GetModule(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// GetAllModules returns a copy of the loaded module map.
func (r *Registry) GetAllModules() map[string]Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Module, len(r.modules))
	for k, v := range r.modules {
		out[k] = v
	}
	return out
}

// LoadOrder returns the loaded module names in the order they loaded.
func (r *Registry) LoadOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) FailedModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.failed))
	for n := range r.failed {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// FailureReason returns why name last failed to load, or nil.
func (r *Registry) FailureReason(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failed[name]
}

func (r *Registry) State(name string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[name]
	return s, ok
}

// Discovered returns the descriptors found by the last discovery runs.
func (r *Registry) Discovered() map[string]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Descriptor, len(r.discovered))
	for k, v := range r.discovered {
		out[k] = v
	}
	return out
}

// HealthCheckAll asks every loaded module for its health concurrently. A
// panicking check is reported as unhealthy.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	mods := r.GetAllModules()
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	out := make(map[string]HealthStatus, len(mods))
	for name, m := range mods {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hs := safeHealth(ctx, name, m)
			mu.Lock()
			out[name] = hs
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func safeHealth(ctx context.Context, name string, m Module) (hs HealthStatus) {
	defer func() {
		if rec := recover(); rec != nil {
			hs = HealthStatus{
				Module:  name,
				Status:  StatusUnhealthy,
				Version: m.Info().Version,
				Details: map[string]any{"error": fmt.Sprint(rec)},
			}
		}
	}()
	return m.HealthCheck(ctx)
}

// ModuleServiceName is the container key a loaded module is bound under.
func ModuleServiceName(name string) string { return name + "_module" }
