package core

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Runner is a long-lived host component, such as the HTTP server, started
// after modules load and stopped before they unload.
type Runner interface {
	Name() string
	Start(ctx context.Context, app *App) error
	Stop(ctx context.Context) error
}

type App struct {
	Container  *Container
	Registry   *Registry
	Logger     *slog.Logger
	ModuleRoot string
	Runners    []Runner

	// Results holds the outcome of the startup discover-and-load pass.
	Results map[string]bool

	ShutdownTimeout time.Duration
}

// NewApp builds the container and registry and seeds the logger and the
// registry itself into the container.
func NewApp(logger *slog.Logger, moduleRoot string, opts ...RegistryOption) *App {
	c := NewContainer()
	c.SetLogger(logger)
	reg := NewRegistry(c, append([]RegistryOption{WithRegistryLogger(logger)}, opts...)...)
	c.Register(LoggerService, logger)
	c.Register(RegistryService, reg)
	return &App{
		Container:       c,
		Registry:        reg,
		Logger:          logger,
		ModuleRoot:      moduleRoot,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Load runs discovery and loading once.
func (a *App) Load(ctx context.Context) error {
	results, err := a.Registry.DiscoverAndLoad(ctx, a.ModuleRoot)
	a.Results = results
	if err != nil {
		return err
	}
	loaded := 0
	for _, ok := range results {
		if ok {
			loaded++
		}
	}
	a.Logger.Info("modules loaded",
		"loaded", loaded,
		"failed", len(results)-loaded,
		"order", a.Registry.LoadOrder())
	return nil
}

// Run loads modules, starts runners, waits for ctx or a signal, then stops
// runners and unloads modules in reverse order.
func (a *App) Run(ctx context.Context) error {
	if err := a.Load(ctx); err != nil {
		return err
	}

	started := make([]Runner, 0, len(a.Runners))
	for _, r := range a.Runners {
		a.Logger.Info("starting runner", "runner", r.Name())
		if err := r.Start(ctx, a); err != nil {
			a.stop(started)
			return err
		}
		started = append(started, r)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case <-ctx.Done():
	case <-stop:
	}

	return a.stop(started)
}

func (a *App) stop(started []Runner) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		r := started[i]
		a.Logger.Info("stopping runner", "runner", r.Name())
		if err := r.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Registry.UnloadAll(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
