package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/skekre98/contentagent/actuator"
	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/config/source"
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/events"
	"github.com/skekre98/contentagent/logging"
	"github.com/skekre98/contentagent/metrics"
	"github.com/skekre98/contentagent/modules"
	"github.com/skekre98/contentagent/web"
)

func main() {
	fs := pflag.NewFlagSet("contentagent", pflag.ContinueOnError)
	configDir := fs.String("config-dir", "configs", "directory holding application.yaml")
	profile := fs.String("profile", os.Getenv("CONTENTAGENT_PROFILE"), "config overlay to merge, e.g. dev")
	watch := fs.Bool("watch", false, "reload configuration files on change")
	// Dotted keys such as --server.addr are read by the CLI config source.
	fs.ParseErrorsWhitelist.UnknownFlags = true
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(*configDir, *profile, *watch); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configDir, profile string, watch bool) error {
	// 1) config: defaults < file < env < flags
	mgr, cfg, err := config.Load(config.Options{AutoReload: watch, Logger: slog.Default()},
		&source.FileSource{BasePath: configDir, Profile: profile},
		&source.EnvSource{},
		&source.CLISource{},
	)
	if err != nil {
		return err
	}
	defer mgr.Close()

	// 2) logging
	logger := logging.New(cfg.Logging).With(
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	)
	if watch {
		changes := make(chan config.Event, 1)
		mgr.Subscribe(changes)
		go func() {
			for evt := range changes {
				logger.Info("configuration reloaded", "changed", evt.ChangedKeys)
			}
		}()
	}

	// 3) metrics
	reg := metrics.NewNoOpRegistry()
	if cfg.Observability.Metrics.Enabled {
		if reg, err = metrics.NewPrometheusRegistry(cfg.Observability.Metrics); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// 4) event bus
	bus := events.NewBus(events.WithLogger(logger))
	bus.Use(events.LoggingMiddleware(logger))
	bus.Use(metrics.EventMiddleware(reg))

	// 5) compose the app
	app := core.NewApp(logger, cfg.Modules.Root,
		core.WithFactories(modules.Builtins()),
		core.WithInitTimeout(cfg.Modules.InitTimeout),
		core.WithDisabled(cfg.Modules.Disabled...),
		core.WithLoadObserver(reg),
	)
	app.Container.Register(core.ConfigService, cfg)
	app.Container.Register(core.ConfigManagerService, mgr)
	app.Container.Register(core.EventBusService, bus)
	app.Container.Register(core.MetricsService, reg)

	// 6) web server with the actuator endpoints
	app.Runners = append(app.Runners, web.New(cfg.Server, cfg.App, logger,
		web.WithMetrics(reg),
		web.WithRoutes(actuator.Routes(cfg.Actuator, cfg.App, reg)),
	))

	// 7) run until interrupted
	if err := app.Run(context.Background()); err != nil {
		logger.Error("app error", "error", err)
		return err
	}
	return nil
}
