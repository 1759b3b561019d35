package web

import (
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/metrics"
)

// RouteFunc registers host-level routes once modules have loaded.
type RouteFunc func(r Router, app *core.App)

type Options struct {
	// Called while building the engine, after module routes.
	Routes []RouteFunc
	// Optional additional middlewares.
	Middlewares []Handler
	// Metrics, when set, records per-request metrics.
	Metrics metrics.Registry
}

type Option func(*Options)

func WithRoutes(f RouteFunc) Option {
	return func(o *Options) { o.Routes = append(o.Routes, f) }
}

func WithMiddlewares(m ...Handler) Option {
	return func(o *Options) { o.Middlewares = append(o.Middlewares, m...) }
}

func WithMetrics(r metrics.Registry) Option {
	return func(o *Options) { o.Metrics = r }
}
