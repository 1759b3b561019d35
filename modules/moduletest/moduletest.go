// Package moduletest builds a seeded container, event bus and router for
// feature module tests.
package moduletest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/events"
	"github.com/skekre98/contentagent/web"
)

type Env struct {
	Container *core.Container
	Bus       *events.Bus
	Config    *config.Root
	Registry  *core.Registry
	Logger    *slog.Logger
}

// New binds the default configuration, after mutate, into a container
// seeded the way the host seeds it.
func New(t testing.TB, mutate ...func(*config.Root)) *Env {
	t.Helper()
	_, cfg, err := config.Load(config.Options{})
	require.NoError(t, err)
	for _, f := range mutate {
		f(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus(events.WithLogger(logger))
	c := core.NewContainer()
	c.SetLogger(logger)
	c.Register(core.LoggerService, logger)
	c.Register(core.ConfigService, cfg)
	c.Register(core.EventBusService, bus)

	return &Env{Container: c, Bus: bus, Config: cfg, Logger: logger}
}

// Load registers factories and loads them in the given order, failing the
// test if any load fails.
func (e *Env) Load(t testing.TB, factories map[string]core.Factory, names ...string) {
	t.Helper()
	if e.Registry == nil {
		e.Registry = core.NewRegistry(e.Container, core.WithRegistryLogger(e.Logger))
		e.Container.Register(core.RegistryService, e.Registry)
	}
	for name, f := range factories {
		e.Registry.RegisterFactory(name, f)
	}
	for _, name := range names {
		require.True(t, e.Registry.LoadModule(context.Background(), name), "load %s: %v", name, e.Registry.FailureReason(name))
	}
	t.Cleanup(func() { _ = e.Registry.UnloadAll(context.Background()) })
}

// Router mounts every loaded module on a fresh engine.
func (e *Env) Router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	web.MountModules(r, e.Registry, e.Logger)
	return r
}

// Do serves one request; body, when set, is sent as JSON.
func Do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Capture records every emission of name.
func (e *Env) Capture(name string) *Recorder {
	r := &Recorder{}
	e.Bus.Subscribe(name, func(_ context.Context, ev events.Event) error {
		r.add(ev)
		return nil
	})
	return r
}
