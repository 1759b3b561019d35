package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/metrics"
	"github.com/skekre98/contentagent/web"
)

type stubModule struct {
	*core.Base
	health  string
	initErr error
}

func (m *stubModule) Initialize(context.Context) error { return m.initErr }
func (m *stubModule) RegisterRoutes(core.Router)       {}

func (m *stubModule) UIComponents() map[string]core.UIComponent {
	return map[string]core.UIComponent{
		"dashboard": func(context.Context) (any, error) {
			return map[string]any{"title": m.Info().Name}, nil
		},
		"broken": func(context.Context) (any, error) { return nil, errors.New("render failed") },
	}
}

func (m *stubModule) HealthCheck(ctx context.Context) core.HealthStatus {
	hs := m.Base.HealthCheck(ctx)
	if m.health != "" {
		hs.Status = m.health
	}
	return hs
}

type stub struct {
	version string
	deps    []string
	health  string
	initErr error
}

func newApp(t *testing.T, stubs map[string]stub) *core.App {
	t.Helper()
	root := t.TempDir()
	factories := map[string]core.Factory{}
	for name, s := range stubs {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		body := fmt.Sprintf("name: %s\nversion: %s\ndescription: %s module\n", name, s.version, name)
		for i, d := range s.deps {
			if i == 0 {
				body += "dependencies:\n"
			}
			body += "  - " + d + "\n"
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, core.ManifestFile), []byte(body), 0o644))

		name, s := name, s
		factories[name] = func(c *core.Container) core.Module {
			return &stubModule{
				Base:    core.NewBase(c, core.Descriptor{Name: name, Version: s.version, Description: name + " module", Dependencies: s.deps}),
				health:  s.health,
				initErr: s.initErr,
			}
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := core.NewApp(logger, root, core.WithFactories(factories))
	require.NoError(t, app.Load(context.Background()))
	return app
}

func handler(t *testing.T, app *core.App, reg metrics.Registry) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	info := config.AppInfo{Name: "Content Agent", Version: "1.0.0"}
	return web.New(config.ServerConfig{}, info, logger,
		web.WithRoutes(Routes(config.ActuatorConfig{BasePath: "/actuator"}, info, reg)),
	).Handler(app)
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

type healthBody struct {
	Status  string                       `json:"status"`
	Modules map[string]core.HealthStatus `json:"modules"`
	Failed  map[string]string            `json:"failed"`
}

func TestHealth_AllHealthy(t *testing.T) {
	app := newApp(t, map[string]stub{
		"content_generation": {version: "1.0.0"},
		"keyword_research":   {version: "1.0.0"},
	})
	var body healthBody
	require.Equal(t, http.StatusOK, get(t, handler(t, app, nil), "/actuator/health", &body))
	assert.Equal(t, core.StatusHealthy, body.Status)
	assert.Len(t, body.Modules, 2)
	assert.Empty(t, body.Failed)
}

func TestHealth_DegradedWhenAnyModuleIsNot(t *testing.T) {
	app := newApp(t, map[string]stub{
		"content_generation":    {version: "1.0.0"},
		"wordpress_integration": {version: "1.0.0", deps: []string{"content_generation"}, health: core.StatusDegraded},
		"web_scraping":          {version: "1.0.0", initErr: errors.New("no browser")},
	})
	var body healthBody
	require.Equal(t, http.StatusOK, get(t, handler(t, app, nil), "/actuator/health", &body))
	assert.Equal(t, core.StatusDegraded, body.Status)
	assert.Equal(t, core.StatusDegraded, body.Modules["wordpress_integration"].Status)
	assert.NotContains(t, body.Modules, "web_scraping")
	assert.Contains(t, body.Failed["web_scraping"], "no browser")
}

func TestModulesListing(t *testing.T) {
	app := newApp(t, map[string]stub{
		"content_generation": {version: "1.2.0"},
		"web_scraping":       {version: "0.9.0", initErr: errors.New("no browser")},
	})
	var body struct {
		Modules []ModuleView `json:"modules"`
	}
	require.Equal(t, http.StatusOK, get(t, handler(t, app, nil), "/actuator/modules", &body))
	require.Len(t, body.Modules, 2)

	cg := body.Modules[0]
	assert.Equal(t, "content_generation", cg.Name)
	assert.Equal(t, "1.2.0", cg.Version)
	assert.Equal(t, "content_generation module", cg.Description)
	assert.True(t, cg.Initialized)
	assert.Equal(t, string(core.StateLoaded), cg.State)
	assert.Empty(t, cg.Error)

	ws := body.Modules[1]
	assert.Equal(t, "web_scraping", ws.Name)
	assert.False(t, ws.Initialized)
	assert.Equal(t, string(core.StateFailed), ws.State)
	assert.Contains(t, ws.Error, "no browser")
}

func TestServicesListing(t *testing.T) {
	app := newApp(t, map[string]stub{"scheduling": {version: "1.0.0"}})
	var body struct {
		Services map[string]string `json:"services"`
	}
	require.Equal(t, http.StatusOK, get(t, handler(t, app, nil), "/actuator/services", &body))
	assert.Equal(t, core.KindInstance, body.Services["scheduling_module"])
	assert.Equal(t, core.KindInstance, body.Services[core.RegistryService])
	assert.Equal(t, core.KindInstance, body.Services[core.LoggerService])
}

func TestUIEndpoints(t *testing.T) {
	app := newApp(t, map[string]stub{"scheduling": {version: "1.0.0"}})
	h := handler(t, app, nil)

	var listing struct {
		Components map[string][]string `json:"components"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/actuator/ui", &listing))
	assert.Equal(t, []string{"broken", "dashboard"}, listing.Components["scheduling"])

	var view map[string]any
	require.Equal(t, http.StatusOK, get(t, h, "/actuator/ui/scheduling/dashboard", &view))
	assert.Equal(t, "scheduling", view["title"])

	assert.Equal(t, http.StatusNotFound, get(t, h, "/actuator/ui/scheduling/missing", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/actuator/ui/nope/dashboard", nil))
	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/actuator/ui/scheduling/broken", nil))
}

func TestInfoAndMetrics(t *testing.T) {
	app := newApp(t, map[string]stub{"scheduling": {version: "1.0.0"}})

	var info struct {
		App     map[string]string `json:"app"`
		Modules map[string]int    `json:"modules"`
	}
	require.Equal(t, http.StatusOK, get(t, handler(t, app, nil), "/actuator/info", &info))
	assert.Equal(t, "Content Agent", info.App["name"])
	assert.Equal(t, 1, info.Modules["loaded"])

	assert.Equal(t, http.StatusNotFound, get(t, handler(t, app, nil), "/actuator/metrics", nil))
	assert.Equal(t, http.StatusNotFound, get(t, handler(t, app, metrics.NewNoOpRegistry()), "/actuator/metrics", nil))

	reg, err := metrics.NewPrometheusRegistry(config.MetricsConfig{Namespace: "actuator_test"})
	require.NoError(t, err)
	reg.ObserveModuleLoad("scheduling", true, 0)
	rec := httptest.NewRecorder()
	handler(t, app, reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/actuator/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "actuator_test_module_loads_total")
}
