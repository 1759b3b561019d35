package web

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

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/metrics"
)

type routeModule struct {
	*core.Base
	path        string
	panicRoutes bool
}

func (m *routeModule) Initialize(context.Context) error { return nil }

func (m *routeModule) RegisterRoutes(r core.Router) {
	if m.panicRoutes {
		r.GET(m.path+"/early", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		panic("route table exploded")
	}
	r.GET(m.path, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"module": m.Info().Name})
	})
	r.GET(m.path+"/boom", func(*gin.Context) { panic("handler exploded") })
	r.GET(m.path+"/missing", func(c *gin.Context) {
		Error(c, http.StatusNotFound, errors.New("no such item"))
	})
}

func (m *routeModule) UIComponents() map[string]core.UIComponent { return nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestApp(t *testing.T) *core.App {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"alpha", "broken"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		body := fmt.Sprintf("name: %s\nversion: 1.0.0\n", name)
		require.NoError(t, os.WriteFile(filepath.Join(dir, core.ManifestFile), []byte(body), 0o644))
	}
	factories := map[string]core.Factory{
		"alpha": func(c *core.Container) core.Module {
			return &routeModule{Base: core.NewBase(c, core.Descriptor{Name: "alpha", Version: "1.0.0"}), path: "/api/alpha"}
		},
		"broken": func(c *core.Container) core.Module {
			return &routeModule{Base: core.NewBase(c, core.Descriptor{Name: "broken", Version: "1.0.0"}), path: "/api/broken", panicRoutes: true}
		},
	}
	app := core.NewApp(discard(), root, core.WithFactories(factories))
	require.NoError(t, app.Load(context.Background()))
	return app
}

func do(h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_MountsModuleRoutes(t *testing.T) {
	app := newTestApp(t)
	h := New(config.ServerConfig{Addr: ":0"}, config.AppInfo{Name: "Content Agent", Version: "1.0.0"}, discard()).Handler(app)

	rec := do(h, http.MethodGet, "/api/alpha", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"module":"alpha"}`, rec.Body.String())

	// Routes added before a registration panic remain; the rest are skipped.
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodGet, "/api/broken/early", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/broken", nil).Code)
}

func TestServer_Banner(t *testing.T) {
	app := newTestApp(t)
	h := New(config.ServerConfig{}, config.AppInfo{Name: "Content Agent", Version: "2.1.0"}, discard()).Handler(app)

	rec := do(h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Message string   `json:"message"`
		Version string   `json:"version"`
		Modules []string `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Content Agent API", body.Message)
	assert.Equal(t, "2.1.0", body.Version)
	assert.Equal(t, []string{"alpha", "broken"}, body.Modules)
}

func TestServer_Middleware(t *testing.T) {
	app := newTestApp(t)
	reg, err := metrics.NewPrometheusRegistry(config.MetricsConfig{Namespace: "web_test"})
	require.NoError(t, err)

	hostCalled := false
	h := New(config.ServerConfig{}, config.AppInfo{}, discard(),
		WithMetrics(reg),
		WithRoutes(func(r Router, a *core.App) {
			hostCalled = a == app
			r.GET("/host", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })
		}),
	).Handler(app)
	assert.True(t, hostCalled)

	rec := do(h, http.MethodGet, "/host", http.Header{RequestIDHeader: {"req-42"}})
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", rec.Body.String())

	rec = do(h, http.MethodGet, "/host", nil)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = do(h, http.MethodGet, "/api/alpha/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "unexpected server error")

	rec = do(h, http.MethodGet, "/api/alpha/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"no such item"}`, rec.Body.String())
}

func TestServer_StartStop(t *testing.T) {
	app := newTestApp(t)
	s := New(config.ServerConfig{Addr: "127.0.0.1:0"}, config.AppInfo{Name: "x"}, discard())
	assert.NoError(t, s.Stop(context.Background()), "stop before start is a no-op")

	require.NoError(t, s.Start(context.Background(), app))
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/api/alpha")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
}

func TestServer_StartBadAddr(t *testing.T) {
	app := newTestApp(t)
	err := New(config.ServerConfig{Addr: "256.0.0.1:bad"}, config.AppInfo{}, discard()).Start(context.Background(), app)
	assert.Error(t, err)
}
