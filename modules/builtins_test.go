package modules_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/events"
	"github.com/skekre98/contentagent/metrics"
	"github.com/skekre98/contentagent/modules"
	"github.com/skekre98/contentagent/modules/moduletest"
	"github.com/skekre98/contentagent/modules/scheduling"
	"github.com/skekre98/contentagent/modules/wordpress"
	"github.com/skekre98/contentagent/web"
)

// newApp discovers the shipped manifests and loads every builtin module.
func newApp(t *testing.T, disabled ...string) (*core.App, *events.Bus) {
	t.Helper()
	_, cfg, err := config.Load(config.Options{})
	require.NoError(t, err)
	cfg.Scraping.Delay = 0

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus(events.WithLogger(logger))
	app := core.NewApp(logger, "../configs/modules",
		core.WithFactories(modules.Builtins()),
		core.WithDisabled(disabled...),
	)
	app.Container.Register(core.ConfigService, cfg)
	app.Container.Register(core.EventBusService, bus)
	app.Container.Register(core.MetricsService, metrics.NewNoOpRegistry())

	require.NoError(t, app.Load(context.Background()))
	t.Cleanup(func() { _ = app.Registry.UnloadAll(context.Background()) })
	return app, bus
}

func TestBuiltins_HaveManifests(t *testing.T) {
	reg := core.NewRegistry(core.NewContainer())
	found, err := reg.Discover("../configs/modules")
	require.NoError(t, err)
	for name := range modules.Builtins() {
		d, ok := found[name]
		require.True(t, ok, name)
		assert.NotEmpty(t, d.Version, name)
	}
	assert.Equal(t, []string{"content_generation"}, found[wordpress.Name].Dependencies)
}

func TestBuiltins_LoadAll(t *testing.T) {
	app, _ := newApp(t)
	for name := range modules.Builtins() {
		assert.True(t, app.Results[name], "%s: %v", name, app.Registry.FailureReason(name))
	}
	order := app.Registry.LoadOrder()
	require.Len(t, order, len(modules.Builtins()))
	assert.Less(t, indexOf(order, "content_generation"), indexOf(order, wordpress.Name))
}

func TestBuiltins_WordPressNeedsContentGeneration(t *testing.T) {
	app, _ := newApp(t, "content_generation")
	_, loaded := app.Registry.GetModule(wordpress.Name)
	assert.False(t, loaded)
	assert.NotContains(t, app.Results, "content_generation")
	assert.True(t, app.Results[scheduling.Name])
}

func TestBuiltins_GenerateScheduleAndPublish(t *testing.T) {
	app, bus := newApp(t)
	h := web.New(config.ServerConfig{Addr: "127.0.0.1:0"}, config.AppInfo{Name: "content-agent", Version: "test"}, app.Logger).Handler(app)

	published := &recorder{}
	bus.Subscribe(wordpress.Name+"."+wordpress.EventPostPublished, published.record)

	rec := moduletest.Do(h, http.MethodPost, "/api/content/generate",
		`{"primary_keyword":"email marketing","auto_schedule":true,"target_platforms":["wordpress"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = moduletest.Do(h, http.MethodGet, "/api/scheduling/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Schedules []scheduling.Schedule `json:"schedules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Schedules, 1)
	sc := list.Schedules[0]
	assert.True(t, sc.AutoScheduled)
	assert.Equal(t, scheduling.StatusPending, sc.Status)

	rec = moduletest.Do(h, http.MethodPost, "/api/scheduling/publish/"+sc.ID, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var got scheduling.Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, scheduling.StatusPublished, got.Status)
	assert.Equal(t, "dry-run://posts/1", got.Result["link"])
	assert.Equal(t, 1, published.len())

	rec = moduletest.Do(h, http.MethodGet, "/api/wordpress/posts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"schedule_id":"`+sc.ID+`"`)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

type recorder struct {
	events []events.Event
}

// Bus.Emit waits for handlers, so reads after a request need no locking.
func (r *recorder) record(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) len() int { return len(r.events) }
