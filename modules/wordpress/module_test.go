package wordpress

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/modules/contentgeneration"
	"github.com/skekre98/contentagent/modules/moduletest"
)

func load(t *testing.T, mutate ...func(*config.Root)) (*moduletest.Env, *Module, *contentgeneration.Content) {
	t.Helper()
	env := moduletest.New(t, mutate...)
	env.Load(t, map[string]core.Factory{contentgeneration.Name: contentgeneration.New, Name: New}, contentgeneration.Name, Name)
	m, ok := env.Registry.GetModule(Name)
	require.True(t, ok)

	svc, err := core.Resolve[*contentgeneration.ContentService](env.Container, contentgeneration.ContentServiceName)
	require.NoError(t, err)
	c, err := svc.Generate(context.Background(), contentgeneration.Request{PrimaryKeyword: "email marketing"})
	require.NoError(t, err)
	return env, m.(*Module), c
}

func withSite(url, password string) func(*config.Root) {
	return func(c *config.Root) {
		c.WordPress.URL = url
		c.WordPress.Username = "editor"
		c.WordPress.AppPassword = password
	}
}

func dueEvent(scheduleID, contentID, platform string) map[string]any {
	return map[string]any{"schedule_id": scheduleID, "content_id": contentID, "platform": platform}
}

func TestModule_InitializeNeedsContentGeneration(t *testing.T) {
	env := moduletest.New(t)
	m := New(env.Container)
	assert.ErrorIs(t, m.Initialize(context.Background()), core.ErrServiceNotFound)
}

func TestModule_DryRun(t *testing.T) {
	env, m, c := load(t)
	for _, name := range []string{FormatterServiceName, PublisherServiceName} {
		assert.True(t, env.Container.Has(name), name)
	}
	assert.True(t, m.publisher.DryRun())

	published := env.Capture(Name + "." + EventPostPublished)
	require.NoError(t, env.Bus.Emit(context.Background(), publishDue, dueEvent("s1", c.ID, "wordpress"), "scheduling"))
	require.Equal(t, 1, published.Len())
	e := published.Last()
	assert.Equal(t, "s1", e.String("schedule_id"))
	assert.Equal(t, "1", e.String("post_id"))
	assert.Equal(t, "dry-run://posts/1", e.String("link"))
	assert.True(t, e.Bool("dry_run"))

	hs := m.HealthCheck(context.Background())
	assert.Equal(t, core.StatusDegraded, hs.Status)
	assert.Equal(t, true, hs.Details["use_blocks"])
	assert.Equal(t, 1, hs.Details["publishes"].(map[string]int)[OutcomeDryRun])

	rp, err := m.publisher.Post(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, c.Title, rp.Title.Rendered)
}

func TestModule_IgnoresOtherPlatforms(t *testing.T) {
	env, m, c := load(t)
	published := env.Capture(Name + "." + EventPostPublished)
	require.NoError(t, env.Bus.Emit(context.Background(), publishDue, dueEvent("s1", c.ID, "linkedin"), "scheduling"))
	assert.Zero(t, published.Len())
	assert.Empty(t, m.publisher.Records(0))
}

func TestModule_PublishesToSite(t *testing.T) {
	site := &fakeSite{}
	srv := site.serve(t)
	env, m, c := load(t, withSite(srv.URL, "secret"))
	published := env.Capture(Name + "." + EventPostPublished)

	require.NoError(t, env.Bus.Emit(context.Background(), publishDue, dueEvent("s1", c.ID, "wordpress"), "scheduling"))
	require.Equal(t, 1, published.Len())
	assert.Equal(t, "https://blog.test/?p=1", published.Last().String("link"))
	require.Len(t, site.posts, 1)
	assert.Equal(t, c.Title, site.posts[0].Title)
	assert.Contains(t, site.posts[0].Content, "<!-- wp:")
	assert.Equal(t, core.StatusHealthy, m.HealthCheck(context.Background()).Status)

	status := m.publisher.TestConnection(context.Background())
	assert.Equal(t, true, status["connected"])
}

func TestModule_PublishFailure(t *testing.T) {
	srv := (&fakeSite{}).serve(t)
	env, m, c := load(t, withSite(srv.URL, "wrong"))
	failed := env.Capture(Name + "." + EventPublishFailed)

	require.NoError(t, env.Bus.Emit(context.Background(), publishDue, dueEvent("s1", c.ID, "wordpress"), "scheduling"))
	require.Equal(t, 1, failed.Len())
	assert.Equal(t, "s1", failed.Last().String("schedule_id"))
	assert.Contains(t, failed.Last().String("error"), "401")
	assert.Equal(t, 1, m.publisher.Counts()[OutcomeFailed])

	rec := moduletest.Do(env.Router(), http.MethodPost, "/api/wordpress/publish", `{"content_id":"`+c.ID+`"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 2, failed.Len())
}

func TestRoutes(t *testing.T) {
	env, _, c := load(t)
	r := env.Router()
	published := env.Capture(Name + "." + EventPostPublished)

	rec := moduletest.Do(r, http.MethodPost, "/api/wordpress/preview", `{"content_id":"`+c.ID+`","status":"draft"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, PostDraft, p.Status)
	assert.Equal(t, Slugify(c.Title), p.Slug)
	assert.Zero(t, published.Len())

	rec = moduletest.Do(r, http.MethodPost, "/api/wordpress/publish", `{"content_id":"`+c.ID+`","categories":[4]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, OutcomeDryRun, got.Outcome)
	assert.Equal(t, 1, got.PostID)
	assert.Equal(t, 1, published.Len())

	for _, tc := range []struct {
		body string
		want int
	}{
		{`{}`, http.StatusBadRequest},
		{`{"content_id":"missing"}`, http.StatusNotFound},
		{`{"content_id":"` + c.ID + `","status":"bogus"}`, http.StatusBadRequest},
	} {
		assert.Equal(t, tc.want, moduletest.Do(r, http.MethodPost, "/api/wordpress/publish", tc.body).Code, tc.body)
	}

	rec = moduletest.Do(r, http.MethodGet, "/api/wordpress/posts?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count  int  `json:"count"`
		DryRun bool `json:"dry_run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.True(t, list.DryRun)
	assert.Equal(t, http.StatusBadRequest, moduletest.Do(r, http.MethodGet, "/api/wordpress/posts?limit=0", "").Code)

	assert.Equal(t, http.StatusOK, moduletest.Do(r, http.MethodGet, "/api/wordpress/posts/1", "").Code)
	assert.Equal(t, http.StatusNotFound, moduletest.Do(r, http.MethodGet, "/api/wordpress/posts/9", "").Code)
	assert.Equal(t, http.StatusBadRequest, moduletest.Do(r, http.MethodGet, "/api/wordpress/posts/x", "").Code)

	rec = moduletest.Do(r, http.MethodGet, "/api/wordpress/connection-test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"configured":false`)
}

func TestUIComponents(t *testing.T) {
	_, m, _ := load(t)
	ui := m.UIComponents()
	for _, name := range []string{"wordpress_dashboard", "publish_form", "post_history", "connection_status"} {
		require.Contains(t, ui, name)
		v, err := ui[name](context.Background())
		require.NoError(t, err)
		assert.NotNil(t, v)
	}
}
