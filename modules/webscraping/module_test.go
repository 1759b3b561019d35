package webscraping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/modules/moduletest"
)

func competitorSite(t *testing.T) *httptest.Server {
	t.Helper()
	page := func(title, meta string, words int, headings ...string) string {
		var b strings.Builder
		fmt.Fprintf(&b, "<title>%s</title>", title)
		if meta != "" {
			fmt.Fprintf(&b, `<meta name="description" content="%s">`, meta)
		}
		for _, h := range headings {
			fmt.Fprintf(&b, "<h2>%s</h2>", h)
		}
		b.WriteString("<p>" + strings.Repeat("email marketing ", words/2) + "</p>")
		return b.String()
	}
	pages := map[string]string{
		"/a": page("Email Marketing Basics", "", 400, "Why Email", "Tools"),
		"/b": page("Newsletters 101", "All about newsletters", 800, "Tools", "why email", "Metrics"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompetitorAnalysis(t *testing.T) {
	srv := competitorSite(t)
	scraper := newScraper(t, nil)
	s := NewCompetitorService(scraper, scraper.logger)

	a, err := s.Analyze(context.Background(), "Email Marketing", []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/gone"})
	require.NoError(t, err)
	assert.Equal(t, 2, a.Analyzed)
	assert.Equal(t, 1, a.Failed)
	assert.Equal(t, 1, a.KeywordInTitle)
	assert.Equal(t, 1, a.MissingMeta)
	assert.Equal(t, []string{"tools", "why email"}, a.CommonHeadings)
	assert.Equal(t, 2.5, a.AverageHeadings)
	assert.Equal(t, 300.0, a.KeywordMentions)
	// (400 + 800 + headings) / 2 words, scaled by 1.2 and rounded up to 100
	assert.Equal(t, 800, a.RecommendedLength)
	assert.Contains(t, a.Opportunities[0], `Only 1 of 2 competitors use "Email Marketing"`)
	require.Len(t, s.Recent(), 1)

	_, err = s.Analyze(context.Background(), "email marketing", []string{srv.URL + "/gone"})
	assert.ErrorIs(t, err, ErrNoPages)
	_, err = s.Analyze(context.Background(), " ", []string{srv.URL + "/a"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Len(t, s.Recent(), 1)
}

func load(t *testing.T) (*moduletest.Env, *Module) {
	t.Helper()
	env := moduletest.New(t, func(c *config.Root) { c.Scraping.Delay = 0 })
	env.Load(t, map[string]core.Factory{Name: New}, Name)
	m, ok := env.Registry.GetModule(Name)
	require.True(t, ok)
	return env, m.(*Module)
}

func TestModule_RegistersServices(t *testing.T) {
	env, m := load(t)
	for _, name := range []string{ScrapingServiceName, CompetitorServiceName} {
		assert.True(t, env.Container.Has(name), name)
	}
	hs := m.HealthCheck(context.Background())
	assert.Equal(t, core.StatusHealthy, hs.Status)
	assert.Equal(t, "ContentAgent/1.0", hs.Details["user_agent"])
	assert.Equal(t, 10, hs.Details["max_concurrent"])
}

func TestModule_HealthDegradesOnFailures(t *testing.T) {
	srv := competitorSite(t)
	_, m := load(t)
	for range minSample {
		_, _ = m.scraper.Scrape(context.Background(), srv.URL+"/gone")
	}
	assert.Equal(t, core.StatusDegraded, m.HealthCheck(context.Background()).Status)
}

func TestRoutes(t *testing.T) {
	srv := competitorSite(t)
	env, _ := load(t)
	r := env.Router()
	scraped := env.Capture(Name + "." + EventPageScraped)
	analyzed := env.Capture(Name + "." + EventCompetitorAnalysisCompleted)

	rec := moduletest.Do(r, http.MethodPost, "/api/scraping/scrape", `{"url":"`+srv.URL+`/a"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Email Marketing Basics", p.Title)
	require.Equal(t, 1, scraped.Len())
	assert.Equal(t, StatusSuccess, scraped.Last().String("status"))

	assert.Equal(t, http.StatusBadRequest, moduletest.Do(r, http.MethodPost, "/api/scraping/scrape", `{"url":"ftp://x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, moduletest.Do(r, http.MethodPost, "/api/scraping/scrape", `{}`).Code)
	assert.Equal(t, http.StatusBadGateway, moduletest.Do(r, http.MethodPost, "/api/scraping/scrape", `{"url":"`+srv.URL+`/gone"}`).Code)
	assert.Equal(t, 2, scraped.Len())

	rec = moduletest.Do(r, http.MethodPost, "/api/scraping/scrape-batch", `{"urls":["`+srv.URL+`/a","`+srv.URL+`/gone"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var batch struct {
		Count  int `json:"count"`
		Failed int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, 2, batch.Count)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, http.StatusBadRequest, moduletest.Do(r, http.MethodPost, "/api/scraping/scrape-batch", `{"urls":[]}`).Code)

	rec = moduletest.Do(r, http.MethodPost, "/api/scraping/competitor-analysis", `{"keyword":"email marketing","urls":["`+srv.URL+`/a","`+srv.URL+`/b"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, analyzed.Len())
	assert.Equal(t, 2, analyzed.Last().Int("analyzed"))
	assert.Equal(t, http.StatusBadGateway, moduletest.Do(r, http.MethodPost, "/api/scraping/competitor-analysis", `{"keyword":"x","urls":["`+srv.URL+`/gone"]}`).Code)

	rec = moduletest.Do(r, http.MethodGet, "/api/scraping/history?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Equal(t, 3, hist.Count)
	assert.Equal(t, http.StatusBadRequest, moduletest.Do(r, http.MethodGet, "/api/scraping/history?limit=x", "").Code)
	assert.Equal(t, http.StatusOK, moduletest.Do(r, http.MethodGet, "/api/scraping/stats", "").Code)
}

func TestUIComponents(t *testing.T) {
	_, m := load(t)
	ui := m.UIComponents()
	for _, name := range []string{"scraping_dashboard", "url_scraper", "competitor_analysis"} {
		require.Contains(t, ui, name)
		v, err := ui[name](context.Background())
		require.NoError(t, err)
		assert.NotNil(t, v)
	}
}
