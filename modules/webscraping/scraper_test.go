package webscraping

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/metrics"
)

const article = `<!doctype html>
<html><head>
<title>Content Marketing Guide for Small Teams</title>
<meta name="description" content="short">
<meta name="keywords" content="content, marketing , ">
<meta property="og:title" content="Guide">
<link rel="canonical" href="/guide">
<script type="application/ld+json">{"@type":"Article"}</script>
<script>var ignored = "not counted";</script>
<style>body { color: red }</style>
</head><body>
<h1>Content Marketing</h1>
<p>Content marketing builds trust over time.</p>
<h2>Why it works</h2>
<p>Readers return to <a href="/blog">useful</a> pages and <a href="https://other.example/x">cite</a> them.</p>
<h2>  Getting   started </h2>
<img src="a.png"><a href="#top">top</a><a href="mailto:me@example.com">mail</a>
</body></html>`

func TestParsePage(t *testing.T) {
	base, _ := url.Parse("https://site.example/post")
	p, err := parsePage(base, strings.NewReader(article))
	require.NoError(t, err)

	assert.Equal(t, "Content Marketing Guide for Small Teams", p.Title)
	assert.Equal(t, "short", p.MetaDescription)
	assert.Equal(t, []string{"content", "marketing"}, p.MetaKeywords)
	assert.Equal(t, "Guide", p.OpenGraph["title"])
	assert.Equal(t, "https://site.example/guide", p.Canonical)
	assert.Equal(t, []Heading{
		{Level: 1, Text: "Content Marketing"},
		{Level: 2, Text: "Why it works"},
		{Level: 2, Text: "Getting started"},
	}, p.Headings)
	assert.Equal(t, 2, p.Paragraphs)
	assert.Equal(t, 1, p.Images)
	assert.Equal(t, 1, p.InternalLinks)
	assert.Equal(t, 1, p.ExternalLinks)
	assert.Equal(t, 2, p.Mentions("CONTENT MARKETING"))
	assert.Zero(t, p.Mentions("ignored"))
	assert.Equal(t, 1, p.ReadingTime)

	assert.True(t, p.SEO.TitleFriendly)
	assert.False(t, p.SEO.MetaFriendly)
	assert.True(t, p.SEO.HasStructuredData)
	assert.Equal(t, 1, p.SEO.H1Count)
	// title 25, short meta 10, one h1 20, canonical 10, structured data 10
	assert.Equal(t, 75, p.SEO.Score)
}

func newScraper(t *testing.T, mutate func(*config.ScrapingConfig)) *ScrapingService {
	t.Helper()
	cfg := config.ScrapingConfig{UserAgent: "ContentAgent/1.0", Timeout: 5 * time.Second, MaxConcurrent: 2}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewScrapingService(cfg, metrics.NewNoOpRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func site(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "ContentAgent/1.0" {
			http.Error(w, "agent", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, article)
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>https://site.example/a</loc></url>
<url><loc> https://site.example/b </loc></url>
<url><loc>https://site.example/c</loc></url>
</urlset>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateURL(t *testing.T) {
	s := newScraper(t, nil)
	for _, raw := range []string{"", "not a url", "ftp://site.example/x", "/relative"} {
		_, err := s.ValidateURL(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
	u, err := s.ValidateURL(" https://site.example/x ")
	require.NoError(t, err)
	assert.Equal(t, "site.example", u.Host)
}

func TestScrape(t *testing.T) {
	srv := site(t)
	s := newScraper(t, nil)
	ctx := context.Background()

	p, err := s.Scrape(ctx, srv.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, p.Status)
	assert.Equal(t, http.StatusOK, p.StatusCode)
	assert.Equal(t, 1, p.InternalLinks)

	p, err = s.Scrape(ctx, srv.URL+"/missing")
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, http.StatusNotFound, p.StatusCode)

	_, err = s.Scrape(ctx, srv.URL+"/json")
	assert.ErrorIs(t, err, ErrFetch)

	_, err = s.Scrape(ctx, "mailto:x@example.com")
	assert.ErrorIs(t, err, ErrInvalidURL)

	st := s.Stats()
	assert.Equal(t, Stats{Total: 3, Succeeded: 1, Failed: 2, SuccessRate: 33.3}, st)
	h := s.History(2)
	require.Len(t, h, 2)
	assert.Equal(t, srv.URL+"/json", h[0].URL)
}

func TestScrapeMany_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<title>%s</title><p>hello</p>", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	s := newScraper(t, nil)

	urls := []string{srv.URL + "/0", srv.URL + "/1", "bogus", srv.URL + "/3", srv.URL + "/4"}
	pages, err := s.ScrapeMany(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, pages, 5)
	assert.Equal(t, "/0", pages[0].Title)
	assert.Equal(t, "/4", pages[4].Title)
	assert.Equal(t, StatusFailed, pages[2].Status)
	assert.Equal(t, "bogus", pages[2].URL)
	assert.LessOrEqual(t, peak.Load(), int32(2))

	_, err = s.ScrapeMany(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = s.ScrapeMany(context.Background(), make([]string, maxBatch+1))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestScrape_DelaySpacesSameHost(t *testing.T) {
	srv := site(t)
	s := newScraper(t, func(c *config.ScrapingConfig) { c.Delay = 50 * time.Millisecond })

	start := time.Now()
	for range 3 {
		_, err := s.Scrape(context.Background(), srv.URL+"/article")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scrape(ctx, srv.URL+"/article")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSitemap(t *testing.T) {
	srv := site(t)
	s := newScraper(t, nil)

	urls, err := s.Sitemap(context.Background(), srv.URL+"/sitemap.xml", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.example/a", "https://site.example/b"}, urls)

	_, err = s.Sitemap(context.Background(), srv.URL+"/nope.xml", 0)
	assert.ErrorIs(t, err, ErrFetch)
}
