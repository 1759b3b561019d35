package webscraping

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/metrics"
)

var (
	ErrInvalidURL     = errors.New("invalid url")
	ErrInvalidRequest = errors.New("invalid scraping request")
	ErrFetch          = errors.New("fetch failed")
)

const (
	maxBatch     = 20
	maxBodyBytes = 5 << 20
	maxHistory   = 200
)

// ScrapingService fetches pages over HTTP and parses them. Requests to the
// same host are spaced by the configured delay.
type ScrapingService struct {
	client   *http.Client
	cfg      config.ScrapingConfig
	metrics  metrics.Registry
	validate *validator.Validate
	logger   *slog.Logger

	mu        sync.Mutex
	nextHit   map[string]time.Time
	history   []Page
	succeeded int
	failed    int
}

func NewScrapingService(cfg config.ScrapingConfig, reg metrics.Registry, logger *slog.Logger) *ScrapingService {
	return &ScrapingService{
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		metrics:  reg,
		validate: validator.New(),
		logger:   logger.With("service", ScrapingServiceName),
		nextHit:  make(map[string]time.Time),
	}
}

// ValidateURL accepts absolute http and https URLs with a host.
func (s *ScrapingService) ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if err := s.validate.Var(raw, "required,url"); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q is not http or https", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	return u, nil
}

// Scrape fetches and parses one page. Fetch and parse failures are recorded
// as failed pages and returned alongside the error.
func (s *ScrapingService) Scrape(ctx context.Context, raw string) (Page, error) {
	u, err := s.ValidateURL(raw)
	if err != nil {
		return Page{}, err
	}
	if err := s.wait(ctx, u.Host); err != nil {
		return Page{}, err
	}

	start := time.Now()
	p, err := s.fetch(ctx, u)
	p.URL = u.String()
	p.ScrapedAt = start.UTC()
	p.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		p.Status, p.Error = StatusFailed, err.Error()
		s.logger.Warn("scrape failed", "url", p.URL, "error", err)
	} else {
		p.Status = StatusSuccess
		s.logger.Info("page scraped", "url", p.URL, "words", p.WordCount, "duration_ms", p.DurationMS)
	}
	s.record(p)
	return p, err
}

func (s *ScrapingService) fetch(ctx context.Context, u *url.URL) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return Page{StatusCode: resp.StatusCode}, fmt.Errorf("%w: %s returned %d", ErrFetch, u, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		if mt != "text/html" && mt != "application/xhtml+xml" {
			return Page{StatusCode: resp.StatusCode}, fmt.Errorf("%w: %s is %s, not html", ErrFetch, u, mt)
		}
	}
	p, err := parsePage(resp.Request.URL, io.LimitReader(resp.Body, maxBodyBytes))
	p.StatusCode = resp.StatusCode
	return p, err
}

func (s *ScrapingService) wait(ctx context.Context, host string) error {
	if s.cfg.Delay <= 0 {
		return ctx.Err()
	}
	s.mu.Lock()
	now := time.Now()
	at := s.nextHit[host]
	if at.Before(now) {
		at = now
	}
	s.nextHit[host] = at.Add(s.cfg.Delay)
	s.mu.Unlock()

	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *ScrapingService) record(p Page) {
	s.mu.Lock()
	s.history = append(s.history, p)
	if over := len(s.history) - maxHistory; over > 0 {
		s.history = append([]Page(nil), s.history[over:]...)
	}
	if p.Status == StatusSuccess {
		s.succeeded++
	} else {
		s.failed++
	}
	s.mu.Unlock()
	s.metrics.IncScrapes(p.Status)
}

// ScrapeMany scrapes urls with at most MaxConcurrent requests in flight.
// Pages come back in input order; failures are failed pages, not errors.
func (s *ScrapingService) ScrapeMany(ctx context.Context, urls []string) ([]Page, error) {
	if len(urls) == 0 || len(urls) > maxBatch {
		return nil, fmt.Errorf("%w: between 1 and %d urls required", ErrInvalidRequest, maxBatch)
	}
	pages := make([]Page, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.cfg.MaxConcurrent))
	for i, raw := range urls {
		g.Go(func() error {
			p, err := s.Scrape(gctx, raw)
			if err != nil && p.URL == "" {
				p = Page{URL: raw, Status: StatusFailed, Error: err.Error(), ScrapedAt: time.Now().UTC()}
			}
			pages[i] = p
			return nil
		})
	}
	_ = g.Wait()
	return pages, ctx.Err()
}

type sitemapDoc struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Sitemap lists up to limit page URLs from a sitemap or sitemap index.
// Index entries are returned as-is, not followed.
func (s *ScrapingService) Sitemap(ctx context.Context, raw string, limit int) ([]string, error) {
	u, err := s.ValidateURL(raw)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if err := s.wait(ctx, u.Host); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s returned %d", ErrFetch, u, resp.StatusCode)
	}
	var doc sitemapDoc
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: sitemap %s: %v", ErrFetch, u, err)
	}
	out := []string{}
	for _, e := range append(doc.URLs, doc.Sitemaps...) {
		if loc := strings.TrimSpace(e.Loc); loc != "" && len(out) < limit {
			out = append(out, loc)
		}
	}
	return out, nil
}

// History returns recent pages, newest first. limit <= 0 returns all.
func (s *ScrapingService) History(limit int) []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Page, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.history[i])
	}
	return out
}

type Stats struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

func (s *ScrapingService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Total: s.succeeded + s.failed, Succeeded: s.succeeded, Failed: s.failed}
	if st.Total > 0 {
		st.SuccessRate = math.Round(float64(s.succeeded)/float64(st.Total)*1000) / 10
	}
	return st
}
