// Package webscraping fetches pages, audits their on-page SEO and compares
// competitor pages for a keyword.
package webscraping

import (
	"context"
	"fmt"

	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/metrics"
)

const (
	Name    = "web_scraping"
	Version = "1.0.0"

	ScrapingServiceName   = "scraping_service"
	CompetitorServiceName = "competitor_analysis_service"

	EventPageScraped                 = "page_scraped"
	EventCompetitorAnalysisCompleted = "competitor_analysis_completed"

	// Below this success rate, over at least minSample scrapes, health
	// reports degraded.
	degradedRate = 50
	minSample    = 5
)

type Module struct {
	*core.Base

	scraper     *ScrapingService
	competitors *CompetitorService
}

func New(c *core.Container) core.Module {
	return &Module{Base: core.NewBase(c, core.Descriptor{
		Name:        Name,
		Version:     Version,
		Description: "Web scraping and competitor analysis",
	})}
}

func (m *Module) Initialize(context.Context) error {
	cfg, err := m.Config()
	if err != nil {
		return fmt.Errorf("web scraping config: %w", err)
	}
	reg, err := core.Resolve[metrics.Registry](m.Container(), core.MetricsService)
	if err != nil {
		reg = metrics.NewNoOpRegistry()
	}
	m.scraper = NewScrapingService(cfg.Scraping, reg, m.Logger())
	m.competitors = NewCompetitorService(m.scraper, m.Logger())
	m.RegisterService(ScrapingServiceName, m.scraper)
	m.RegisterService(CompetitorServiceName, m.competitors)
	m.Logger().Info("web scraping initialized", "user_agent", cfg.Scraping.UserAgent, "max_concurrent", cfg.Scraping.MaxConcurrent)
	return nil
}

func (m *Module) announce(ctx context.Context, p Page) {
	m.EmitEvent(ctx, EventPageScraped, map[string]any{
		"url":        p.URL,
		"status":     p.Status,
		"title":      p.Title,
		"word_count": p.WordCount,
		"seo_score":  p.SEO.Score,
	})
}

func (m *Module) UIComponents() map[string]core.UIComponent {
	return map[string]core.UIComponent{
		"scraping_dashboard": func(context.Context) (any, error) {
			return map[string]any{"stats": m.scraper.Stats(), "recent": m.scraper.History(10)}, nil
		},
		"url_scraper": func(context.Context) (any, error) {
			return map[string]any{"max_batch": maxBatch, "user_agent": m.scraper.cfg.UserAgent}, nil
		},
		"competitor_analysis": func(context.Context) (any, error) {
			return map[string]any{"analyses": m.competitors.Recent()}, nil
		},
	}
}

func (m *Module) HealthCheck(ctx context.Context) core.HealthStatus {
	hs := m.Base.HealthCheck(ctx)
	if m.scraper == nil {
		return hs
	}
	st := m.scraper.Stats()
	if st.Total >= minSample && st.SuccessRate < degradedRate {
		hs.Status = core.StatusDegraded
	}
	hs.Details = map[string]any{
		"pages_scraped":  st.Total,
		"failed":         st.Failed,
		"success_rate":   st.SuccessRate,
		"user_agent":     m.scraper.cfg.UserAgent,
		"max_concurrent": m.scraper.cfg.MaxConcurrent,
	}
	return hs
}
