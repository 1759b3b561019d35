// Package keywordresearch estimates keyword metrics and feeds researched
// keywords back to content generation.
package keywordresearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/events"
	"github.com/skekre98/contentagent/web"
)

const (
	Name        = "keyword_research"
	Version     = "1.0.0"
	ServiceName = "keyword_research_service"

	EventResearchCompleted = "keyword_research_completed"

	keywordNeeded = "content_generation.keyword_needed"

	SourceEstimated = "estimated"
	SourceSerpAPI   = "serpapi"
)

type Module struct {
	*core.Base

	svc           *Service
	serpAvailable bool
}

func New(c *core.Container) core.Module {
	return &Module{Base: core.NewBase(c, core.Descriptor{
		Name:        Name,
		Version:     Version,
		Description: "Keyword research and SEO analysis",
	})}
}

func (m *Module) Initialize(context.Context) error {
	cfg, err := m.Config()
	if err != nil {
		return fmt.Errorf("keyword research config: %w", err)
	}
	// TODO: query SerpAPI for live volumes when a key is configured; the
	// estimate is used either way until then.
	m.serpAvailable = cfg.Providers.SerpAPIKey != ""
	m.svc = NewService(SourceEstimated, m.Logger())
	m.RegisterService(ServiceName, m.svc)
	m.SubscribeToEvent(keywordNeeded, m.onKeywordNeeded)
	return nil
}

func (m *Module) research(ctx context.Context, req Request) (*Result, error) {
	res, err := m.svc.Research(ctx, req)
	if err != nil {
		return nil, err
	}
	m.EmitEvent(ctx, EventResearchCompleted, map[string]any{
		"keyword":       res.Primary.Term,
		"request_id":    res.RequestID,
		"research_data": res.EventData(),
	})
	return res, nil
}

func (m *Module) onKeywordNeeded(ctx context.Context, e events.Event) error {
	_, err := m.research(ctx, Request{
		Keyword:             e.String("keyword"),
		ContentType:         e.String("content_type"),
		TargetAudience:      e.String("target_audience"),
		AutoGenerateContent: e.Bool("auto_generate_content"),
		AutoSchedule:        e.Bool("auto_schedule"),
		TargetPlatforms:     e.Strings("target_platforms"),
		RequestID:           e.String("request_id"),
	})
	return err
}

func (m *Module) RegisterRoutes(r core.Router) {
	g := r.Group("/api/keyword-research")
	g.POST("/research", m.handleResearch)
	g.GET("/suggestions/:keyword", m.handleSuggestions)
	g.GET("/trending", m.handleTrending)
	g.GET("/history", m.handleHistory)
}

func (m *Module) handleResearch(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	res, err := m.research(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		web.Error(c, status, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func queryLimit(c *gin.Context, def int) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		web.Error(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
		return 0, false
	}
	return n, true
}

func (m *Module) handleSuggestions(c *gin.Context) {
	limit, ok := queryLimit(c, defaultRelated)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"keyword": c.Param("keyword"), "suggestions": Suggestions(c.Param("keyword"), limit)})
}

func (m *Module) handleTrending(c *gin.Context) {
	limit, ok := queryLimit(c, 10)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"trending": m.svc.Trending(limit)})
}

func (m *Module) handleHistory(c *gin.Context) {
	limit, ok := queryLimit(c, 20)
	if !ok {
		return
	}
	items := m.svc.History(limit)
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (m *Module) UIComponents() map[string]core.UIComponent {
	return map[string]core.UIComponent{
		"keyword_research_dashboard": func(context.Context) (any, error) {
			return map[string]any{
				"recent":   m.svc.History(5),
				"trending": m.svc.Trending(5),
				"source":   m.svc.Source(),
			}, nil
		},
		"keyword_input_form": func(context.Context) (any, error) {
			return map[string]any{"max_related": len(modifiers), "default_related": defaultRelated}, nil
		},
		"keyword_results_display": func(context.Context) (any, error) {
			h := m.svc.History(1)
			if len(h) == 0 {
				return map[string]any{"result": nil}, nil
			}
			return map[string]any{"result": h[0]}, nil
		},
		"competitor_analysis": func(context.Context) (any, error) {
			return map[string]any{"requires": "web_scraping"}, nil
		},
	}
}

func (m *Module) HealthCheck(ctx context.Context) core.HealthStatus {
	hs := m.Base.HealthCheck(ctx)
	if m.svc == nil {
		return hs
	}
	hs.Details = map[string]any{
		"data_source":         m.svc.Source(),
		"serp_api_configured": m.serpAvailable,
		"researched":          len(m.svc.History(0)),
	}
	return hs
}

func (m *Module) Cleanup(ctx context.Context) error {
	return m.Base.Cleanup(ctx)
}
