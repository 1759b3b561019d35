// Package contentgeneration generates SEO content through tiered LLM
// calls and serves it under /api/content.
package contentgeneration

import (
	"context"
	"fmt"

	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/events"
	"github.com/skekre98/contentagent/metrics"
)

const (
	Name    = "content_generation"
	Version = "1.0.0"

	LLMServiceName      = "llm_service"
	TemplateServiceName = "template_service"
	ContentServiceName  = "content_service"

	EventContentGenerated = "content_generated"
	EventKeywordNeeded    = "keyword_needed"
)

// Events this module reacts to.
const (
	keywordResearchCompleted   = "keyword_research.keyword_research_completed"
	contentGenerationRequested = "scheduling.content_generation_requested"
)

type Module struct {
	*core.Base

	llm       *LLMService
	templates *TemplateService
	content   *ContentService
}

func New(c *core.Container) core.Module {
	return &Module{Base: core.NewBase(c, core.Descriptor{
		Name:                 Name,
		Version:              Version,
		Description:          "AI content generation with SEO optimization",
		OptionalDependencies: []string{"keyword_research", "web_scraping"},
	})}
}

func (m *Module) Initialize(ctx context.Context) error {
	cfg, err := m.Config()
	if err != nil {
		return fmt.Errorf("content generation config: %w", err)
	}
	m.llm = NewLLMService(cfg.Providers, m.Logger())
	m.templates = NewTemplateService()
	m.RegisterService(LLMServiceName, m.llm)
	m.RegisterService(TemplateServiceName, m.templates)

	content, err := core.AutoWire(m.Container(), ContentServiceName, []core.Param{
		core.Required(LLMServiceName),
		core.Required(TemplateServiceName),
		core.Optional(core.MetricsService, metrics.NewNoOpRegistry()),
	}, func(args map[string]any) (*ContentService, error) {
		llm, ok := args[LLMServiceName].(*LLMService)
		if !ok {
			return nil, fmt.Errorf("%s has type %T", LLMServiceName, args[LLMServiceName])
		}
		tmpl, ok := args[TemplateServiceName].(*TemplateService)
		if !ok {
			return nil, fmt.Errorf("%s has type %T", TemplateServiceName, args[TemplateServiceName])
		}
		reg, ok := args[core.MetricsService].(metrics.Registry)
		if !ok {
			reg = metrics.NewNoOpRegistry()
		}
		return NewContentService(llm, tmpl, reg, cfg.Content, m.Logger()), nil
	})
	if err != nil {
		return err
	}
	m.content = content
	m.RegisterService(ContentServiceName, content)

	m.SubscribeToEvent(keywordResearchCompleted, m.onKeywordResearchCompleted)
	m.SubscribeToEvent(contentGenerationRequested, m.onGenerationRequested)
	m.Logger().Info("content generation initialized", "providers", m.llm.Providers(), "templates", m.templates.Count())
	return nil
}

// generate runs a request and announces the result.
func (m *Module) generate(ctx context.Context, req Request, extra map[string]any) (*Content, error) {
	c, err := m.content.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	platforms := req.TargetPlatforms
	if platforms == nil {
		platforms = []string{}
	}
	data := map[string]any{
		"content_id":       c.ID,
		"content_type":     c.ContentType,
		"primary_keyword":  c.PrimaryKeyword,
		"target_audience":  c.TargetAudience,
		"word_count":       c.WordCount,
		"auto_schedule":    req.AutoSchedule,
		"target_platforms": platforms,
		"request_id":       req.RequestID,
	}
	for k, v := range extra {
		data[k] = v
	}
	m.EmitEvent(ctx, EventContentGenerated, data)
	return c, nil
}

func (m *Module) onKeywordResearchCompleted(ctx context.Context, e events.Event) error {
	research := events.Event{Data: e.Map("research_data")}
	if !research.Bool("auto_generate_content") {
		return nil
	}
	keyword := e.String("keyword")
	if keyword == "" {
		keyword = research.String("primary_keyword")
	}
	_, err := m.generate(ctx, Request{
		PrimaryKeyword:  keyword,
		RelatedKeywords: research.Strings("related_keywords"),
		ContentType:     research.String("content_type"),
		TargetAudience:  research.String("target_audience"),
		AutoSchedule:    research.Bool("auto_schedule"),
		TargetPlatforms: research.Strings("target_platforms"),
		RequestID:       e.String("request_id"),
	}, map[string]any{"auto_generated": true})
	return err
}

func (m *Module) onGenerationRequested(ctx context.Context, e events.Event) error {
	_, err := m.generate(ctx, Request{
		PrimaryKeyword:  e.String("primary_keyword"),
		RelatedKeywords: e.Strings("related_keywords"),
		ContentType:     e.String("content_type"),
		Tone:            e.String("tone"),
		TargetAudience:  e.String("target_audience"),
		AutoSchedule:    e.Bool("auto_schedule"),
		TargetPlatforms: e.Strings("target_platforms"),
		RequestID:       e.String("request_id"),
	}, map[string]any{"scheduled": true, "workflow_id": e.String("workflow_id")})
	return err
}

func (m *Module) UIComponents() map[string]core.UIComponent {
	return map[string]core.UIComponent{
		"content_generator_dashboard": func(context.Context) (any, error) {
			calls, cost := m.llm.Usage()
			return map[string]any{
				"stats":     m.content.Stats(),
				"providers": m.llm.Providers(),
				"mock_mode": m.llm.MockMode(),
				"llm_calls": calls,
				"llm_cost":  cost,
			}, nil
		},
		"content_generator_form": func(context.Context) (any, error) {
			keys := []string{}
			for _, t := range m.templates.List() {
				keys = append(keys, t.Key)
			}
			return map[string]any{
				"content_types":  keys,
				"quality_levels": []string{QualityStandard, QualityPremium},
				"min_length":     100,
				"max_length":     5000,
			}, nil
		},
		"template_manager": func(context.Context) (any, error) {
			return map[string]any{"templates": m.templates.List()}, nil
		},
		"content_history": func(context.Context) (any, error) {
			return map[string]any{"items": m.content.List(10, "")}, nil
		},
	}
}

func (m *Module) HealthCheck(ctx context.Context) core.HealthStatus {
	hs := m.Base.HealthCheck(ctx)
	if m.llm == nil {
		return hs
	}
	hs.Details = map[string]any{
		"llm_providers":    m.llm.Providers(),
		"mock_mode":        m.llm.MockMode(),
		"templates_loaded": m.templates.Count(),
		"content_items":    m.content.Stats().Total,
	}
	return hs
}

func (m *Module) Cleanup(ctx context.Context) error {
	m.Logger().Info("content generation cleaned up")
	return m.Base.Cleanup(ctx)
}
