// Package wordpress formats generated content as WordPress posts and
// publishes them through the REST API.
package wordpress

import (
	"context"
	"fmt"
	"time"

	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/events"
	"github.com/skekre98/contentagent/metrics"
	"github.com/skekre98/contentagent/modules/contentgeneration"
)

const (
	Name    = "wordpress_integration"
	Version = "1.0.0"

	FormatterServiceName = "content_formatter"
	PublisherServiceName = "wordpress_publisher"

	EventPostPublished = "post_published"
	EventPublishFailed = "publish_failed"
	platformWordPress  = "wordpress"
	publishDue         = "scheduling.publish_due"
	requestTimeout     = 30 * time.Second
)

type Module struct {
	*core.Base

	formatter *Formatter
	publisher *Publisher
}

func New(c *core.Container) core.Module {
	return &Module{Base: core.NewBase(c, core.Descriptor{
		Name:                 Name,
		Version:              Version,
		Description:          "WordPress publishing with Gutenberg formatting",
		Dependencies:         []string{contentgeneration.Name},
		OptionalDependencies: []string{"scheduling"},
	})}
}

func (m *Module) Initialize(context.Context) error {
	cfg, err := m.Config()
	if err != nil {
		return fmt.Errorf("wordpress config: %w", err)
	}
	content, err := core.Resolve[*contentgeneration.ContentService](m.Container(), contentgeneration.ContentServiceName)
	if err != nil {
		return fmt.Errorf("wordpress needs content generation: %w", err)
	}
	reg, err := core.Resolve[metrics.Registry](m.Container(), core.MetricsService)
	if err != nil {
		reg = metrics.NewNoOpRegistry()
	}

	var client *Client
	if cfg.WordPress.URL != "" {
		client = NewClient(cfg.WordPress, requestTimeout, m.Logger())
	}
	m.formatter = NewFormatter(cfg.WordPress.UseBlocks)
	m.publisher = NewPublisher(client, cfg.WordPress.URL, m.formatter, content, reg, m.Logger())
	m.RegisterService(FormatterServiceName, m.formatter)
	m.RegisterService(PublisherServiceName, m.publisher)

	m.SubscribeToEvent(publishDue, m.onPublishDue)
	if m.publisher.DryRun() {
		m.Logger().Warn("no wordpress url configured; publishing runs dry")
	}
	m.Logger().Info("wordpress integration initialized", "site", cfg.WordPress.URL, "blocks", cfg.WordPress.UseBlocks)
	return nil
}

// publish runs one publish and announces the outcome.
func (m *Module) publish(ctx context.Context, contentID, scheduleID string, opts FormatOptions) (Record, error) {
	rec, err := m.publisher.Publish(ctx, contentID, scheduleID, opts)
	if err != nil {
		m.EmitEvent(ctx, EventPublishFailed, map[string]any{
			"schedule_id": scheduleID,
			"content_id":  contentID,
			"error":       err.Error(),
		})
		return rec, err
	}
	m.EmitEvent(ctx, EventPostPublished, map[string]any{
		"schedule_id": scheduleID,
		"content_id":  contentID,
		"post_id":     rec.PostID,
		"link":        rec.Link,
		"status":      rec.Status,
		"dry_run":     rec.DryRun,
	})
	return rec, nil
}

func (m *Module) onPublishDue(ctx context.Context, e events.Event) error {
	if p := e.String("platform"); p != "" && p != platformWordPress {
		return nil
	}
	_, err := m.publish(ctx, e.String("content_id"), e.String("schedule_id"), FormatOptions{})
	return err
}

func (m *Module) UIComponents() map[string]core.UIComponent {
	return map[string]core.UIComponent{
		"wordpress_dashboard": func(context.Context) (any, error) {
			return map[string]any{"counts": m.publisher.Counts(), "dry_run": m.publisher.DryRun()}, nil
		},
		"publish_form": func(context.Context) (any, error) {
			return map[string]any{"statuses": []string{PostPublish, PostDraft, PostPending, PostPrivate}}, nil
		},
		"post_history": func(context.Context) (any, error) {
			return map[string]any{"posts": m.publisher.Records(20)}, nil
		},
		"connection_status": func(ctx context.Context) (any, error) {
			return m.publisher.TestConnection(ctx), nil
		},
	}
}

// HealthCheck reports degraded while no site is configured.
func (m *Module) HealthCheck(ctx context.Context) core.HealthStatus {
	hs := m.Base.HealthCheck(ctx)
	if m.publisher == nil {
		return hs
	}
	if m.publisher.DryRun() && hs.Status == core.StatusHealthy {
		hs.Status = core.StatusDegraded
	}
	hs.Details = map[string]any{
		"site_url":   m.publisher.siteURL,
		"dry_run":    m.publisher.DryRun(),
		"use_blocks": m.formatter.useBlocks,
		"publishes":  m.publisher.Counts(),
	}
	return hs
}
