// Package scheduling plans publish times, dispatches due posts and runs
// cron-driven content workflows.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/events"
)

const (
	Name    = "scheduling"
	Version = "1.0.0"

	SchedulerServiceName  = "scheduler_service"
	CalendarServiceName   = "calendar_service"
	AutomationServiceName = "automation_service"

	EventPublishDue                 = "publish_due"
	EventContentScheduled           = "content_scheduled"
	EventContentGenerationRequested = "content_generation_requested"
)

// Events this module reacts to.
const (
	contentGenerated = "content_generation.content_generated"
	postPublished    = "wordpress_integration.post_published"
	publishFailed    = "wordpress_integration.publish_failed"
)

type Module struct {
	*core.Base

	cron       *cron.Cron
	pollEntry  cron.EntryID
	scheduler  *SchedulerService
	calendar   *CalendarService
	automation *AutomationService

	ctx    context.Context
	cancel context.CancelFunc
}

func New(c *core.Container) core.Module {
	return &Module{Base: core.NewBase(c, core.Descriptor{
		Name:                 Name,
		Version:              Version,
		Description:          "Content scheduling and publishing automation",
		OptionalDependencies: []string{"content_generation", "wordpress_integration"},
	})}
}

func (m *Module) Initialize(context.Context) error {
	cfg, err := m.Config()
	if err != nil {
		return fmt.Errorf("scheduling config: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Scheduling.Timezone)
	if err != nil {
		return fmt.Errorf("scheduling timezone: %w", err)
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.cron = cron.New(cron.WithLocation(loc))
	m.calendar = NewCalendarService(loc)
	m.scheduler = NewSchedulerService(m.calendar, cfg.Scheduling.MaxScheduledPosts, m.Logger())
	m.automation = NewAutomationService(m.cron, loc, m.EmitEvent, m.Logger())

	m.pollEntry, err = m.cron.AddFunc(cfg.Scheduling.PollInterval, func() { m.DispatchDue(m.ctx) })
	if err != nil {
		m.cancel()
		return fmt.Errorf("scheduling poll interval %q: %w", cfg.Scheduling.PollInterval, err)
	}

	m.RegisterService(SchedulerServiceName, m.scheduler)
	m.RegisterService(CalendarServiceName, m.calendar)
	m.RegisterService(AutomationServiceName, m.automation)

	m.SubscribeToEvent(contentGenerated, m.onContentGenerated)
	m.SubscribeToEvent(postPublished, m.onPostPublished)
	m.SubscribeToEvent(publishFailed, m.onPublishFailed)

	m.cron.Start()
	m.Logger().Info("scheduling initialized", "timezone", loc.String(), "poll", cfg.Scheduling.PollInterval)
	return nil
}

// DispatchDue emits publish_due for every schedule that has come due and
// reports how many were dispatched.
func (m *Module) DispatchDue(ctx context.Context) int {
	due := m.scheduler.Due(m.scheduler.now())
	for _, sc := range due {
		m.dispatch(ctx, sc)
	}
	if len(due) > 0 {
		m.Logger().Info("dispatched due schedules", "count", len(due))
	}
	return len(due)
}

func (m *Module) dispatch(ctx context.Context, sc Schedule) {
	m.EmitEvent(ctx, EventPublishDue, map[string]any{
		"schedule_id":  sc.ID,
		"content_id":   sc.ContentID,
		"platform":     sc.Platform,
		"content_type": sc.ContentType,
		"publish_time": sc.PublishTime.Format(time.RFC3339),
	})
}

func (m *Module) onContentGenerated(ctx context.Context, e events.Event) error {
	if !e.Bool("auto_schedule") {
		return nil
	}
	platforms := e.Strings("target_platforms")
	if len(platforms) == 0 {
		platforms = []string{PlatformWordPress}
	}
	var errs []error
	for _, p := range platforms {
		sc, err := m.scheduler.Create(ScheduleRequest{
			ContentID:     e.String("content_id"),
			Platform:      p,
			ContentType:   e.String("content_type"),
			AutoScheduled: true,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("auto-schedule %s: %w", p, err))
			continue
		}
		m.EmitEvent(ctx, EventContentScheduled, map[string]any{
			"schedule_id":  sc.ID,
			"content_id":   sc.ContentID,
			"platform":     sc.Platform,
			"publish_time": sc.PublishTime.Format(time.RFC3339),
			"auto":         true,
		})
	}
	return errors.Join(errs...)
}

func (m *Module) onPostPublished(_ context.Context, e events.Event) error {
	id := e.String("schedule_id")
	if id == "" {
		return nil
	}
	return m.scheduler.MarkPublished(id, map[string]any{
		"post_id": e.String("post_id"),
		"link":    e.String("link"),
		"status":  e.String("status"),
	})
}

func (m *Module) onPublishFailed(_ context.Context, e events.Event) error {
	id := e.String("schedule_id")
	if id == "" {
		return nil
	}
	return m.scheduler.MarkFailed(id, e.String("error"))
}

// Stats summarizes schedules and workflows.
func (m *Module) Stats() map[string]any {
	total, active := m.automation.Counts()
	out := map[string]any{
		"schedules":        m.scheduler.Counts(),
		"workflows":        total,
		"active_workflows": active,
		"timezone":         m.calendar.Location().String(),
	}
	if next := m.cron.Entry(m.pollEntry).Next; !next.IsZero() {
		out["next_poll"] = next
	}
	return out
}

func (m *Module) UIComponents() map[string]core.UIComponent {
	return map[string]core.UIComponent{
		"scheduling_dashboard": func(context.Context) (any, error) {
			return m.Stats(), nil
		},
		"content_calendar": func(context.Context) (any, error) {
			days, err := m.calendar.Calendar(m.scheduler, m.scheduler.now(), 7)
			if err != nil {
				return nil, err
			}
			return map[string]any{"days": days}, nil
		},
		"schedule_form": func(context.Context) (any, error) {
			return map[string]any{"platforms": Platforms(), "timezone": m.calendar.Location().String()}, nil
		},
		"automation_settings": func(context.Context) (any, error) {
			return map[string]any{"workflows": m.automation.List(), "templates": Templates()}, nil
		},
		"publishing_history": func(context.Context) (any, error) {
			return map[string]any{
				"published": m.scheduler.List(StatusPublished),
				"failed":    m.scheduler.List(StatusFailed),
			}, nil
		},
	}
}

func (m *Module) HealthCheck(ctx context.Context) core.HealthStatus {
	hs := m.Base.HealthCheck(ctx)
	if m.scheduler == nil {
		return hs
	}
	hs.Details = m.Stats()
	return hs
}

// Cleanup stops the cron loop, waits for running jobs and workflow runs,
// then drops subscriptions.
func (m *Module) Cleanup(ctx context.Context) error {
	if m.cron != nil {
		select {
		case <-m.cron.Stop().Done():
		case <-ctx.Done():
			m.Logger().Warn("scheduling cron did not stop in time")
		}
		m.cancel()
		m.automation.Stop()
	}
	return m.Base.Cleanup(ctx)
}
