package events

import (
	"context"
	"fmt"
	"log/slog"
)

// LoggingMiddleware logs every event at info level.
func LoggingMiddleware(l *slog.Logger) Middleware {
	return func(_ context.Context, e Event) error {
		source := e.Source
		if source == "" {
			source = "unknown"
		}
		l.Info("event", "event", e.Name, "source", source, "id", e.ID)
		return nil
	}
}

// ValidationMiddleware checks event payloads against per-name validators.
// A failure is reported to the bus log; delivery still happens.
func ValidationMiddleware(validators map[string]func(data map[string]any) error) Middleware {
	return func(_ context.Context, e Event) error {
		v, ok := validators[e.Name]
		if !ok {
			return nil
		}
		if err := v(e.Data); err != nil {
			return fmt.Errorf("event validation failed for %s: %w", e.Name, err)
		}
		return nil
	}
}
