package config

import (
	"context"
	"fmt"
)

// Defaults returns the baseline values every other source overrides.
func Defaults() map[string]any {
	return map[string]any{
		"app": map[string]any{
			"name":    "content-agent",
			"version": "1.0.0",
		},
		"server": map[string]any{
			"addr":            ":8000",
			"readTimeout":     "15s",
			"writeTimeout":    "30s",
			"idleTimeout":     "60s",
			"shutdownTimeout": "10s",
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"observability": map[string]any{
			"metrics": map[string]any{"enabled": true, "namespace": "contentagent", "collectRuntime": true},
		},
		"actuator": map[string]any{"basePath": "/actuator"},
		"modules": map[string]any{
			"root":        "configs/modules",
			"initTimeout": "30s",
		},
		"content": map[string]any{
			"defaultLength": 1000,
			"maxLength":     5000,
			"defaultTone":   "professional",
		},
		"wordpress": map[string]any{"useBlocks": true},
		"scraping": map[string]any{
			"userAgent":     "ContentAgent/1.0",
			"delay":         "1s",
			"timeout":       "30s",
			"maxConcurrent": 10,
		},
		"scheduling": map[string]any{
			"timezone":          "UTC",
			"maxScheduledPosts": 100,
			"pollInterval":      "@every 1m",
		},
	}
}

// MapSource serves a fixed map. It is used for defaults and in tests.
type MapSource struct {
	Label string
	Data  map[string]any
}

func (m *MapSource) Name() string {
	if m.Label == "" {
		return "map"
	}
	return m.Label
}

func (m *MapSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return copyMap(m.Data), nil
}

func (m *MapSource) Watch(context.Context, chan<- Event) error { return nil }

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Load builds a Manager over Defaults followed by sources, in precedence
// order, and returns it with the bound Root.
func Load(opts Options, sources ...ConfigSource) (*Manager, *Root, error) {
	all := append([]ConfigSource{&MapSource{Label: "defaults", Data: Defaults()}}, sources...)
	var cfg Root
	mgr, err := NewManager(&cfg, opts, all...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return mgr, &cfg, nil
}
