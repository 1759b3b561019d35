package config

import (
	"log/slog"
	"time"
)

type AppInfo struct {
	Name    string `config:"name" validate:"required"`
	Version string `config:"version" validate:"required"`
	Debug   bool   `config:"debug"`
}

type TLSConfig struct {
	Enabled  bool   `config:"enabled"`
	CertFile string `config:"certFile" validate:"required_if=Enabled true"`
	KeyFile  string `config:"keyFile" validate:"required_if=Enabled true"`
}

type ServerConfig struct {
	Addr            string        `config:"addr" validate:"required"`
	ReadTimeout     time.Duration `config:"readTimeout"`
	WriteTimeout    time.Duration `config:"writeTimeout"`
	IdleTimeout     time.Duration `config:"idleTimeout"`
	ShutdownTimeout time.Duration `config:"shutdownTimeout"`
	TLS             TLSConfig     `config:"tls"`
}

type LoggingConfig struct {
	Level  slog.Level `config:"level"`
	Format string     `config:"format" validate:"oneof=text json"`
}

type MetricsConfig struct {
	Enabled        bool   `config:"enabled"`
	Namespace      string `config:"namespace"`
	CollectRuntime bool   `config:"collectRuntime"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `config:"metrics"`
}

type ActuatorConfig struct {
	BasePath string `config:"basePath" validate:"required,startswith=/"`
}

// ModulesConfig controls discovery and loading of feature modules.
type ModulesConfig struct {
	// Root is the directory holding one <name>/module.yaml per module.
	Root        string        `config:"root" validate:"required"`
	InitTimeout time.Duration `config:"initTimeout" validate:"min=0"`
	Disabled    []string      `config:"disabled"`
}

type ContentConfig struct {
	DefaultLength int    `config:"defaultLength" validate:"min=1"`
	MaxLength     int    `config:"maxLength" validate:"gtefield=DefaultLength"`
	DefaultTone   string `config:"defaultTone" validate:"required"`
}

// ProvidersConfig holds third-party API credentials. Empty keys put the
// owning module into mock mode.
type ProvidersConfig struct {
	OpenAIKey    string `config:"openaiKey"`
	AnthropicKey string `config:"anthropicKey"`
	SerpAPIKey   string `config:"serpapiKey"`
}

type WordPressConfig struct {
	URL         string `config:"url" validate:"omitempty,url"`
	Username    string `config:"username"`
	AppPassword string `config:"appPassword"`
	UseBlocks   bool   `config:"useBlocks"`
}

type ScrapingConfig struct {
	UserAgent     string        `config:"userAgent" validate:"required"`
	Delay         time.Duration `config:"delay"`
	Timeout       time.Duration `config:"timeout"`
	MaxConcurrent int           `config:"maxConcurrent" validate:"min=1"`
}

type SchedulingConfig struct {
	Timezone          string `config:"timezone" validate:"required,timezone"`
	MaxScheduledPosts int    `config:"maxScheduledPosts" validate:"min=1"`
	// PollInterval is a cron spec for the due-item scan.
	PollInterval string `config:"pollInterval" validate:"required,cronspec"`
}

type Root struct {
	App           AppInfo             `config:"app"`
	Server        ServerConfig        `config:"server"`
	Logging       LoggingConfig       `config:"logging"`
	Observability ObservabilityConfig `config:"observability"`
	Actuator      ActuatorConfig      `config:"actuator"`
	Modules       ModulesConfig       `config:"modules"`
	Content       ContentConfig       `config:"content"`
	Providers     ProvidersConfig     `config:"providers"`
	WordPress     WordPressConfig     `config:"wordpress"`
	Scraping      ScrapingConfig      `config:"scraping"`
	Scheduling    SchedulingConfig    `config:"scheduling"`
}
