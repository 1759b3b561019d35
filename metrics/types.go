package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry collects process metrics. The registry also implements
// core.LoadObserver so module loads are counted and timed.
type Registry interface {
	// HTTP
	RecordHTTPRequest(method, path, statusCode string, duration float64)
	IncHTTPRequestsInFlight()
	DecHTTPRequestsInFlight()

	// Modules and events
	ObserveModuleLoad(name string, ok bool, d time.Duration)
	IncEventsEmitted(name string)

	// Content pipeline
	IncContentGenerated(contentType string)
	IncPostsPublished(status string)
	IncScrapes(status string)

	GetRegistry() *prometheus.Registry
	GetHandler() http.Handler
}

// NoOpRegistry is used when metrics are disabled.
type NoOpRegistry struct{}

func NewNoOpRegistry() Registry {
	return &NoOpRegistry{}
}

func (n *NoOpRegistry) RecordHTTPRequest(method, path, statusCode string, duration float64) {}
func (n *NoOpRegistry) IncHTTPRequestsInFlight()                                            {}
func (n *NoOpRegistry) DecHTTPRequestsInFlight()                                            {}
func (n *NoOpRegistry) ObserveModuleLoad(string, bool, time.Duration)                       {}
func (n *NoOpRegistry) IncEventsEmitted(string)                                             {}
func (n *NoOpRegistry) IncContentGenerated(string)                                          {}
func (n *NoOpRegistry) IncPostsPublished(string)                                            {}
func (n *NoOpRegistry) IncScrapes(string)                                                   {}
func (n *NoOpRegistry) GetRegistry() *prometheus.Registry                                   { return nil }
func (n *NoOpRegistry) GetHandler() http.Handler                                            { return nil }

// Label names.
const (
	LabelMethod      = "method"
	LabelPath        = "path"
	LabelStatusCode  = "status_code"
	LabelModule      = "module"
	LabelResult      = "result"
	LabelEvent       = "event"
	LabelContentType = "content_type"
	LabelStatus      = "status"
)
