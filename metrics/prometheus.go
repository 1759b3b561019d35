package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skekre98/contentagent/config"
)

// PrometheusRegistry implements Registry on a private prometheus.Registry.
type PrometheusRegistry struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	moduleLoadsTotal   *prometheus.CounterVec
	moduleLoadDuration *prometheus.HistogramVec
	eventsEmittedTotal *prometheus.CounterVec

	contentGeneratedTotal *prometheus.CounterVec
	postsPublishedTotal   *prometheus.CounterVec
	scrapesTotal          *prometheus.CounterVec
}

func NewPrometheusRegistry(cfg config.MetricsConfig) (Registry, error) {
	registry := prometheus.NewRegistry()
	ns := cfg.Namespace

	p := &PrometheusRegistry{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{LabelMethod, LabelPath, LabelStatusCode}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelMethod, LabelPath, LabelStatusCode}),
		httpRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		}),
		moduleLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "module_loads_total",
			Help:      "Module load attempts by result",
		}, []string{LabelModule, LabelResult}),
		moduleLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "module_load_duration_seconds",
			Help:      "Time spent constructing and initializing a module",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelModule}),
		eventsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_emitted_total",
			Help:      "Events published on the bus",
		}, []string{LabelEvent}),
		contentGeneratedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "content_generated_total",
			Help:      "Generated content items by type",
		}, []string{LabelContentType}),
		postsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "posts_published_total",
			Help:      "WordPress publish attempts by status",
		}, []string{LabelStatus}),
		scrapesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "scrapes_total",
			Help:      "Page scrapes by status",
		}, []string{LabelStatus}),
	}

	for _, c := range []prometheus.Collector{
		p.httpRequestsTotal,
		p.httpRequestDuration,
		p.httpRequestsInFlight,
		p.moduleLoadsTotal,
		p.moduleLoadDuration,
		p.eventsEmittedTotal,
		p.contentGeneratedTotal,
		p.postsPublishedTotal,
		p.scrapesTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	if cfg.CollectRuntime {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return p, nil
}

func (p *PrometheusRegistry) RecordHTTPRequest(method, path, statusCode string, duration float64) {
	labels := prometheus.Labels{
		LabelMethod:     method,
		LabelPath:       path,
		LabelStatusCode: statusCode,
	}
	p.httpRequestsTotal.With(labels).Inc()
	p.httpRequestDuration.With(labels).Observe(duration)
}

func (p *PrometheusRegistry) IncHTTPRequestsInFlight() { p.httpRequestsInFlight.Inc() }

func (p *PrometheusRegistry) DecHTTPRequestsInFlight() { p.httpRequestsInFlight.Dec() }

func (p *PrometheusRegistry) ObserveModuleLoad(name string, ok bool, d time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	p.moduleLoadsTotal.WithLabelValues(name, result).Inc()
	p.moduleLoadDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (p *PrometheusRegistry) IncEventsEmitted(name string) {
	p.eventsEmittedTotal.WithLabelValues(name).Inc()
}

func (p *PrometheusRegistry) IncContentGenerated(contentType string) {
	p.contentGeneratedTotal.WithLabelValues(contentType).Inc()
}

func (p *PrometheusRegistry) IncPostsPublished(status string) {
	p.postsPublishedTotal.WithLabelValues(status).Inc()
}

func (p *PrometheusRegistry) IncScrapes(status string) {
	p.scrapesTotal.WithLabelValues(status).Inc()
}

func (p *PrometheusRegistry) GetRegistry() *prometheus.Registry { return p.registry }

func (p *PrometheusRegistry) GetHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
