package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/contentagent/events"
)

// Path is where the scrape endpoint is mounted under the actuator.
const Path = "/metrics"

// GinMiddleware records request count, latency and in-flight requests. The
// path label is the matched route pattern so ids in URLs do not explode
// cardinality; unmatched requests share one label.
func GinMiddleware(registry Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		registry.IncHTTPRequestsInFlight()
		defer registry.DecHTTPRequestsInFlight()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		registry.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// EventMiddleware counts every event published on the bus.
func EventMiddleware(registry Registry) events.Middleware {
	return func(_ context.Context, e events.Event) error {
		registry.IncEventsEmitted(e.Name)
		return nil
	}
}
