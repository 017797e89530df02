package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/session-attendance-api/internal/service"
)

// Metrics records request duration and status per route. Labels use the gin
// route template (`/attendance/:id`) so cardinality stays bounded; requests
// that match no route fall back to the raw path.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
