package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/easypass/easypass-api/internal/service"
)

// Metrics records per-request counters, latency and in-flight gauge.
// c.FullPath() keeps label cardinality bounded to registered routes;
// unmatched requests fall back to the raw path.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		metricsSvc.IncRequestsInFlight()
		c.Next()
		metricsSvc.DecRequestsInFlight()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
