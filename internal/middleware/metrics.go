package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/nodues-api/internal/service"
)

// Metrics captures request duration and status for every handled route.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), duration)
	}
}
