package ginmetrics

import (
	"strconv"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/metrics"
	"github.com/gin-gonic/gin"
)

// PrometheusMiddleware records request count and latency per route
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := strconv.Itoa(c.Writer.Status())
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(serviceName, c.Request.Method+" "+route, statusCode, time.Since(start))
	}
}
