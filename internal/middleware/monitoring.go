package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"slicinginbox/backend/internal/monitoring"
)

// HTTPMetrics HTTP 指标中间件，按路由模板聚合以避免 ID 造成标签膨胀
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
