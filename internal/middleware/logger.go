package middleware

import (
	"time"

	"CMS_Blog/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 记录每个请求，并上报 HTTP 指标
func RequestLogger(logger *zap.SugaredLogger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route,
			"status", status,
			"size", c.Writer.Size(),
			"duration", duration,
			"remote_addr", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		if status >= 500 {
			logger.Errorw("HTTP request", fields...)
		} else {
			logger.Infow("HTTP request", fields...)
		}

		m.RecordHTTPRequest(c.Request.Context(), c.Request.Method, route, status, duration)
	}
}
