package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/playurl/observability"
)

// Metrics records request count, duration and in-flight gauge per route
// template. A nil RequestMetrics makes it a pass-through.
func Metrics(m *observability.RequestMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		start := time.Now()
		m.RecordRequestStart(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordRequestEnd(ctx, route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
