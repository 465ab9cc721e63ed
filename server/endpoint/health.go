package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/playurl/component"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// DetailFunc contributes one named entry to the health body, e.g. the
// in-flight lock count or breaker state.
type DetailFunc func(ctx context.Context) (string, any)

// Health reports overall status, each component and any extra details.
// Unhealthy answers 503; degraded still answers 200.
func Health(serviceName string, checker HealthChecker, extras ...DetailFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var components []component.Health
		if checker != nil {
			components = checker(ctx)
		}
		status := component.Overall(components)

		details := make(map[string]any, len(extras))
		for _, fn := range extras {
			k, v := fn(ctx)
			details[k] = v
		}

		httpStatus := http.StatusOK
		if status == component.StatusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}

		body := gin.H{
			"status":     status,
			"service":    serviceName,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": components,
		}
		if len(details) > 0 {
			body["details"] = details
		}
		c.JSON(httpStatus, body)
	}
}
