package endpoint

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/playurl/component"
)

func probe(c *gin.Context, serviceName, status string, code int) {
	c.JSON(code, gin.H{
		"status":    status,
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Liveness answers 200 as long as the process can serve HTTP. It never
// consults dependencies: an orchestrator restarting us over a Redis outage
// would not help.
func Liveness(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		probe(c, serviceName, "alive", http.StatusOK)
	}
}

// Readiness answers 503 while any component is unhealthy. A degraded cache
// backend keeps the service ready since playback falls back to direct
// generation.
func Readiness(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker != nil && component.Overall(checker(c.Request.Context())) == component.StatusUnhealthy {
			probe(c, serviceName, "not_ready", http.StatusServiceUnavailable)
			return
		}
		probe(c, serviceName, "ready", http.StatusOK)
	}
}
