package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docgen-backend/internal/shared/metrics"
	"docgen-backend/internal/shared/telemetry"
)

// quietRoutes are probed continuously and only logged at debug.
var quietRoutes = map[string]bool{
	"/metrics":   true,
	"/v1/health": true,
	"/v1/ready":  true,
}

// Logging emits one structured line per request and counts it by route.
// Handlers annotate the line through the jobId, subjectId and
// statusTransition context keys.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTPRequest(route, status)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"route":       route,
			"status":      status,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
		}
		if p := PrincipalFromContext(c); p != "" {
			fields["principal"] = p
		}
		for key, field := range map[string]string{
			"jobId":            "job_id",
			"subjectId":        "subject_id",
			"statusTransition": "status_transition",
		} {
			if v := c.GetString(key); v != "" {
				fields[field] = v
			}
		}

		if quietRoutes[route] {
			telemetry.Debug("request.complete", fields)
			return
		}
		telemetry.Info("request.complete", fields)
	}
}
