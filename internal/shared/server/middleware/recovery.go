package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"docgen-backend/internal/shared/server/respond"
	"docgen-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR envelope. Job
// execution panics are recovered by the engine, so anything caught here is a
// request-path bug.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      rec,
				"stack":      string(debug.Stack()),
				"route":      c.FullPath(),
				"method":     c.Request.Method,
			}
			if jobID := c.GetString("jobId"); jobID != "" {
				fields["job_id"] = jobID
			}
			telemetry.Error("http.panic", fields)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error", nil)
		}()
		c.Next()
	}
}
