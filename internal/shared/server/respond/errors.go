package respond

import (
	"github.com/gin-gonic/gin"

	"docgen-backend/internal/shared/telemetry"
)

// ErrorBody is the error object every non-2xx response carries.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps ErrorBody as {"error": {...}}.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error logs the failure with whatever request context is set on c and aborts
// with the error envelope.
func Error(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"route":      c.FullPath(),
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	for _, key := range []string{"principal", "jobId", "subjectId"} {
		if v := c.GetString(key); v != "" {
			fields[key] = v
		}
	}

	switch {
	case status >= 500:
		telemetry.Error("http.error", fields)
	case status == 429:
		telemetry.Debug("http.error", fields)
	default:
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}})
}
