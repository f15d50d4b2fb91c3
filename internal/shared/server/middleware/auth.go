package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docgen-backend/internal/shared/server/respond"
)

const principalKey = "principal"

// Auth identifies the caller. With no keys configured every request passes
// and the principal comes from X-Operator-Id; otherwise a bearer key from
// the list is required.
func Auth(apiKeys []string) gin.HandlerFunc {
	digests := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			sum := sha256.Sum256([]byte(k))
			digests = append(digests, sum[:])
		}
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		operator := strings.TrimSpace(c.GetHeader("X-Operator-Id"))
		if len(digests) == 0 {
			if operator == "" {
				operator = "anonymous"
			}
			c.Set(principalKey, "operator:"+operator)
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid api key", nil)
			return
		}
		key := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		sum := sha256.Sum256([]byte(key))
		matched := 0
		for _, d := range digests {
			matched |= subtle.ConstantTimeCompare(sum[:], d)
		}
		if key == "" || matched != 1 {
			respond.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid api key", nil)
			return
		}

		principal := "key:" + hex.EncodeToString(sum[:4])
		if operator != "" {
			principal += "/" + operator
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFromContext returns the caller identity set by Auth.
func PrincipalFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(principalKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
