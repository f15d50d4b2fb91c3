package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func authRouter(keys []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(keys))
	router.GET("/v1/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, PrincipalFromContext(c))
	})
	router.OPTIONS("/v1/whoami", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/v1/whoami", nil)
	resp := httptest.NewRecorder()
	authRouter([]string{"secret"}).ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthOpenModeUsesOperatorHeader(t *testing.T) {
	router := authRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || resp.Body.String() != "operator:anonymous" {
		t.Fatalf("unexpected response %d %q", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	req.Header.Set("X-Operator-Id", "dana")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Body.String() != "operator:dana" {
		t.Fatalf("unexpected principal %q", resp.Body.String())
	}
}

func TestAuthRequiresConfiguredKey(t *testing.T) {
	router := authRouter([]string{"key-one", "key-two"})

	for _, header := range []string{"", "Bearer", "Bearer wrong", "Basic key-one"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", header, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	req.Header.Set("Authorization", "Bearer key-two")
	req.Header.Set("X-Operator-Id", "dana")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Body.String(); !strings.HasPrefix(got, "key:") || !strings.HasSuffix(got, "/dana") || strings.Contains(got, "key-two") {
		t.Fatalf("unexpected principal %q", got)
	}
}
