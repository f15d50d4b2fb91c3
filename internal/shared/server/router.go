package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docgen-backend/internal/documents"
	"docgen-backend/internal/jobsapi"
	"docgen-backend/internal/services/health"
	"docgen-backend/internal/shared/config"
	"docgen-backend/internal/shared/metrics"
	"docgen-backend/internal/shared/server/middleware"
	"docgen-backend/internal/shared/server/respond"
	"docgen-backend/internal/subjects"
)

const (
	rateGroupDefault = "DEFAULT"
	rateGroupEnqueue = "ENQUEUE"
	rateGroupPolling = "POLLING"
)

// RouterDeps carries the handlers mounted under /v1.
type RouterDeps struct {
	Config          config.Config
	JobHandler      *jobsapi.Handler
	DocumentHandler *documents.Handler
	SubjectHandler  *subjects.Handler
	Health          *health.Service
	Limiter         *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	v1 := r.Group("/v1")
	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService()
	}
	v1.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, healthSvc.Status())
	})
	v1.GET("/ready", func(c *gin.Context) {
		report := healthSvc.Ready(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})

	api := v1.Group("")
	api.Use(
		middleware.Auth(deps.Config.APIKeys),
		middleware.RateLimit(rateLimitConfig(deps.Config, deps.Limiter)),
	)
	api.GET("/whoami", func(c *gin.Context) {
		respond.OK(c, gin.H{"principal": middleware.PrincipalFromContext(c)})
	})
	if deps.JobHandler != nil {
		deps.JobHandler.RegisterRoutes(api)
	}
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}
	if deps.SubjectHandler != nil {
		deps.SubjectHandler.RegisterRoutes(api)
	}

	return r
}

func rateLimitConfig(cfg config.Config, limiter *middleware.RateLimiter) middleware.RateLimitConfig {
	base := middleware.RateLimitRule{Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			rateGroupDefault: base,
			rateGroupEnqueue: {Rate: base.Rate / 5, Burst: max(base.Burst/4, 1)},
			rateGroupPolling: {Rate: base.Rate * 2, Burst: base.Burst * 2},
		},
		DefaultGroup: rateGroupDefault,
		GroupFor:     rateGroupFor,
		Limiter:      limiter,
	}
}

func rateGroupFor(c *gin.Context) string {
	switch c.FullPath() {
	case "/v1/jobs":
		if c.Request.Method == http.MethodPost {
			return rateGroupEnqueue
		}
	case "/v1/jobs/:jobId", "/v1/jobs/:jobId/wait":
		return rateGroupPolling
	}
	return rateGroupDefault
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
