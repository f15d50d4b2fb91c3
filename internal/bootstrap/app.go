package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"docgen-backend/internal/activity"
	"docgen-backend/internal/cache"
	"docgen-backend/internal/documents"
	"docgen-backend/internal/engine"
	"docgen-backend/internal/generation"
	"docgen-backend/internal/generation/openai"
	"docgen-backend/internal/jobs"
	"docgen-backend/internal/jobsapi"
	"docgen-backend/internal/queue"
	"docgen-backend/internal/ratelimit"
	"docgen-backend/internal/services/health"
	"docgen-backend/internal/shared/config"
	"docgen-backend/internal/shared/metrics"
	"docgen-backend/internal/shared/server"
	"docgen-backend/internal/shared/server/middleware"
	"docgen-backend/internal/shared/storage/db"
	"docgen-backend/internal/shared/storage/object"
	localstore "docgen-backend/internal/shared/storage/object/local"
	s3store "docgen-backend/internal/shared/storage/object/s3"
	"docgen-backend/internal/shared/telemetry"
	"docgen-backend/internal/subjects"
)

const (
	generationCachePrefix = "docgen:gen:"
	generationLimiterKey  = "generation"
)

// App holds shared dependencies for the api, worker and jobctl binaries.
type App struct {
	Config    config.Config
	Router    *gin.Engine
	DB        *sql.DB
	Redis     *redis.Client
	Store     object.ObjectStore
	Queue     queue.Client
	Jobs      jobs.Store
	Subjects  *subjects.Service
	Documents *documents.Service
	Activity  activity.Log
	Generator *generation.Client
	Engine    *engine.Service
	Health    *health.Service
}

// Build prepares shared dependencies and the HTTP router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	app := &App{Config: cfg, Health: health.NewService()}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.Health.Register("database", sqlDB.PingContext)
		if err := db.RegisterPoolMetrics(metrics.Registry, sqlDB); err != nil {
			telemetry.Warn("bootstrap.db_metrics_failed", map[string]any{"error": err.Error()})
		}
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	client, err := buildRedis(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Redis = client
	if client != nil {
		app.Health.Register("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Queue = queueClient

	if err := buildServices(app); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		JobHandler:      jobsapi.NewHandler(app.Engine, pollOptions(cfg)),
		DocumentHandler: documents.NewHandler(app.Documents),
		SubjectHandler:  subjects.NewHandler(app.Subjects, app.Activity),
		Health:          app.Health,
		Limiter:         middleware.NewRateLimiter(nil),
	})
	return app, nil
}

// Close releases the database pool and Redis client.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database.memory", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, nil
	}
	client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.redis.memory", map[string]any{"error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return client, nil
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return queue.Nop{}, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
}

func buildProvider(cfg config.Config) (generation.Provider, error) {
	switch cfg.LLMProvider {
	case "echo":
		return generation.EchoProvider{}, nil
	case "openai", "":
		p, err := openai.NewProvider(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.OpenAIBase)
		if err != nil {
			if isDevLike(cfg.Env) {
				// Jobs still run and fail with PROVIDER_NOT_CONFIGURED.
				telemetry.Warn("bootstrap.generation.unconfigured", map[string]any{"error": err.Error()})
				return nil, nil
			}
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func buildGenerator(app *App) (*generation.Client, error) {
	provider, err := buildProvider(app.Config)
	if err != nil {
		return nil, err
	}
	var (
		store   cache.Store
		limiter ratelimit.Limiter
	)
	if app.Redis != nil {
		store = cache.NewRedisStore(app.Redis, generationCachePrefix)
		limiter = ratelimit.NewRedis(app.Redis, int(math.Ceil(app.Config.GenerationRPS)), time.Second)
	} else {
		store = cache.NewMemoryStore()
		limiter = ratelimit.NewLocal(app.Config.GenerationRPS, app.Config.GenerationBurst)
	}
	return generation.NewClient(generation.Config{
		Provider:   provider,
		Cache:      store,
		Limiter:    limiter,
		LimiterKey: generationLimiterKey,
		Timeout:    app.Config.GenerationTimeout,
	}), nil
}

func buildServices(app *App) error {
	var (
		jobStore    jobs.Store
		subjectRepo subjects.Repo
		docRepo     documents.Repo
		activityLog activity.Log
	)
	if app.DB != nil {
		jobStore = &jobs.PGStore{DB: app.DB}
		subjectRepo = &subjects.PGRepo{DB: app.DB}
		docRepo = &documents.PGRepo{DB: app.DB}
		activityLog = &activity.PGLog{DB: app.DB}
	} else {
		jobStore = jobs.NewMemoryStore()
		subjectRepo = subjects.NewMemoryRepo()
		docRepo = documents.NewMemoryRepo()
		activityLog = activity.NewMemoryLog()
	}

	gen, err := buildGenerator(app)
	if err != nil {
		return err
	}

	app.Jobs = jobStore
	app.Subjects = subjects.NewService(subjectRepo)
	app.Documents = documents.NewService(app.Store, docRepo)
	app.Activity = activityLog
	app.Generator = gen
	app.Engine = &engine.Service{
		Store:       jobStore,
		Generator:   gen,
		Documents:   app.Documents,
		Activity:    activityLog,
		Subjects:    app.Subjects,
		Queue:       app.Queue,
		MaxAttempts: app.Config.MaxAttempts,
		CacheTTL:    app.Config.CacheTTL,
	}
	return nil
}

func pollOptions(cfg config.Config) engine.PollOptions {
	return engine.PollOptions{
		Interval: cfg.StatusPollInterval,
		Window:   cfg.StatusPollWindow,
		MaxPolls: cfg.StatusPollMax,
	}
}

// Poller builds the database-polling worker for deployments without a queue.
func (a *App) Poller() *engine.Poller {
	return &engine.Poller{
		Runner:    a.Engine,
		Workers:   a.Config.WorkerConcurrency,
		IdleDelay: a.Config.WorkerPollInterval,
	}
}

// Janitor builds the stale-lease and checkpoint GC sweeper. In queue mode it
// also re-publishes jobs whose message never reached a worker.
func (a *App) Janitor() *engine.Janitor {
	j := &engine.Janitor{
		Sweeper:      a.Engine,
		StaleAfter:   a.Config.StaleAfter,
		CompletedTTL: a.Config.CompletedTTL,
		AbandonedTTL: a.Config.AbandonedTTL,
	}
	if strings.TrimSpace(a.Config.SQSQueueURL) != "" {
		j.PendingAfter = a.Config.PendingAfter
	}
	return j
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
