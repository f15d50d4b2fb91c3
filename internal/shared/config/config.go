package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"docgen-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	DatabaseURL     string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	SQSQueueURL     string

	CORSAllowOrigin []string
	APIKeys         []string
	RateLimitRPS    float64
	RateLimitBurst  int

	LLMProvider  string
	LLMModel     string
	OpenAIAPIKey string
	OpenAIBase   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheTTL          time.Duration
	GenerationRPS     float64
	GenerationBurst   int
	GenerationTimeout time.Duration

	MaxAttempts        int
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	StaleAfter         time.Duration
	PendingAfter       time.Duration
	CompletedTTL       time.Duration
	AbandonedTTL       time.Duration

	StatusPollInterval time.Duration
	StatusPollWindow   time.Duration
	StatusPollMax      int
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"ENV":                     "dev",
	"LOG_LEVEL":               "info",
	"OBJECT_STORE":            "local",
	"LOCAL_STORE_DIR":         "./data",
	"LLM_PROVIDER":            "openai",
	"LLM_MODEL":               "gpt-4o-mini",
	"REDIS_DB":                0,
	"CACHE_TTL":               24 * time.Hour,
	"GENERATION_RPS":          2.0,
	"GENERATION_BURST":        4,
	"GENERATION_TIMEOUT":      60 * time.Second,
	"ENGINE_MAX_ATTEMPTS":     5,
	"WORKER_CONCURRENCY":      2,
	"WORKER_POLL_INTERVAL":    2 * time.Second,
	"WORKER_STALE_AFTER":      15 * time.Minute,
	"PENDING_REPUBLISH_AFTER": 10 * time.Minute,
	"GC_COMPLETED_TTL":        7 * 24 * time.Hour,
	"GC_ABANDONED_TTL":        30 * 24 * time.Hour,
	"STATUS_POLL_INTERVAL":    3 * time.Second,
	"STATUS_POLL_WINDOW":      10 * time.Second,
	"STATUS_POLL_MAX":         10,
	"DATABASE_URL":            "",
	"AWS_REGION":              "",
	"S3_BUCKET":               "",
	"S3_PREFIX":               "",
	"SSE_KMS_KEY_ID":          "",
	"SQS_QUEUE_URL":           "",
	"OPENAI_API_KEY":          "",
	"OPENAI_BASE_URL":         "",
	"REDIS_ADDR":              "",
	"REDIS_PASSWORD":          "",
	"CORS_ALLOW_ORIGIN":       "http://localhost:5173",
	"API_KEYS":                "",
	"RATE_LIMIT_RPS":          5.0,
	"RATE_LIMIT_BURST":        20,
}

// Load reads configuration from environment variables and an optional .env file.
func Load() Config {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	// Best-effort load of a local env file for dev convenience.
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		telemetry.Debug("config.env_file.skipped", map[string]any{"error": err.Error()})
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	env := normalizeEnv(v.GetString("ENV"))
	dbURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if env == "production" && dbURL == "" {
		telemetry.Warn("config.database_url.missing", map[string]any{"env": env})
	}

	return Config{
		Port:               v.GetString("PORT"),
		Env:                env,
		LogLevel:           v.GetString("LOG_LEVEL"),
		DatabaseURL:        dbURL,
		ObjectStoreType:    normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:      v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:          v.GetString("AWS_REGION"),
		S3Bucket:           v.GetString("S3_BUCKET"),
		S3Prefix:           v.GetString("S3_PREFIX"),
		SSEKMSKeyID:        v.GetString("SSE_KMS_KEY_ID"),
		SQSQueueURL:        v.GetString("SQS_QUEUE_URL"),
		CORSAllowOrigin:    splitList(v.GetString("CORS_ALLOW_ORIGIN")),
		APIKeys:            splitList(v.GetString("API_KEYS")),
		RateLimitRPS:       v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:     positive(v.GetInt("RATE_LIMIT_BURST"), 1),
		LLMProvider:        strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER"))),
		LLMModel:           v.GetString("LLM_MODEL"),
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		OpenAIBase:         v.GetString("OPENAI_BASE_URL"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		CacheTTL:           v.GetDuration("CACHE_TTL"),
		GenerationRPS:      v.GetFloat64("GENERATION_RPS"),
		GenerationBurst:    positive(v.GetInt("GENERATION_BURST"), 1),
		GenerationTimeout:  v.GetDuration("GENERATION_TIMEOUT"),
		MaxAttempts:        positive(v.GetInt("ENGINE_MAX_ATTEMPTS"), 5),
		WorkerConcurrency:  positive(v.GetInt("WORKER_CONCURRENCY"), 1),
		WorkerPollInterval: v.GetDuration("WORKER_POLL_INTERVAL"),
		StaleAfter:         v.GetDuration("WORKER_STALE_AFTER"),
		PendingAfter:       v.GetDuration("PENDING_REPUBLISH_AFTER"),
		CompletedTTL:       v.GetDuration("GC_COMPLETED_TTL"),
		AbandonedTTL:       v.GetDuration("GC_ABANDONED_TTL"),
		StatusPollInterval: v.GetDuration("STATUS_POLL_INTERVAL"),
		StatusPollWindow:   v.GetDuration("STATUS_POLL_WINDOW"),
		StatusPollMax:      positive(v.GetInt("STATUS_POLL_MAX"), 1),
	}
}

func positive(val, def int) int {
	if val <= 0 {
		return def
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
