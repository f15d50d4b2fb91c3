package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"docgen-backend/internal/shared/telemetry"
)

// Options controls the job store connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

var openDB = sql.Open

// DefaultServerOptions sizes the pool for api and worker processes. Each
// generating worker holds at most one connection at a time, so the pool only
// needs to cover WORKER_CONCURRENCY plus request traffic.
func DefaultServerOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     5 * time.Second,
	}
}

// DefaultCLIOptions sizes the pool for migrate and jobctl.
func DefaultCLIOptions() Options {
	return Options{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     5 * time.Second,
	}
}

// OptionsFromEnv overrides defaults with DB_* env vars. Unparseable or
// non-positive values keep the default.
func OptionsFromEnv(defaults Options) Options {
	v := viper.New()
	v.AutomaticEnv()

	opts := defaults
	opts.MaxOpenConns = envPositiveInt(v, "DB_MAX_OPEN_CONNS", opts.MaxOpenConns)
	opts.MaxIdleConns = envPositiveInt(v, "DB_MAX_IDLE_CONNS", opts.MaxIdleConns)
	opts.ConnMaxLifetime = envPositiveDuration(v, "DB_CONN_MAX_LIFETIME", opts.ConnMaxLifetime)
	opts.ConnMaxIdleTime = envPositiveDuration(v, "DB_CONN_MAX_IDLE_TIME", opts.ConnMaxIdleTime)
	opts.PingTimeout = envPositiveDuration(v, "DB_PING_TIMEOUT", opts.PingTimeout)
	return opts
}

func envPositiveInt(v *viper.Viper, key string, def int) int {
	if !v.IsSet(key) {
		return def
	}
	if n := v.GetInt(key); n > 0 {
		return n
	}
	telemetry.Warn("db.env.invalid", map[string]any{"key": key, "value": v.GetString(key)})
	return def
}

func envPositiveDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if !v.IsSet(key) {
		return def
	}
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	telemetry.Warn("db.env.invalid", map[string]any{"key": key, "value": v.GetString(key)})
	return def
}

// Connect opens the pgx-backed pool and verifies it with a ping. Callers share
// the returned *sql.DB across every repository.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applyOptions(db, opts)

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	stats := db.Stats()
	telemetry.Info("db.connected", map[string]any{
		"max_open":      stats.MaxOpenConnections,
		"max_idle":      opts.MaxIdleConns,
		"open":          stats.OpenConnections,
		"ping_timeout":  pingTimeout.String(),
		"conn_lifetime": opts.ConnMaxLifetime.String(),
	})
	return db, nil
}

func applyOptions(db *sql.DB, opts Options) {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = time.Hour
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

// RegisterPoolMetrics exports pool counters as go_sql_* series labelled
// db_name="docgen". Registering the same pool twice is a no-op.
func RegisterPoolMetrics(reg prometheus.Registerer, db *sql.DB) error {
	if reg == nil || db == nil {
		return nil
	}
	err := reg.Register(collectors.NewDBStatsCollector(db, "docgen"))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}
