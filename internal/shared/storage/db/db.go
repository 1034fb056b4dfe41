package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"medocs-backend/internal/shared/metrics"
	"medocs-backend/internal/shared/telemetry"
)

// ErrNoDatabaseURL is returned when no connection string is configured.
var ErrNoDatabaseURL = errors.New("DATABASE_URL is empty")

// Profile selects pool defaults for a kind of process.
type Profile int

const (
	ProfileServer Profile = iota
	ProfileLambda
	ProfileCLI
)

// Options controls pool sizing and the startup ping.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultOptions returns the pool defaults for p. Lambda keeps the pool
// tiny since every concurrent invocation holds its own.
func DefaultOptions(p Profile) Options {
	switch p {
	case ProfileLambda:
		return Options{MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxIdleTime: 30 * time.Second, ConnMaxLifetime: 15 * time.Minute, PingTimeout: 3 * time.Second}
	case ProfileCLI:
		return Options{MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxIdleTime: 2 * time.Minute, ConnMaxLifetime: time.Hour, PingTimeout: 10 * time.Second}
	default:
		return Options{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxIdleTime: 2 * time.Minute, ConnMaxLifetime: time.Hour, PingTimeout: 5 * time.Second}
	}
}

// Override returns o with every non-zero field of over applied.
func (o Options) Override(over Options) Options {
	if over.MaxOpenConns > 0 {
		o.MaxOpenConns = over.MaxOpenConns
	}
	if over.MaxIdleConns > 0 {
		o.MaxIdleConns = over.MaxIdleConns
	}
	if over.ConnMaxLifetime > 0 {
		o.ConnMaxLifetime = over.ConnMaxLifetime
	}
	if over.ConnMaxIdleTime > 0 {
		o.ConnMaxIdleTime = over.ConnMaxIdleTime
	}
	if over.PingTimeout > 0 {
		o.PingTimeout = over.PingTimeout
	}
	return o
}

// IsLambdaRuntime reports whether the process runs inside AWS Lambda.
func IsLambdaRuntime() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
}

var openDB = sql.Open

// Connect opens a pgx-backed pool and pings it before returning.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrNoDatabaseURL
	}

	conn, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applyOptions(conn, opts)

	ping := opts.PingTimeout
	if ping <= 0 {
		ping = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, ping)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	metrics.RegisterDBStats(conn)
	stats := conn.Stats()
	telemetry.Info("db.connected", map[string]any{
		"max_open": stats.MaxOpenConnections,
		"open":     stats.OpenConnections,
		"idle":     stats.Idle,
	})
	return conn, nil
}

var shared struct {
	mu   sync.Mutex
	conn *sql.DB
}

// Shared returns one pool per process, connecting on first use. Lambda
// containers are reused across invocations, so the pool outlives a handler
// call. A failed connect is retried by the next caller.
func Shared(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.conn != nil {
		return shared.conn, nil
	}
	conn, err := Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	shared.conn = conn
	return conn, nil
}

func applyOptions(conn *sql.DB, opts Options) {
	opts = DefaultOptions(ProfileServer).Override(opts)
	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
}
