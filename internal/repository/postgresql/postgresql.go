// Package postgresql implements persistence for users, sessions, feeds,
// entries and the job queue on top of a pgx connection pool.
package postgresql

import (
	"context"
	"fmt"

	opentracing "github.com/opentracing/opentracing-go"

	"go.uber.org/zap"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/zapadapter"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Config defines database configuration, usable for Viper
type Config struct {
	Name           string `mapstructure:"name"`
	Hostname       string `mapstructure:"hostname"`
	Port           string `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"sslmode"`
	LogLevel       string `mapstructure:"log_level"`
	MinConnections int32  `mapstructure:"min_connections"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

// URL assembles the connection URL, scheme is caller supplied since the
// migration tooling registers its driver under "pgx"
func (c *Config) URL(scheme string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%s/%s?sslmode=%s",
		scheme,
		c.Username,
		c.Password,
		c.Hostname,
		c.Port,
		c.Name,
		c.SSLMode)
}

// dbconn is the subset of pool methods the queries run on, it lets tests
// substitute a mock connection for the pool
type dbconn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// rowQuerier is satisfied by both dbconn and pgx.Tx, queries that must be
// callable on either take it
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Repository struct {
	pool   *pgxpool.Pool
	db     dbconn
	tracer opentracing.Tracer
}

func NewZapLogger(logger *zap.Logger) *zapadapter.Logger {
	return zapadapter.NewLogger(logger)
}

// New creates database pool and the repository on top of it
func New(databaseConfig *Config, logger pgx.Logger, tracer opentracing.Tracer) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseConfig.URL("postgres"))
	if err != nil {
		return nil, err
	}
	poolConfig.ConnConfig.Logger = logger
	logLevelMapping := map[string]pgx.LogLevel{
		"trace": pgx.LogLevelTrace,
		"debug": pgx.LogLevelDebug,
		"info":  pgx.LogLevelInfo,
		"warn":  pgx.LogLevelWarn,
		"error": pgx.LogLevelError,
	}
	poolConfig.ConnConfig.LogLevel = logLevelMapping[databaseConfig.LogLevel]
	poolConfig.MaxConns = databaseConfig.MaxConnections
	poolConfig.MinConns = databaseConfig.MinConnections

	pool, err := pgxpool.ConnectConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}
	return &Repository{pool: pool, db: pool, tracer: tracer}, nil
}

// Close releases the underlying pool
func (repository *Repository) Close() {
	if repository.pool != nil {
		repository.pool.Close()
	}
}

// Begin opens a transaction owned by the caller
func (repository *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return repository.db.Begin(ctx)
}

// Healthcheck is needed for application healthchecks
func (repository *Repository) Healthcheck(ctx context.Context) error {
	var alive int
	if err := repository.db.QueryRow(ctx, "select 1").Scan(&alive); err != nil {
		return fmt.Errorf("database healthcheck failed: %w", err)
	}
	return nil
}

func (repository *Repository) setupTracingSpan(ctx context.Context, name string, query string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, repository.tracer, name)
	span.SetTag("component", "repository")
	span.SetTag("db.type", "sql")
	span.SetTag("db.query", query)
	return span, ctx
}
