package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DefaultSlowQueryThreshold is the duration above which a query is logged as slow.
const DefaultSlowQueryThreshold = 500 * time.Millisecond

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

type poolOptions struct {
	maxConns      int32
	logger        logrus.FieldLogger
	slowThreshold time.Duration
}

// PoolOption configures NewPool.
type PoolOption func(*poolOptions)

// WithMaxConns caps the pool size. Values <= 0 keep the pgx default.
func WithMaxConns(n int32) PoolOption {
	return func(o *poolOptions) { o.maxConns = n }
}

// WithLogger enables query tracing: slow queries log at warn, failures at debug.
func WithLogger(l logrus.FieldLogger) PoolOption {
	return func(o *poolOptions) { o.logger = l }
}

// WithSlowQueryThreshold overrides DefaultSlowQueryThreshold.
func WithSlowQueryThreshold(d time.Duration) PoolOption {
	return func(o *poolOptions) { o.slowThreshold = d }
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string, opts ...PoolOption) (*Pool, error) {
	o := poolOptions{slowThreshold: DefaultSlowQueryThreshold}
	for _, opt := range opts {
		opt(&o)
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if o.maxConns > 0 {
		config.MaxConns = o.maxConns
	}
	if o.logger != nil {
		config.ConnConfig.Tracer = &queryTracer{logger: o.logger, threshold: o.slowThreshold, now: time.Now}
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

type traceStartKey struct{}

type traceStart struct {
	at  time.Time
	sql string
}

// queryTracer implements pgx.QueryTracer.
type queryTracer struct {
	logger    logrus.FieldLogger
	threshold time.Duration
	now       func() time.Time
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceStartKey{}, traceStart{at: t.now(), sql: data.SQL})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(traceStartKey{}).(traceStart)
	if !ok {
		return
	}
	elapsed := t.now().Sub(start.at)
	fields := logrus.Fields{
		"operation": queryOperation(start.sql),
		"duration":  elapsed.String(),
	}

	switch {
	case data.Err != nil:
		t.logger.WithFields(fields).WithError(data.Err).Debug("postgres query failed")
	case elapsed >= t.threshold:
		t.logger.WithFields(fields).Warn("slow postgres query")
	}
}

// queryOperation returns the leading SQL keyword, lowercased.
func queryOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	// Use pgconn.PgError for reliable error code detection
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
