// Package database owns the connections to the primary store (Postgres) and
// the analytics warehouse (ClickHouse), plus the shared retry policy for
// transient store failures.
package database

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/config"
)

// DefaultQueryTimeout bounds every synchronous store round-trip.
const DefaultQueryTimeout = 2 * time.Second

// NewPostgres opens the sqlx pool against the pgx stdlib driver.
func NewPostgres(cfg *config.Config, log *logrus.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.Pool.Max)
	db.SetMaxIdleConns(cfg.Database.Pool.Min)
	db.SetConnMaxIdleTime(time.Duration(cfg.Database.Pool.IdleTimeout) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.Pool.ConnectionTimeout)*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"component": "database",
		"host":      cfg.Database.Host,
		"database":  cfg.Database.Name,
		"pool_max":  cfg.Database.Pool.Max,
	}).Info("connected to Postgres")
	return db, nil
}

// Transient Postgres error classes that warrant a retry: admin shutdown,
// cannot-connect-now, too-many-connections, and connection failures.
var transientPgCodes = map[string]bool{
	"57P01": true,
	"57P03": true,
	"53300": true,
	"08000": true,
	"08003": true,
	"08006": true,
}

// IsTransient reports whether err is a retryable store failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientPgCodes[pgErr.Code]
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// RetryPolicy is the store-wide backoff schedule: base 100ms, doubling,
// capped at 2s, at most 3 attempts.
type RetryPolicy struct {
	Base     time.Duration
	Max      time.Duration
	Attempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 100 * time.Millisecond, Max: 2 * time.Second, Attempts: 3}
}

// WithRetry runs op, retrying transient failures per the policy. Context
// cancellation stops the loop immediately.
func WithRetry(ctx context.Context, policy RetryPolicy, op func(context.Context) error) error {
	delay := policy.Base
	var err error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		err = op(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == policy.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > policy.Max {
			delay = policy.Max
		}
	}
	return err
}
