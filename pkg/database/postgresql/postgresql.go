package postgresql

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/S1riyS/vnodefs/internal/config"
	"github.com/S1riyS/vnodefs/pkg/logging"
	"github.com/S1riyS/vnodefs/pkg/logging/slogext"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Client interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	instance *pgxpool.Pool
	once     sync.Once
)

// NewClient opens a pool and checks that the database answers within
// timeout.
func NewClient(ctx context.Context, cfg config.DatabaseConfig, timeout time.Duration) (*pgxpool.Pool, error) {
	const op = "postgresql.NewClient"

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%s: create pool: %w", op, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err = pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return pool, nil
}

func MustNewClient(ctx context.Context, cfg config.DatabaseConfig, timeout time.Duration) *pgxpool.Pool {
	once.Do(func() {
		const op = "postgresql.MustNewClient"

		logger := logging.GetLoggerFromContextWithOp(ctx, op)

		pool, err := NewClient(ctx, cfg, timeout)
		if err != nil {
			logger.Error("Failed to connect to database", slogext.Err(err))
			panic(err)
		}

		logger.Info("Connected to database")
		instance = pool
	})

	return instance
}
