package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/S1riyS/vnodefs/internal/models"
	"github.com/S1riyS/vnodefs/pkg/database/postgresql"
	"github.com/S1riyS/vnodefs/pkg/logging"
	"github.com/S1riyS/vnodefs/pkg/logging/slogext"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// EventRepository stores the journal of structural changes.
type EventRepository interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, events ...*models.Event) error
	List(ctx context.Context, limit int) ([]models.Event, error)
}

type eventRepository struct {
	db    postgresql.Client
	table string
}

// NewEventRepository returns a Postgres backed repository writing to table.
func NewEventRepository(db postgresql.Client, table string) EventRepository {
	return &eventRepository{
		db:    db,
		table: pq.QuoteIdentifier(table),
	}
}

func (r *eventRepository) EnsureSchema(ctx context.Context) error {
	const op = "repository.eventRepository.EnsureSchema"

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         BIGSERIAL PRIMARY KEY,
			op         TEXT        NOT NULL,
			path       TEXT        NOT NULL,
			target     TEXT        NOT NULL DEFAULT '',
			ino        BIGINT      NOT NULL,
			request_id TEXT        NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, r.table)

	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *eventRepository) insertQuery() string {
	return fmt.Sprintf(`
		INSERT INTO %s (op, path, target, ino, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, r.table)
}

func (r *eventRepository) Save(ctx context.Context, events ...*models.Event) error {
	const op = "repository.eventRepository.Save"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	query := r.insertQuery()

	err := postgresql.WithTransaction(ctx, r.db, func(ctx context.Context) error {
		db := postgresql.GetDBClient(ctx, r.db)
		for _, e := range events {
			// BIGINT is signed; inode numbers never reach the top bit.
			err := db.QueryRow(ctx, query,
				string(e.Op), e.Path, e.Target, int64(e.Ino), e.RequestID, e.CreatedAt,
			).Scan(&e.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			logger.Error("Failed to save events", slogext.Err(err),
				slog.String("sqlstate", pgErr.Code),
				slog.String("condition", pq.ErrorCode(pgErr.Code).Name()),
			)
		} else {
			logger.Error("Failed to save events", slogext.Err(err))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *eventRepository) List(ctx context.Context, limit int) ([]models.Event, error) {
	const op = "repository.eventRepository.List"

	query := fmt.Sprintf(`
		SELECT id, op, path, target, ino, request_id, created_at
		FROM %s
		ORDER BY id DESC
		LIMIT $1
	`, r.table)

	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			e   models.Event
			ino int64
		)
		if err := rows.Scan(&e.ID, &e.Op, &e.Path, &e.Target, &ino, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		e.Ino = uint64(ino)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return events, nil
}
