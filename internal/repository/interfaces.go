package repository

import (
	"context"

	"github.com/rpattn/rollcall/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool the repositories rely on.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RollCallRepository persists roll calls as one row per ballot.
type RollCallRepository interface {
	// EnsureSchema creates the destination tables when they are missing.
	EnsureSchema(ctx context.Context) error
	// Write stores every ballot of one roll call in a single transaction and
	// returns the number of rows inserted. Rows already present are skipped.
	Write(ctx context.Context, header domain.VoteHeader, ballots []domain.BallotRecord) (int, error)
	List(ctx context.Context, filter RowFilter) ([]domain.StoredRow, error)
	Count(ctx context.Context, filter RowFilter) (int64, error)
}

// RowFilter narrows List and Count. Empty fields match everything.
type RowFilter struct {
	Congress       string
	Session        string
	RollCallNumber string
	Limit          int
	Offset         int
}

// IngestionLogRepository stores skipped roll calls and ballots for later review.
type IngestionLogRepository interface {
	Record(ctx context.Context, entry domain.IngestionLogEntry) error
	ListByRun(ctx context.Context, runID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error)
}
