package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists the activity log in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

// New wraps an existing pool. The pool's owner closes it.
func New(pool DBPool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  time.Now,
	}
}

const sqlCreateActivityLogs = `
        CREATE TABLE IF NOT EXISTS activity_logs (
            id UUID PRIMARY KEY,
            account TEXT NOT NULL,
            action TEXT NOT NULL,
            success BOOLEAN NOT NULL,
            message TEXT NOT NULL DEFAULT '',
            details JSONB NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL
        );
    `

const sqlCreateActivityIndex = `
        CREATE INDEX IF NOT EXISTS activity_logs_account_created_idx
            ON activity_logs (account, created_at DESC);
    `

// Migrate creates the activity_logs table and its index in one transaction.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	for _, stmt := range []string{sqlCreateActivityLogs, sqlCreateActivityIndex} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const sqlInsertActivity = `
        INSERT INTO activity_logs (id, account, action, success, message, details, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `

// Record inserts one entry. Missing IDs and timestamps are filled in.
func (s *Store) Record(ctx context.Context, entry schemas.ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}

	details := []byte("{}")
	if len(entry.Details) > 0 {
		encoded, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
		details = encoded
	}

	_, err := s.pool.Exec(ctx, sqlInsertActivity,
		entry.ID, entry.Account, entry.Action, entry.Success, entry.Message,
		details, entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity %s: %w", entry.Action, err)
	}
	return nil
}

const sqlSelectRecent = `
        SELECT id, account, action, success, message, details, created_at
        FROM activity_logs
        WHERE account = $1
        ORDER BY created_at DESC
        LIMIT $2;
    `

// Recent returns up to limit entries for account, newest first.
func (s *Store) Recent(ctx context.Context, account string, limit int) ([]schemas.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, sqlSelectRecent, account, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var entries []schemas.ActivityEntry
	for rows.Next() {
		var (
			e       schemas.ActivityEntry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.Account, &e.Action, &e.Success, &e.Message, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details of activity %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}
