package core

// history.go keeps a log of finished import and export runs.
//
//   - MemoryHistory: bounded in-process ring, used when no database is set
//   - PostgresHistory: the run_history table, used when DATABASE_URL is set

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultHistoryLimit caps how many entries a listing returns.
const DefaultHistoryLimit = 100

// HistoryStore records finished runs.
type HistoryStore interface {
	Record(ctx context.Context, entry HistoryEntry) error
	List(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// MemoryHistory holds the most recent entries in memory.
type MemoryHistory struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	max     int
}

// NewMemoryHistory keeps at most max entries (DefaultHistoryLimit if <= 0).
func NewMemoryHistory(max int) *MemoryHistory {
	if max <= 0 {
		max = DefaultHistoryLimit
	}
	return &MemoryHistory{max: max}
}

func (h *MemoryHistory) Record(_ context.Context, entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, entry)
	if over := len(h.entries) - h.max; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (h *MemoryHistory) List(_ context.Context, limit int) ([]HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]HistoryEntry, 0, limit)
	for i := len(h.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.entries[i])
	}
	return out, nil
}

// DBTX is the subset of pgxpool.Pool used by PostgresHistory.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const historySchema = `CREATE TABLE IF NOT EXISTS run_history (
	job_id        TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	file_name     TEXT NOT NULL DEFAULT '',
	total         INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	error_count   INTEGER NOT NULL DEFAULT 0,
	cancelled     BOOLEAN NOT NULL DEFAULT FALSE,
	error         TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL
)`

// PostgresHistory stores entries in the run_history table.
type PostgresHistory struct {
	db DBTX
}

// NewPostgresHistory wraps a pool or connection.
func NewPostgresHistory(db DBTX) *PostgresHistory {
	return &PostgresHistory{db: db}
}

// EnsureSchema creates the run_history table if it does not exist.
func (h *PostgresHistory) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, historySchema); err != nil {
		return fmt.Errorf("create run_history: %w", err)
	}
	return nil
}

func (h *PostgresHistory) Record(ctx context.Context, e HistoryEntry) error {
	_, err := h.db.Exec(ctx, `INSERT INTO run_history
		(job_id, kind, file_name, total, success_count, error_count, cancelled, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO NOTHING`,
		e.JobID, string(e.Kind), e.FileName, e.Total, e.SuccessCount, e.ErrorCount,
		e.Cancelled, e.Error, e.StartedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.JobID, err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (h *PostgresHistory) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := h.db.Query(ctx, `SELECT job_id, kind, file_name, total, success_count,
		error_count, cancelled, error, started_at, finished_at
		FROM run_history ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list run history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		var kind string
		if err := rows.Scan(&e.JobID, &kind, &e.FileName, &e.Total, &e.SuccessCount,
			&e.ErrorCount, &e.Cancelled, &e.Error, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run history: %w", err)
		}
		e.Kind = HistoryKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
