package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/devploy/playground-paas/internal/core/domain"
)

// Store is the sqlite-backed implementation of ports.HistoryStore. Rows are
// append-only: the single UPDATE path only touches rows whose stopped_at is
// still NULL, so a finalized entry can never be rewritten.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		app_name TEXT NOT NULL,
		repository TEXT NOT NULL,
		container_id TEXT NOT NULL,
		host_port INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		stopped_at TEXT,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_started ON deployments(started_at);
	CREATE INDEX IF NOT EXISTS idx_deployments_open ON deployments(stopped_at) WHERE stopped_at IS NULL;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Create appends a new entry.
func (s *Store) Create(ctx context.Context, entry domain.HistoryEntry) error {
	var stoppedAt sql.NullString
	if entry.StoppedAt != nil {
		stoppedAt = sql.NullString{String: entry.StoppedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments (id, app_name, repository, container_id, host_port, started_at, stopped_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AppName, entry.Repository, entry.ContainerID, entry.HostPort,
		entry.StartedAt.UTC().Format(time.RFC3339Nano), stoppedAt, string(entry.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// Finalize closes an open entry. Finalizing an entry that is already closed
// (or unknown) changes nothing.
func (s *Store) Finalize(ctx context.Context, id string, stoppedAt time.Time, status domain.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deployments SET stopped_at = ?, status = ?
		WHERE id = ? AND stopped_at IS NULL`,
		stoppedAt.UTC().Format(time.RFC3339Nano), string(status), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize history entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, app_name, repository, container_id, host_port, started_at, stopped_at, status
		FROM deployments ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Open returns all entries that have not been finalized.
func (s *Store) Open(ctx context.Context) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, app_name, repository, container_id, host_port, started_at, stopped_at, status
		FROM deployments WHERE stopped_at IS NULL ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open history entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e         domain.HistoryEntry
			startedAt string
			stoppedAt sql.NullString
			status    string
		)
		if err := rows.Scan(&e.ID, &e.AppName, &e.Repository, &e.ContainerID, &e.HostPort, &startedAt, &stoppedAt, &status); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		t, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		e.StartedAt = t

		if stoppedAt.Valid {
			st, err := time.Parse(time.RFC3339Nano, stoppedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse stopped_at: %w", err)
			}
			e.StoppedAt = &st
		}
		e.Status = domain.Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
