// Package history persists a record per finished deployment so
// operators can answer "what was deployed where, and when" without
// digging through the publication repository's commit log.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one deployment's terminal record.
type Record struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	Event      string    `json:"event"`
	Repo       string    `json:"repo"`
	Ref        string    `json:"ref"`
	DeployDir  string    `json:"deploy_dir"`
	SourceSHA  string    `json:"source_sha,omitempty"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store persists and retrieves deployment records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	ByDeployDir(ctx context.Context, deployDir string, limit int) ([]Record, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the database at dbPath. Use
// ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		event TEXT NOT NULL,
		repo TEXT NOT NULL,
		ref TEXT NOT NULL,
		deploy_dir TEXT NOT NULL,
		source_sha TEXT,
		outcome TEXT NOT NULL,
		detail TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deploy_dir ON deployments(deploy_dir);
	CREATE INDEX IF NOT EXISTS idx_finished_at ON deployments(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores rec.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deployments
		 (task_id, event, repo, ref, deploy_dir, source_sha, outcome, detail, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.Event, rec.Repo, rec.Ref, rec.DeployDir,
		rec.SourceSHA, rec.Outcome, rec.Detail,
		rec.StartedAt.Unix(), rec.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// Recent returns the newest records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM deployments ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ByDeployDir returns the newest records for one publication path,
// newest first.
func (s *SQLiteStore) ByDeployDir(ctx context.Context, deployDir string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM deployments WHERE deploy_dir = ? ORDER BY id DESC LIMIT ?", deployDir, limit)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

const selectColumns = `SELECT id, task_id, event, repo, ref, deploy_dir, source_sha, outcome, detail, started_at, finished_at`

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var started, finished int64

		err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Event, &rec.Repo, &rec.Ref,
			&rec.DeployDir, &rec.SourceSHA, &rec.Outcome, &rec.Detail, &started, &finished)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}

		rec.StartedAt = time.Unix(started, 0)
		rec.FinishedAt = time.Unix(finished, 0)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
