package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver, CGO-free, compatible with CGO_ENABLED=0

	"pr-diff-review/internal/domain"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS runs (
        id              TEXT PRIMARY KEY,
        owner           TEXT NOT NULL,
        repo            TEXT NOT NULL,
        pr_number       INTEGER NOT NULL,
        pr_data         TEXT NOT NULL,
        submission_data TEXT NOT NULL,
        created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
        duration_ms     INTEGER,
        degraded        INTEGER NOT NULL DEFAULT 0,
        status          TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_runs_pr ON runs(owner, repo, pr_number);
    CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
    `
	_, err := db.Exec(schema)
	return err
}

func (r *SQLiteRepository) SaveRun(ctx context.Context, record *RunRecord) error {
	prData, err := json.Marshal(record.PullRequest)
	if err != nil {
		return fmt.Errorf("marshal pr: %w", err)
	}

	subData, err := json.Marshal(record.Submission)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO runs (id, owner, repo, pr_number, pr_data, submission_data, duration_ms, degraded, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, record.ID, record.PullRequest.Owner, record.PullRequest.Repo,
		record.PullRequest.Number, string(prData), string(subData),
		record.DurationMs, record.Degraded, record.Status, record.CreatedAt)
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, pr_data, submission_data, created_at, duration_ms, degraded, status
        FROM runs WHERE id = ?
    `, id)
	return scanRun(row)
}

func (r *SQLiteRepository) ListRunsByPR(ctx context.Context, owner, repo string, number int) ([]*RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, pr_data, submission_data, created_at, duration_ms, degraded, status
        FROM runs
        WHERE owner = ? AND repo = ? AND pr_number = ?
        ORDER BY created_at DESC
    `, owner, repo, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (r *SQLiteRepository) ListRecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, pr_data, submission_data, created_at, duration_ms, degraded, status
        FROM runs
        ORDER BY created_at DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func collectRuns(rows *sql.Rows) ([]*RunRecord, error) {
	var runs []*RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			slog.Warn("scan run failed", "error", err)
			continue
		}
		runs = append(runs, record)
	}
	return runs, rows.Err()
}

// Scanner interface to support both Row and Rows
type Scanner interface {
	Scan(dest ...any) error
}

func scanRun(s Scanner) (*RunRecord, error) {
	var id, prData, subData, status string
	var createdAt time.Time
	var durationMs int64
	var degraded int

	if err := s.Scan(&id, &prData, &subData, &createdAt, &durationMs, &degraded, &status); err != nil {
		return nil, err
	}

	var pr domain.PullRequest
	if err := json.Unmarshal([]byte(prData), &pr); err != nil {
		return nil, fmt.Errorf("unmarshal pr: %w", err)
	}

	var sub domain.ReviewSubmission
	if err := json.Unmarshal([]byte(subData), &sub); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}

	return &RunRecord{
		ID:          id,
		PullRequest: &pr,
		Submission:  &sub,
		CreatedAt:   createdAt,
		DurationMs:  durationMs,
		Degraded:    degraded,
		Status:      status,
	}, nil
}
