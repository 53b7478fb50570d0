package storage

import (
	"context"
	"time"

	"pr-diff-review/internal/domain"
)

// RunRecord is one persisted review run.
type RunRecord struct {
	ID          string                   `json:"id"`
	PullRequest *domain.PullRequest      `json:"pull_request"`
	Submission  *domain.ReviewSubmission `json:"submission"`
	CreatedAt   time.Time                `json:"created_at"`
	DurationMs  int64                    `json:"duration_ms"`
	Degraded    int                      `json:"degraded"` // count of degraded batches
	Status      string                   `json:"status"`   // success, partial, error
}

// Repository persists review runs.
type Repository interface {
	SaveRun(ctx context.Context, record *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRunsByPR(ctx context.Context, owner, repo string, number int) ([]*RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	Close() error
}
