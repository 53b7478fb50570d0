package submitter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pr-diff-review/internal/domain"
	"pr-diff-review/internal/types"
)

// PlatformClient is the review-hosting side of submission. The GitHub client
// implements it; tests substitute a fake.
type PlatformClient interface {
	CreateReview(ctx context.Context, pr *domain.PullRequest, body string,
		comments []domain.Comment, disposition domain.Disposition) error
	CreateIssueComment(ctx context.Context, pr *domain.PullRequest, body string) error
}

// Options bound submission behavior. Zero values pick defaults.
type Options struct {
	MaxCommentsPerCall int
	MaxAttempts        int
	Backoff            time.Duration
	MaxBackoff         time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxCommentsPerCall <= 0 {
		out.MaxCommentsPerCall = 30
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.Backoff <= 0 {
		out.Backoff = time.Second
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 30 * time.Second
	}
	return out
}

// ChunkResult records the fate of one review call.
type ChunkResult struct {
	Index    int
	Comments int
	Err      error
}

// Outcome reports what actually landed on the pull request. The submission
// itself is never mutated, so a failed run can be retried or persisted as-is.
type Outcome struct {
	Chunks    []ChunkResult
	Delivered int
	FellBack  bool
}

// Failed returns the chunk results that ended in error.
func (o *Outcome) Failed() []ChunkResult {
	var out []ChunkResult
	for _, c := range o.Chunks {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// Submitter delivers an assembled submission to the platform, splitting large
// comment sets across calls and retrying transient failures per call.
type Submitter struct {
	client PlatformClient
	opts   Options
}

func New(client PlatformClient, opts Options) *Submitter {
	return &Submitter{client: client, opts: opts.withDefaults()}
}

// Submit posts the review. The first chunk carries the summary and the
// verdict; follow-up chunks are plain comment batches. Chunks that exhaust
// their retries are collected and posted once more as a single issue comment
// so the critique is not silently lost.
func (s *Submitter) Submit(ctx context.Context, pr *domain.PullRequest, sub *domain.ReviewSubmission) (*Outcome, error) {
	chunks := chunkComments(sub.Comments, s.opts.MaxCommentsPerCall)
	outcome := &Outcome{}

	if len(chunks) == 0 {
		err := s.withRetry(ctx, func() error {
			return s.client.CreateReview(ctx, pr, sub.Summary, nil, sub.Disposition)
		})
		outcome.Chunks = []ChunkResult{{Index: 0, Err: err}}
		if err != nil {
			return outcome, fmt.Errorf("submit review: %w", err)
		}
		return outcome, nil
	}

	var undelivered []domain.Comment
	for i, chunk := range chunks {
		body := sub.Summary
		disposition := sub.Disposition
		if i > 0 {
			body = fmt.Sprintf("## AI Code Review (continued %d/%d)", i+1, len(chunks))
			disposition = domain.DispositionComment
		}

		err := s.withRetry(ctx, func() error {
			return s.client.CreateReview(ctx, pr, body, chunk, disposition)
		})
		outcome.Chunks = append(outcome.Chunks, ChunkResult{Index: i, Comments: len(chunk), Err: err})
		if err != nil {
			slog.Error("Review chunk failed", "chunk", i, "comments", len(chunk), "error", err)
			undelivered = append(undelivered, chunk...)
			continue
		}
		outcome.Delivered += len(chunk)
	}

	if len(undelivered) == 0 {
		return outcome, nil
	}

	fallbackErr := s.withRetry(ctx, func() error {
		return s.client.CreateIssueComment(ctx, pr, fallbackBody(undelivered))
	})
	if fallbackErr != nil {
		return outcome, fmt.Errorf("submit review: %d comment(s) undeliverable: %w",
			len(undelivered), fallbackErr)
	}
	outcome.FellBack = true
	outcome.Delivered += len(undelivered)
	return outcome, nil
}

// withRetry runs fn with capped exponential backoff. Permanent errors abort
// immediately; only errors marked transient earn another attempt.
func (s *Submitter) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if !s.backoff(ctx, attempt-1) {
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !types.IsRetryable(err) {
			return err
		}
		slog.Warn("Transient submission failure", "attempt", attempt+1, "error", err)
	}
	return err
}

// backoff sleeps with exponential backoff, respecting context.
func (s *Submitter) backoff(ctx context.Context, attempt int) bool {
	d := s.opts.Backoff * time.Duration(1<<attempt)
	if d > s.opts.MaxBackoff {
		d = s.opts.MaxBackoff
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func chunkComments(comments []domain.Comment, size int) [][]domain.Comment {
	var out [][]domain.Comment
	for len(comments) > 0 {
		n := size
		if n > len(comments) {
			n = len(comments)
		}
		out = append(out, comments[:n])
		comments = comments[n:]
	}
	return out
}

// fallbackBody renders undeliverable comments grouped by file for a single
// issue comment.
func fallbackBody(comments []domain.Comment) string {
	byFile := make(map[string][]domain.Comment)
	var order []string
	for _, c := range comments {
		if _, ok := byFile[c.File]; !ok {
			order = append(order, c.File)
		}
		byFile[c.File] = append(byFile[c.File], c)
	}

	var sb strings.Builder
	sb.WriteString("## AI Code Review (Fallback)\n\nUnable to create inline comments. Summary:\n\n")
	for _, file := range order {
		fmt.Fprintf(&sb, "### `%s`\n", file)
		for _, c := range byFile[file] {
			fmt.Fprintf(&sb, "- Position ~%d: %s\n", c.Pos, c.Message)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
