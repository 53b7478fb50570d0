package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"pr-diff-review/internal/assembler"
	"pr-diff-review/internal/batcher"
	"pr-diff-review/internal/diffparse"
	"pr-diff-review/internal/domain"
	"pr-diff-review/internal/findings"
	"pr-diff-review/internal/llm"
	"pr-diff-review/internal/metrics"
	"pr-diff-review/internal/position"
	"pr-diff-review/internal/prompt"
	"pr-diff-review/internal/submitter"
	"pr-diff-review/internal/types"
)

// Platform is everything the pipeline needs from the review host.
type Platform interface {
	submitter.PlatformClient
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*domain.PullRequest, error)
	FetchDiff(ctx context.Context, pr *domain.PullRequest) (string, error)
}

// Options configure a Runner.
type Options struct {
	Language        string
	ExcludeGlobs    []string
	MaxTokens       int
	MaxHunks        int
	ParallelBatches int
	RetryAttempts   int
	RetryBackoff    time.Duration
	MaxBackoff      time.Duration
	Submit          submitter.Options
	PromptDir       string
}

// Result is what a completed run reports back to callers and storage.
type Result struct {
	PullRequest *domain.PullRequest
	Submission  *domain.ReviewSubmission
	Outcome     *submitter.Outcome
	Batches     int
	Degraded    int
	Duration    time.Duration
}

// Runner drives one pull request through the whole pipeline: fetch, parse,
// batch, critique, assemble, submit.
type Runner struct {
	platform Platform
	model    llm.Client
	opts     Options

	builder *prompt.Builder
	parser  *findings.Parser
}

func NewRunner(platform Platform, model llm.Client, opts Options) *Runner {
	if opts.ParallelBatches <= 0 {
		opts.ParallelBatches = 3
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Runner{
		platform: platform,
		model:    model,
		opts:     opts,
		builder:  prompt.NewBuilder(prompt.NewLoader(opts.PromptDir), opts.Language),
		parser:   findings.NewParser(),
	}
}

// Run reviews one pull request end to end.
func (r *Runner) Run(ctx context.Context, owner, repo string, number int) (*Result, error) {
	start := time.Now()
	res, err := r.run(ctx, owner, repo, number)
	elapsed := time.Since(start)

	if err != nil {
		metrics.ReviewsTotal.WithLabelValues("failed").Inc()
		metrics.ReviewDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		return res, err
	}
	res.Duration = elapsed
	metrics.ReviewsTotal.WithLabelValues("success").Inc()
	metrics.ReviewDuration.WithLabelValues("success").Observe(elapsed.Seconds())
	return res, nil
}

func (r *Runner) run(ctx context.Context, owner, repo string, number int) (*Result, error) {
	pr, err := r.platform.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	slog.Info("Reviewing pull request", "pr", pr.Slug(), "title", pr.Title)

	diffText, err := r.platform.FetchDiff(ctx, pr)
	if err != nil {
		return nil, err
	}

	diff, report, err := diffparse.Parse(diffText)
	if err != nil {
		var malformed *diffparse.MalformedDiffError
		if errors.As(err, &malformed) {
			return nil, fmt.Errorf("diff for %s is unusable: %w", pr.Slug(), err)
		}
		return nil, err
	}
	for range report.Skipped {
		metrics.DiffFilesSkipped.Inc()
	}

	b := batcher.New(r.opts.MaxTokens, r.opts.MaxHunks, r.opts.ExcludeGlobs)
	batches := b.Plan(diff)
	slog.Info("Planned review batches",
		"pr", pr.Slug(), "files", len(diff.Files), "hunks", diff.HunkCount(), "batches", len(batches))

	results := r.critique(ctx, pr, batches)

	asm := assembler.New(position.NewMapper(diff))
	submission := asm.Assemble(results, report)
	countFindings(results, submission)

	sub := submitter.New(r.platform, r.opts.Submit)
	outcome, err := sub.Submit(ctx, pr, submission)

	result := &Result{
		PullRequest: pr,
		Submission:  submission,
		Outcome:     outcome,
		Batches:     len(batches),
		Degraded:    countDegraded(results),
	}
	if err != nil {
		metrics.SubmissionFailures.WithLabelValues("fallback").Inc()
		return result, err
	}
	if outcome != nil && len(outcome.Failed()) > 0 {
		metrics.SubmissionFailures.WithLabelValues("inline").Inc()
	}
	return result, nil
}

// critique fans batches out to the model with bounded parallelism. A batch
// failure never cancels its siblings; it just records a degraded result, so
// one bad response costs one batch, not the run.
func (r *Runner) critique(ctx context.Context, pr *domain.PullRequest, batches []batcher.Batch) []findings.Result {
	results := make([]findings.Result, len(batches))

	g := &errgroup.Group{}
	g.SetLimit(r.opts.ParallelBatches)
	for i := range batches {
		batch := &batches[i]
		idx := i
		g.Go(func() error {
			results[idx] = r.reviewBatch(ctx, pr, batch)
			return nil
		})
	}
	g.Wait()

	for i := range results {
		switch {
		case results[i].Degraded:
			metrics.BatchesTotal.WithLabelValues("degraded").Inc()
		default:
			metrics.BatchesTotal.WithLabelValues("success").Inc()
		}
	}
	return results
}

func (r *Runner) reviewBatch(ctx context.Context, pr *domain.PullRequest, batch *batcher.Batch) findings.Result {
	text, err := r.builder.Build(pr, batch)
	if err != nil {
		return findings.Result{
			BatchID:  batch.ID,
			Degraded: true,
			Reason:   fmt.Sprintf("build prompt: %v", err),
		}
	}

	raw, err := r.query(ctx, text)
	if err != nil {
		slog.Error("Batch critique failed", "pr", pr.Slug(), "batch", batch.ID, "error", err)
		return findings.Result{
			BatchID:  batch.ID,
			Degraded: true,
			Reason:   fmt.Sprintf("model request failed: %v", err),
		}
	}

	allowed := make(map[string]bool)
	for _, f := range batch.Files() {
		allowed[f] = true
	}
	res := r.parser.Parse(batch.ID, raw, allowed)
	if res.Degraded {
		slog.Warn("Batch response unusable",
			"pr", pr.Slug(), "batch", batch.ID, "reason", res.Reason)
	}
	return res
}

// query sends one prompt, retrying transient model failures with capped
// exponential backoff.
func (r *Runner) query(ctx context.Context, text string) (string, error) {
	var err error
	var raw string
	for attempt := 0; attempt < r.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.opts.RetryBackoff * time.Duration(1<<(attempt-1))
			if backoff > r.opts.MaxBackoff {
				backoff = r.opts.MaxBackoff
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
		raw, err = r.model.SimpleTextQuery(ctx, "", text)
		if err == nil {
			return raw, nil
		}
		if !types.IsRetryable(err) {
			return "", err
		}
		slog.Warn("Transient model failure", "attempt", attempt+1, "error", err)
	}
	return "", err
}

func countDegraded(results []findings.Result) int {
	n := 0
	for _, r := range results {
		if r.Degraded {
			n++
		}
	}
	return n
}

func countFindings(results []findings.Result, sub *domain.ReviewSubmission) {
	for _, c := range sub.Comments {
		metrics.FindingsTotal.WithLabelValues(string(c.Severity), "anchored").Inc()
	}
	for _, r := range results {
		for i := 0; i < r.DroppedForeign+r.DroppedInvalid; i++ {
			metrics.FindingsTotal.WithLabelValues("unknown", "dropped").Inc()
		}
	}
	for i := 0; i < sub.Unresolved; i++ {
		metrics.FindingsTotal.WithLabelValues("unknown", "unresolved").Inc()
	}
}
