package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"pr-diff-review/internal/client"
	"pr-diff-review/internal/config"
	"pr-diff-review/internal/github"
	"pr-diff-review/internal/pipeline"
	"pr-diff-review/internal/storage"
	"pr-diff-review/internal/submitter"
)

// app wires the pipeline together for both run and serve modes.
type app struct {
	cfg    *config.Config
	runner *pipeline.Runner
	store  storage.Repository
}

func newApp(cfg *config.Config) (*app, error) {
	var gh *github.Client
	var err error
	if cfg.GitHub.BaseURL != "" {
		gh, err = github.NewClientWithBaseURL(cfg.GitHub.Token, cfg.GitHub.BaseURL)
		if err != nil {
			return nil, err
		}
	} else {
		gh = github.NewClient(cfg.GitHub.Token)
	}

	model := client.NewLLMClient(cfg)

	opts := pipeline.Options{
		Language:        cfg.Review.Language,
		ExcludeGlobs:    cfg.Review.Exclude,
		MaxTokens:       cfg.Review.MaxTokensPerBatch,
		MaxHunks:        cfg.Review.MaxHunksPerBatch,
		ParallelBatches: cfg.Review.ParallelBatches,
		RetryAttempts:   cfg.Review.Retry.Attempts,
		RetryBackoff:    cfg.Review.Retry.Backoff,
		MaxBackoff:      cfg.Review.Retry.MaxBackoff,
		PromptDir:       cfg.Prompts.Dir,
		Submit: submitter.Options{
			MaxCommentsPerCall: cfg.Review.MaxCommentsPerCall,
			MaxAttempts:        cfg.Review.Retry.Attempts,
			Backoff:            cfg.Review.Retry.Backoff,
			MaxBackoff:         cfg.Review.Retry.MaxBackoff,
		},
	}

	a := &app{
		cfg:    cfg,
		runner: pipeline.NewRunner(gh, model, opts),
	}

	if cfg.Storage.Driver == "sqlite" {
		a.store, err = storage.NewSQLiteRepository(cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
	}
	return a, nil
}

// Review runs the pipeline for one PR and persists the outcome. It satisfies
// webhook.Reviewer.
func (a *app) Review(ctx context.Context, owner, repo string, number int) error {
	res, err := a.runner.Run(ctx, owner, repo, number)
	a.persist(ctx, res, err)
	if err != nil {
		return err
	}

	slog.Info("Review complete",
		"pr", res.PullRequest.Slug(),
		"comments", len(res.Submission.Comments),
		"disposition", res.Submission.Disposition,
		"batches", res.Batches,
		"degraded", res.Degraded,
		"duration", res.Duration)
	return nil
}

func (a *app) persist(ctx context.Context, res *pipeline.Result, runErr error) {
	if a.store == nil || res == nil || res.PullRequest == nil {
		return
	}

	status := "success"
	switch {
	case runErr != nil:
		status = "error"
	case res.Degraded > 0 || (res.Outcome != nil && res.Outcome.FellBack):
		status = "partial"
	}

	record := &storage.RunRecord{
		ID:          newRunID(),
		PullRequest: res.PullRequest,
		Submission:  res.Submission,
		CreatedAt:   time.Now().UTC(),
		DurationMs:  res.Duration.Milliseconds(),
		Degraded:    res.Degraded,
		Status:      status,
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Storage.Timeout)
	defer cancel()
	if err := a.store.SaveRun(saveCtx, record); err != nil {
		slog.Warn("persist run failed", "error", err)
	}
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

func newRunID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
