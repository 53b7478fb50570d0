package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pr-diff-review/internal/config"
	"pr-diff-review/internal/github"
)

func newRunCmd() *cobra.Command {
	var (
		owner   string
		repo    string
		number  int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Review one pull request and exit",
		Long: `Review a single pull request. The target comes from flags, or, when
running as a GitHub Actions step, from GITHUB_EVENT_PATH and
GITHUB_REPOSITORY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, cleanup := setupLogger(cfg)
			defer cleanup()
			slog.SetDefault(logger)

			if owner == "" || repo == "" || number == 0 {
				ref, err := refFromEnv()
				if err != nil {
					return fmt.Errorf("no target PR: %w (use --owner/--repo/--pr outside Actions)", err)
				}
				owner, repo, number = ref.Owner, ref.Repo, ref.Number
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return a.Review(ctx, owner, repo, number)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	cmd.Flags().IntVar(&number, "pr", 0, "pull request number")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "overall run timeout")
	return cmd
}

// refFromEnv resolves the target PR from the GitHub Actions environment.
func refFromEnv() (*github.EventRef, error) {
	eventPath := os.Getenv("GITHUB_EVENT_PATH")
	if eventPath == "" {
		return nil, fmt.Errorf("GITHUB_EVENT_PATH not set")
	}

	ref, err := github.ParseEventFile(eventPath)
	if err != nil {
		return nil, err
	}

	// GITHUB_REPOSITORY wins over the payload when both are present; forks
	// can make the payload's repository misleading.
	if full := os.Getenv("GITHUB_REPOSITORY"); full != "" {
		if owner, repo, ok := strings.Cut(full, "/"); ok {
			ref.Owner, ref.Repo = owner, repo
		}
	}
	return ref, nil
}
