package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Local development convenience; absent .env files are fine.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "reviewer",
		Short: "LLM-backed pull request reviewer",
		Long: `reviewer fetches a pull request's diff, has an LLM critique it in
batches, and posts the findings back as an anchored review.

It runs in two modes:

  reviewer run            # review one PR and exit (GitHub Actions mode)
  reviewer serve          # long-running webhook server`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
