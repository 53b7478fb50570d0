package batcher

import (
	"log/slog"
	"path/filepath"

	"pr-diff-review/internal/domain"
)

// Item is one hunk scheduled for review, tagged with the file it belongs to.
type Item struct {
	Path string
	Hunk *domain.Hunk
}

// Batch is a group of hunks that fits within the per-request token budget.
// A hunk is never split across batches.
type Batch struct {
	ID           int
	TotalBatches int
	Items        []Item
	TokenCount   int
}

// Files lists the distinct file paths in the batch, in first-seen order.
func (b *Batch) Files() []string {
	seen := make(map[string]bool, len(b.Items))
	var out []string
	for _, it := range b.Items {
		if !seen[it.Path] {
			seen[it.Path] = true
			out = append(out, it.Path)
		}
	}
	return out
}

// Batcher packs hunks into batches with a greedy first-fit pass, preserving
// diff order so output stays deterministic for the same input.
type Batcher struct {
	MaxTokensPerBatch int
	MaxHunksPerBatch  int
	ExcludeGlobs      []string
}

// New creates a Batcher with default limits where none are given.
func New(maxTokens, maxHunks int, excludeGlobs []string) *Batcher {
	if maxTokens <= 0 {
		maxTokens = 40000
	}
	if maxHunks <= 0 {
		maxHunks = 64
	}
	return &Batcher{
		MaxTokensPerBatch: maxTokens,
		MaxHunksPerBatch:  maxHunks,
		ExcludeGlobs:      excludeGlobs,
	}
}

// Plan walks the diff and produces the batch list. Binary files, hunkless
// entries (pure renames, mode changes) and excluded paths contribute nothing.
func (b *Batcher) Plan(diff *domain.Diff) []Batch {
	var batches []Batch
	var current []Item
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, Batch{Items: current, TokenCount: currentTokens})
		current = nil
		currentTokens = 0
	}

	for fi := range diff.Files {
		f := &diff.Files[fi]
		if f.Binary || len(f.Hunks) == 0 {
			continue
		}
		if b.Excluded(f.Path) {
			slog.Debug("File excluded from review", "path", f.Path)
			continue
		}

		for hi := range f.Hunks {
			h := &f.Hunks[hi]
			tokens := estimateTokens(h.Chars() + len(f.Path))

			// An oversized hunk travels alone rather than being split.
			if tokens > b.MaxTokensPerBatch {
				flush()
				batches = append(batches, Batch{
					Items:      []Item{{Path: f.Path, Hunk: h}},
					TokenCount: tokens,
				})
				continue
			}

			if currentTokens+tokens > b.MaxTokensPerBatch || len(current) >= b.MaxHunksPerBatch {
				flush()
			}
			current = append(current, Item{Path: f.Path, Hunk: h})
			currentTokens += tokens
		}
	}
	flush()

	total := len(batches)
	for i := range batches {
		batches[i].ID = i + 1
		batches[i].TotalBatches = total
	}
	return batches
}

// Excluded reports whether the path matches any exclusion glob. Globs are
// tried against the full path and against the base name, so "*.lock"
// excludes lock files anywhere in the tree.
func (b *Batcher) Excluded(path string) bool {
	for _, glob := range b.ExcludeGlobs {
		if glob == "" {
			continue
		}
		if ok, _ := filepath.Match(glob, path); ok {
			return true
		}
		if ok, _ := filepath.Match(glob, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// estimateTokens approximates token count as one per four characters.
func estimateTokens(chars int) int {
	return chars / 4
}
