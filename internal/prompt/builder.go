package prompt

import (
	"fmt"
	"strings"

	"pr-diff-review/internal/batcher"
	"pr-diff-review/internal/domain"
)

// Builder turns a batch of hunks into the model prompt. Rendering is a pure
// function of its inputs so the same batch always yields the same prompt.
type Builder struct {
	loader   *Loader
	language string
}

// NewBuilder creates a Builder. language is the natural language review
// comments should be written in; empty means the model's default.
func NewBuilder(loader *Loader, language string) *Builder {
	return &Builder{loader: loader, language: language}
}

// Build renders the full prompt for one batch.
func (b *Builder) Build(pr *domain.PullRequest, batch *batcher.Batch) (string, error) {
	data := map[string]any{
		"Title":        pr.Title,
		"Body":         pr.Description,
		"Language":     b.language,
		"FileTypes":    DetectFileTypes(batch),
		"Diff":         RenderBatch(batch),
		"BatchID":      batch.ID,
		"TotalBatches": batch.TotalBatches,
	}
	return b.loader.Load(b.language, data)
}

// RenderBatch prints the batch's hunks with post-image line numbers in the
// left margin, so the model can reference lines the way the findings schema
// expects. Removed lines keep their marker but get no number.
func RenderBatch(batch *batcher.Batch) string {
	var sb strings.Builder
	lastPath := ""
	for _, it := range batch.Items {
		if it.Path != lastPath {
			if lastPath != "" {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "File: %s\n", it.Path)
			lastPath = it.Path
		}
		sb.WriteString(it.Hunk.Header)
		sb.WriteByte('\n')
		for _, ln := range it.Hunk.Lines {
			switch ln.Kind {
			case domain.LineRemoved:
				fmt.Fprintf(&sb, "%6s - %s\n", "", ln.Text)
			case domain.LineAdded:
				fmt.Fprintf(&sb, "%6d + %s\n", ln.New, ln.Text)
			default:
				fmt.Fprintf(&sb, "%6d   %s\n", ln.New, ln.Text)
			}
		}
	}
	return sb.String()
}
