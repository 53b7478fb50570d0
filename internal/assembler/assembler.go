package assembler

import (
	"fmt"
	"log/slog"
	"strings"

	"pr-diff-review/internal/diffparse"
	"pr-diff-review/internal/domain"
	"pr-diff-review/internal/findings"
	"pr-diff-review/internal/position"
)

// Assembler merges per-batch results into one review submission: anchoring
// findings to diff positions, deduplicating, sorting, and deriving the
// verdict. Assembly is deterministic for a given set of inputs regardless of
// the order batches finished in.
type Assembler struct {
	mapper *position.Mapper
}

func New(mapper *position.Mapper) *Assembler {
	return &Assembler{mapper: mapper}
}

// Assemble builds the final submission. report carries parse-time facts
// (skipped files, binary files) that the summary discloses; results must be
// ordered by batch ID before calling, or will be treated as given.
func (a *Assembler) Assemble(results []findings.Result, report *diffparse.Report) *domain.ReviewSubmission {
	var (
		comments   []domain.Comment
		unresolved []string
		seen       = make(map[string]bool)
	)

	for _, res := range results {
		for _, f := range res.Findings {
			pos, ok := a.anchor(f)
			if !ok {
				unresolved = append(unresolved,
					fmt.Sprintf("`%s:%d` %s", f.File, f.Line, f.Message))
				continue
			}

			key := fmt.Sprintf("%s\x00%d\x00%s", f.File, pos, f.Message)
			if seen[key] {
				continue
			}
			seen[key] = true

			comments = append(comments, domain.Comment{
				File:     f.File,
				Pos:      pos,
				Severity: f.Severity,
				Message:  fmt.Sprintf("**[%s]** %s", strings.ToUpper(string(f.Severity)), f.Message),
			})
		}
	}

	domain.SortComments(comments)

	sub := &domain.ReviewSubmission{
		Comments:    comments,
		Disposition: disposition(comments),
		Unresolved:  len(unresolved),
	}
	sub.Summary = a.summary(sub, results, report, unresolved)
	return sub
}

// anchor resolves a finding to a position, falling back to the last line of
// the nearest preceding hunk when the exact line is not in the diff.
func (a *Assembler) anchor(f domain.Finding) (domain.Position, bool) {
	if pos, ok := a.mapper.Resolve(f.File, f.Line); ok {
		return pos, true
	}
	if pos, ok := a.mapper.NearestPreceding(f.File, f.Line); ok {
		slog.Debug("Anchored finding to nearest hunk edge",
			"file", f.File, "line", f.Line, "position", pos)
		return pos, true
	}
	return 0, false
}

func disposition(comments []domain.Comment) domain.Disposition {
	for _, c := range comments {
		if c.Severity == domain.SeverityCritical {
			return domain.DispositionRequestChanges
		}
	}
	return domain.DispositionComment
}

func (a *Assembler) summary(sub *domain.ReviewSubmission, results []findings.Result,
	report *diffparse.Report, unresolved []string) string {

	counts := map[domain.Severity]int{}
	files := map[string]bool{}
	for _, c := range sub.Comments {
		counts[c.Severity]++
		files[c.File] = true
	}

	var parts []string
	if n := counts[domain.SeverityCritical]; n > 0 {
		parts = append(parts, fmt.Sprintf("🚨 %d critical issue(s)", n))
	}
	if n := counts[domain.SeverityWarning]; n > 0 {
		parts = append(parts, fmt.Sprintf("⚠️ %d warning(s)", n))
	}
	if n := counts[domain.SeveritySuggestion]; n > 0 {
		parts = append(parts, fmt.Sprintf("💡 %d suggestion(s)", n))
	}

	var sb strings.Builder
	sb.WriteString("## AI Code Review\n\n")
	if len(parts) > 0 {
		sb.WriteString("Found: " + strings.Join(parts, ", ") + "\n\n")
	}
	fmt.Fprintf(&sb, "Reviewed %d file(s) with %d comment(s).\n", len(files), len(sub.Comments))

	if batchSummaries := collectSummaries(results); batchSummaries != "" {
		sb.WriteString("\n" + batchSummaries + "\n")
	}

	if degraded := degradedBatches(results); len(degraded) > 0 {
		fmt.Fprintf(&sb, "\n⚠️ %d batch(es) could not be reviewed: %s\n",
			len(degraded), strings.Join(degraded, "; "))
	}
	if len(report.Skipped) > 0 {
		var names []string
		for _, s := range report.Skipped {
			names = append(names, fmt.Sprintf("`%s`", s.Path))
		}
		fmt.Fprintf(&sb, "\nSkipped %d unparseable file(s): %s\n",
			len(report.Skipped), strings.Join(names, ", "))
	}
	if len(unresolved) > 0 {
		sb.WriteString("\nFindings that could not be anchored to the diff:\n")
		for _, u := range unresolved {
			sb.WriteString("- " + u + "\n")
		}
	}
	return sb.String()
}

func collectSummaries(results []findings.Result) string {
	var lines []string
	for _, r := range results {
		if s := strings.TrimSpace(r.Summary); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, " ")
}

func degradedBatches(results []findings.Result) []string {
	var out []string
	for _, r := range results {
		if r.Degraded {
			out = append(out, fmt.Sprintf("batch %d (%s)", r.BatchID, r.Reason))
		}
	}
	return out
}
