package domain

import (
	"sort"
	"strings"
)

// Severity grades a finding. Unknown tokens from the model map to the least
// disruptive default, SeveritySuggestion.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

// ParseSeverity normalizes a model-supplied severity token.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker", "error":
		return SeverityCritical
	case "warning", "warn", "major":
		return SeverityWarning
	default:
		return SeveritySuggestion
	}
}

// Finding is a single piece of model critique, still addressed by post-image
// line number. Findings are created by the finding parser and read-only
// afterward.
type Finding struct {
	BatchID  int
	File     string
	Line     NewLine
	Severity Severity
	Message  string
	Language string
}

// Comment is a finding anchored to a diff position, ready for submission.
type Comment struct {
	File     string
	Pos      Position
	Severity Severity
	Message  string
}

// Disposition is the overall review verdict.
type Disposition string

const (
	DispositionComment        Disposition = "comment-only"
	DispositionRequestChanges Disposition = "request-changes"
	DispositionApprove        Disposition = "approve" // never produced by the pipeline
)

// ReviewSubmission is the final artifact of a pipeline run: summary text,
// ordered anchored comments, and the verdict. Immutable once assembled.
// Unresolved counts findings that could not be anchored and live only in
// the summary text.
type ReviewSubmission struct {
	Summary     string
	Comments    []Comment
	Disposition Disposition
	Unresolved  int
}

// SortComments stable-sorts comments by (file path, diff position) so the
// submission is deterministic regardless of batch completion order.
func SortComments(comments []Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].File != comments[j].File {
			return comments[i].File < comments[j].File
		}
		return comments[i].Pos < comments[j].Pos
	})
}
