package diffparse

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"pr-diff-review/internal/domain"
)

// MalformedDiffError is fatal for the run: the input is not a unified diff
// at all (or contains change lines before any file header).
type MalformedDiffError struct {
	LineNo int
	Reason string
}

func (e *MalformedDiffError) Error() string {
	return fmt.Sprintf("malformed diff at line %d: %s", e.LineNo, e.Reason)
}

// FileParseError records a single file whose hunks could not be trusted
// (declared hunk lengths disagree with the actual lines, overlapping hunks,
// duplicate paths). The file is skipped; the run continues.
type FileParseError struct {
	Path   string
	LineNo int
	Reason string
}

func (e *FileParseError) Error() string {
	return fmt.Sprintf("skipped %s (line %d): %s", e.Path, e.LineNo, e.Reason)
}

// Report collects the non-fatal outcomes of a parse so they can be disclosed
// in the review summary instead of silently dropped.
type Report struct {
	Skipped []FileParseError
	Binary  []string
}

var hunkHeaderRE = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Parse turns unified diff text into a structured Diff. Parsing is
// single-pass: every line is classified by its prefix, so no backtracking is
// needed. A file whose hunk accounting is broken is skipped and recorded in
// the Report; the error return is reserved for input that is not a diff.
func Parse(text string) (*domain.Diff, *Report, error) {
	p := &parser{
		diff:   &domain.Diff{},
		report: &Report{},
		seen:   make(map[string]bool),
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if err := p.feed(i+1, line); err != nil {
			return nil, nil, err
		}
	}
	p.closeFile(len(lines))

	if len(p.diff.Files) == 0 && len(p.report.Skipped) == 0 && strings.TrimSpace(text) != "" {
		return nil, nil, &MalformedDiffError{LineNo: 1, Reason: "no file headers found"}
	}

	slog.Debug("diff parsed",
		"files", len(p.diff.Files),
		"hunks", p.diff.HunkCount(),
		"skipped", len(p.report.Skipped),
		"binary", len(p.report.Binary))

	return p.diff, p.report, nil
}

type parser struct {
	diff   *domain.Diff
	report *Report
	seen   map[string]bool
	cur    *fileState
}

type fileState struct {
	file    domain.FileDiff
	oldPath string
	newPath string

	pos      domain.Position // per-file position counter; first @@ consumes 0
	seenHunk bool
	hunk     *domain.Hunk
	// remaining declared lines of the open hunk
	remOld int
	remNew int
	oldLn  domain.OldLine
	newLn  domain.NewLine

	poisoned bool
	errLine  int
	reason   string
}

func (p *parser) feed(lineNo int, line string) error {
	// File boundaries always win, even while a hunk is open or a file is
	// poisoned; everything else routes through the current state.
	if strings.HasPrefix(line, "diff --git ") {
		p.closeFile(lineNo)
		p.startFile(line)
		return nil
	}

	if p.cur != nil && p.cur.poisoned {
		return nil // skip until the next file header
	}

	if p.cur != nil && p.cur.hunk != nil {
		return p.feedHunkLine(lineNo, line)
	}

	switch {
	case strings.HasPrefix(line, "--- "):
		// Headerless unified diffs (no "diff --git" preamble) use the ---
		// marker as the file boundary.
		if p.cur == nil || len(p.cur.file.Hunks) > 0 {
			p.closeFile(lineNo)
			p.cur = &fileState{}
		}
		p.cur.oldPath = parseMarkerPath(line[4:])
	case strings.HasPrefix(line, "+++ "):
		if p.cur == nil {
			return &MalformedDiffError{LineNo: lineNo, Reason: "'+++' header outside any file"}
		}
		p.cur.newPath = parseMarkerPath(line[4:])
	case strings.HasPrefix(line, "@@ "):
		if p.cur == nil {
			return &MalformedDiffError{LineNo: lineNo, Reason: "hunk header outside any file"}
		}
		p.startHunk(lineNo, line)
	case strings.HasPrefix(line, "new file mode"):
		p.markChange(domain.ChangeAdded)
	case strings.HasPrefix(line, "deleted file mode"):
		p.markChange(domain.ChangeDeleted)
	case strings.HasPrefix(line, "rename from "):
		p.markChange(domain.ChangeRenamed)
		if p.cur != nil {
			p.cur.oldPath = strings.TrimPrefix(line, "rename from ")
		}
	case strings.HasPrefix(line, "rename to "):
		p.markChange(domain.ChangeRenamed)
		if p.cur != nil {
			p.cur.newPath = strings.TrimPrefix(line, "rename to ")
		}
	case strings.HasPrefix(line, "Binary files "), strings.HasPrefix(line, "GIT binary patch"):
		if p.cur != nil {
			p.cur.file.Binary = true
		}
	case strings.HasPrefix(line, `\`):
		// "\ No newline at end of file" trailing a hunk that closed exactly
		// at its declared counts. It still occupies a diff position.
		if p.cur == nil {
			return &MalformedDiffError{LineNo: lineNo, Reason: "'\\' marker outside any file"}
		}
		p.cur.pos++
	case line == "", isMetadataLine(line):
		// index/mode/similarity lines carry nothing the model needs.
	default:
		if p.cur == nil {
			return &MalformedDiffError{LineNo: lineNo, Reason: fmt.Sprintf("unexpected content %q before any file header", truncate(line, 40))}
		}
		p.poison(lineNo, fmt.Sprintf("unexpected line %q outside any hunk", truncate(line, 40)))
	}
	return nil
}

func (p *parser) feedHunkLine(lineNo int, line string) error {
	st := p.cur

	if strings.HasPrefix(line, "\\") {
		// "\ No newline at end of file" occupies a diff position but maps
		// to no file line.
		st.pos++
		return nil
	}

	if strings.HasPrefix(line, "@@ ") {
		// Next hunk begins; current one must be exactly consumed.
		if !p.finishHunk(lineNo) {
			return nil
		}
		p.startHunk(lineNo, line)
		return nil
	}

	kind, text := classify(line)

	switch kind {
	case domain.LineContext:
		if st.remOld <= 0 || st.remNew <= 0 {
			p.poison(lineNo, "more lines than the hunk header declared")
			return nil
		}
		st.pos++
		st.hunk.Lines = append(st.hunk.Lines, domain.DiffLine{
			Kind: domain.LineContext, Text: text, Old: st.oldLn, New: st.newLn, Pos: st.pos,
		})
		st.oldLn++
		st.newLn++
		st.remOld--
		st.remNew--
	case domain.LineRemoved:
		if st.remOld <= 0 {
			p.poison(lineNo, "more removed lines than the hunk header declared")
			return nil
		}
		st.pos++
		st.hunk.Lines = append(st.hunk.Lines, domain.DiffLine{
			Kind: domain.LineRemoved, Text: text, Old: st.oldLn, Pos: st.pos,
		})
		st.oldLn++
		st.remOld--
	case domain.LineAdded:
		if st.remNew <= 0 {
			p.poison(lineNo, "more added lines than the hunk header declared")
			return nil
		}
		st.pos++
		st.hunk.Lines = append(st.hunk.Lines, domain.DiffLine{
			Kind: domain.LineAdded, Text: text, New: st.newLn, Pos: st.pos,
		})
		st.newLn++
		st.remNew--
	}

	if st.remOld == 0 && st.remNew == 0 {
		p.appendHunk(lineNo)
	}
	return nil
}

// classify maps a raw hunk line to its kind and content. Unified diff syntax
// is prefix-determined; a fully empty line is an empty context line (some
// tools strip the single leading space).
func classify(line string) (domain.LineKind, string) {
	if line == "" {
		return domain.LineContext, ""
	}
	switch line[0] {
	case '+':
		return domain.LineAdded, line[1:]
	case '-':
		return domain.LineRemoved, line[1:]
	default:
		return domain.LineContext, line[1:]
	}
}

func (p *parser) startFile(header string) {
	st := &fileState{}
	// "diff --git a/old b/new". The marker lines below usually override,
	// but a pure rename or binary file never gets them.
	parts := strings.Fields(header)
	if len(parts) >= 4 {
		st.oldPath = parts[2]
		st.newPath = parts[3]
	}
	p.cur = st
}

func (p *parser) startHunk(lineNo int, line string) {
	st := p.cur
	m := hunkHeaderRE.FindStringSubmatch(line)
	if m == nil {
		p.poison(lineNo, fmt.Sprintf("invalid hunk header %q", truncate(line, 40)))
		return
	}

	oldStart, _ := strconv.Atoi(m[1])
	oldCount := 1
	if m[2] != "" {
		oldCount, _ = strconv.Atoi(m[2])
	}
	newStart, _ := strconv.Atoi(m[3])
	newCount := 1
	if m[4] != "" {
		newCount, _ = strconv.Atoi(m[4])
	}

	st.hunk = &domain.Hunk{
		OldStart: domain.OldLine(oldStart),
		OldCount: oldCount,
		NewStart: domain.NewLine(newStart),
		NewCount: newCount,
		Header:   line,
	}
	st.remOld = oldCount
	st.remNew = newCount
	st.oldLn = domain.OldLine(oldStart)
	st.newLn = domain.NewLine(newStart)
	// The file's first header sits at position 0, so its first visible line
	// is 1. Only later headers consume a position of their own.
	if st.seenHunk {
		st.pos++
	}
	st.seenHunk = true

	if oldCount == 0 && newCount == 0 {
		p.appendHunk(lineNo)
	}
}

// finishHunk validates that the open hunk was exactly consumed. Returns
// false when the file got poisoned.
func (p *parser) finishHunk(lineNo int) bool {
	st := p.cur
	if st.hunk == nil {
		return true
	}
	if st.remOld != 0 || st.remNew != 0 {
		p.poison(lineNo, fmt.Sprintf("hunk %q ended %d old / %d new lines short", truncate(st.hunk.Header, 30), st.remOld, st.remNew))
		return false
	}
	p.appendHunk(lineNo)
	return true
}

func (p *parser) appendHunk(lineNo int) {
	st := p.cur
	h := st.hunk
	st.hunk = nil

	if n := len(st.file.Hunks); n > 0 {
		prev := &st.file.Hunks[n-1]
		if h.NewStart <= prev.NewStart || domain.NewLine(int(prev.NewStart)+prev.NewCount) > h.NewStart {
			p.poison(lineNo, fmt.Sprintf("hunks out of order or overlapping at %q", truncate(h.Header, 30)))
			return
		}
	}
	st.file.Hunks = append(st.file.Hunks, *h)
}

func (p *parser) closeFile(lineNo int) {
	st := p.cur
	p.cur = nil
	if st == nil {
		return
	}

	path := filePath(st)

	if st.hunk != nil && !st.poisoned {
		if st.remOld != 0 || st.remNew != 0 {
			st.poisoned = true
			st.errLine = lineNo
			st.reason = fmt.Sprintf("hunk %q truncated", truncate(st.hunk.Header, 30))
		} else {
			p.cur = st
			p.appendHunk(lineNo)
			p.cur = nil
		}
	}

	if st.poisoned {
		p.report.Skipped = append(p.report.Skipped, FileParseError{Path: path, LineNo: st.errLine, Reason: st.reason})
		return
	}

	if path == "" {
		return // stray header noise, nothing parsed
	}
	if p.seen[path] {
		p.report.Skipped = append(p.report.Skipped, FileParseError{Path: path, LineNo: lineNo, Reason: "duplicate file path in diff"})
		return
	}
	p.seen[path] = true

	st.file.Path = path
	st.file.OldPath = domain.NormalizePath(st.oldPath)
	if st.file.Change == "" {
		st.file.Change = changeKind(st)
	}
	if st.file.Binary {
		p.report.Binary = append(p.report.Binary, path)
	}
	p.diff.Files = append(p.diff.Files, st.file)
}

func (p *parser) poison(lineNo int, reason string) {
	st := p.cur
	if st.poisoned {
		return
	}
	st.poisoned = true
	st.errLine = lineNo
	st.reason = reason
}

func (p *parser) markChange(kind domain.ChangeKind) {
	if p.cur != nil {
		p.cur.file.Change = kind
	}
}

// filePath resolves the post-image path, falling back to the pre-image path
// for deletions so every FileDiff stays addressable.
func filePath(st *fileState) string {
	if st.newPath != "" && st.newPath != "/dev/null" {
		return domain.NormalizePath(st.newPath)
	}
	if st.oldPath != "" && st.oldPath != "/dev/null" {
		return domain.NormalizePath(st.oldPath)
	}
	return ""
}

func changeKind(st *fileState) domain.ChangeKind {
	switch {
	case st.oldPath == "/dev/null":
		return domain.ChangeAdded
	case st.newPath == "/dev/null":
		return domain.ChangeDeleted
	case st.oldPath != "" && st.newPath != "" && domain.NormalizePath(st.oldPath) != domain.NormalizePath(st.newPath):
		return domain.ChangeRenamed
	default:
		return domain.ChangeModified
	}
}

// parseMarkerPath extracts the path from a ---/+++ marker, dropping the
// timestamp some diff tools append after a tab.
func parseMarkerPath(s string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func isMetadataLine(line string) bool {
	for _, prefix := range []string{"index ", "old mode", "new mode", "similarity index", "dissimilarity index", "copy from", "copy to", "mode "} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never yields invalid UTF-8.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
