package domain

// The diff model carries three coexisting line-numbering schemes. They are
// deliberately distinct types so that an old-file line number can never be
// handed to an API that expects a diff position without an explicit
// conversion.

// OldLine is a 1-based line number in the pre-image (old) file.
// Zero means "not present in the old file" (added lines).
type OldLine int

// NewLine is a 1-based line number in the post-image (new) file.
// Zero means "not present in the new file" (removed lines).
type NewLine int

// Position is the diff-relative anchor used by review APIs: a 1-based
// running index over all lines in all of a file's hunks, resetting per file.
// The first hunk header of a file counts as position 0, so the first visible
// line is position 1; subsequent hunk headers consume a position of their own.
type Position int

// LineKind classifies a single diff line.
type LineKind int

const (
	LineContext LineKind = iota
	LineAdded
	LineRemoved
)

func (k LineKind) String() string {
	switch k {
	case LineAdded:
		return "added"
	case LineRemoved:
		return "removed"
	default:
		return "context"
	}
}

// ChangeKind classifies what happened to a file in the diff.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeModified ChangeKind = "modified"
	ChangeRenamed  ChangeKind = "renamed"
)

// DiffLine is one line of a hunk. Text is the line content without the
// leading +/-/space marker. Pos is computed purely from line order within
// the file, never from content.
type DiffLine struct {
	Kind LineKind
	Text string
	Old  OldLine
	New  NewLine
	Pos  Position
}

// Hunk is one contiguous region of change in one file.
type Hunk struct {
	OldStart OldLine
	OldCount int
	NewStart NewLine
	NewCount int
	Header   string // the raw @@ line, kept for prompts
	Lines    []DiffLine
}

// Chars returns the rendered size of the hunk, used for batch budgeting.
func (h *Hunk) Chars() int {
	n := len(h.Header) + 1
	for _, l := range h.Lines {
		n += len(l.Text) + 2 // marker + newline
	}
	return n
}

// FileDiff is the parsed diff of a single file. Path is the post-image path;
// OldPath differs only on rename. A pure rename has zero hunks.
type FileDiff struct {
	OldPath string
	Path    string
	Change  ChangeKind
	Binary  bool
	Hunks   []Hunk
}

// Diff is an ordered sequence of file diffs with unique post-image paths.
type Diff struct {
	Files []FileDiff
}

// File returns the FileDiff for the given (normalized) path, or nil.
func (d *Diff) File(path string) *FileDiff {
	path = NormalizePath(path)
	for i := range d.Files {
		if d.Files[i].Path == path {
			return &d.Files[i]
		}
	}
	return nil
}

// HunkCount returns the total number of hunks across all files.
func (d *Diff) HunkCount() int {
	n := 0
	for i := range d.Files {
		n += len(d.Files[i].Hunks)
	}
	return n
}
