package position

import (
	"pr-diff-review/internal/domain"
)

// Mapper resolves post-image line numbers to diff positions for one parsed
// diff. Review comments anchor on positions, not file line numbers, so every
// finding has to pass through here before it can be submitted.
type Mapper struct {
	files map[string]*fileIndex
}

type fileIndex struct {
	file *domain.FileDiff

	// byNewLine holds the first position seen for each post-image line.
	// Context and added lines both carry a new-line number; when a line
	// shows up twice (which a well-formed diff should not produce) the
	// earliest occurrence wins.
	byNewLine map[domain.NewLine]domain.Position

	byPos map[domain.Position]domain.NewLine
}

// NewMapper builds an index over every file in the diff.
func NewMapper(diff *domain.Diff) *Mapper {
	m := &Mapper{files: make(map[string]*fileIndex, len(diff.Files))}
	for i := range diff.Files {
		f := &diff.Files[i]
		idx := &fileIndex{
			file:      f,
			byNewLine: make(map[domain.NewLine]domain.Position),
			byPos:     make(map[domain.Position]domain.NewLine),
		}
		for hi := range f.Hunks {
			for _, ln := range f.Hunks[hi].Lines {
				if ln.Kind == domain.LineRemoved {
					continue
				}
				if _, ok := idx.byNewLine[ln.New]; !ok {
					idx.byNewLine[ln.New] = ln.Pos
				}
				idx.byPos[ln.Pos] = ln.New
			}
		}
		m.files[f.Path] = idx
	}
	return m
}

// Resolve returns the diff position for the given post-image line, or false
// when the file is absent from the diff or the line falls outside every hunk.
func (m *Mapper) Resolve(path string, line domain.NewLine) (domain.Position, bool) {
	idx, ok := m.files[domain.NormalizePath(path)]
	if !ok {
		return 0, false
	}
	pos, ok := idx.byNewLine[line]
	return pos, ok
}

// LineAt is the reverse lookup: the post-image line a position refers to.
// Positions occupied by removed lines or hunk headers report false.
func (m *Mapper) LineAt(path string, pos domain.Position) (domain.NewLine, bool) {
	idx, ok := m.files[domain.NormalizePath(path)]
	if !ok {
		return 0, false
	}
	line, ok := idx.byPos[pos]
	return line, ok
}

// NearestPreceding returns the position of the last visible line of the
// closest hunk that starts at or before the given line. It is the fallback
// anchor for findings that point just past a hunk's edge.
func (m *Mapper) NearestPreceding(path string, line domain.NewLine) (domain.Position, bool) {
	idx, ok := m.files[domain.NormalizePath(path)]
	if !ok {
		return 0, false
	}

	var (
		best      domain.Position
		bestFound bool
	)
	for hi := range idx.file.Hunks {
		h := &idx.file.Hunks[hi]
		if h.NewStart > line {
			break
		}
		for i := len(h.Lines) - 1; i >= 0; i-- {
			if h.Lines[i].Kind != domain.LineRemoved {
				best = h.Lines[i].Pos
				bestFound = true
				break
			}
		}
	}
	return best, bestFound
}

// Has reports whether the diff touches the given file at all.
func (m *Mapper) Has(path string) bool {
	_, ok := m.files[domain.NormalizePath(path)]
	return ok
}
