package findings

import (
	"log/slog"

	"github.com/tidwall/gjson"

	"pr-diff-review/internal/domain"
	"pr-diff-review/internal/types"
)

// Result is the outcome of parsing one batch's model response. A batch whose
// response cannot be read at all still produces a Result, just a degraded one
// with zero findings.
type Result struct {
	BatchID  int
	Findings []domain.Finding
	Summary  string

	// Degraded marks a response that was unusable as a whole. Reason says why.
	Degraded bool
	Reason   string

	// DroppedForeign counts findings that named files outside the batch.
	// DroppedInvalid counts findings missing required fields.
	DroppedForeign int
	DroppedInvalid int
}

// Parser extracts findings from raw model output. Model output is untrusted:
// fenced, truncated, or schema-bending responses must never take down the
// run, so every defect either degrades the batch or drops the one finding.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads one response. allowedFiles is the set of normalized paths the
// batch actually contained; findings pointing anywhere else are dropped and
// counted rather than silently anchored to the wrong file.
func (p *Parser) Parse(batchID int, raw string, allowedFiles map[string]bool) Result {
	res := Result{BatchID: batchID}

	cleaned := types.CleanJSONFromMarkdown(raw)
	if cleaned == "" {
		res.Degraded = true
		res.Reason = "empty response"
		return res
	}
	if !gjson.Valid(cleaned) {
		res.Degraded = true
		res.Reason = "response is not valid JSON"
		return res
	}

	root := gjson.Parse(cleaned)
	res.Summary = root.Get("summary").String()

	items := root.Get("findings")
	if !items.Exists() {
		// The original schema used review_result; accept it too.
		items = root.Get("review_result")
	}
	if !items.IsArray() {
		if items.Exists() {
			res.Degraded = true
			res.Reason = "findings is not an array"
		}
		return res
	}

	for _, item := range items.Array() {
		f, ok := p.parseOne(batchID, item)
		if !ok {
			res.DroppedInvalid++
			continue
		}
		if !allowedFiles[f.File] {
			slog.Debug("Dropping finding for file outside batch",
				"batch", batchID, "file", f.File)
			res.DroppedForeign++
			continue
		}
		res.Findings = append(res.Findings, f)
	}
	return res
}

func (p *Parser) parseOne(batchID int, item gjson.Result) (domain.Finding, bool) {
	file := item.Get("file").String()
	if file == "" {
		file = item.Get("file_path").String()
	}

	line := item.Get("line")
	if !line.Exists() {
		line = item.Get("line_number")
	}

	msg := item.Get("message").String()
	if msg == "" {
		msg = item.Get("review_comment").String()
	}

	if file == "" || msg == "" || line.Int() < 1 {
		return domain.Finding{}, false
	}

	return domain.Finding{
		BatchID:  batchID,
		File:     domain.NormalizePath(file),
		Line:     domain.NewLine(line.Int()),
		Severity: domain.ParseSeverity(item.Get("severity").String()),
		Message:  msg,
	}, true
}
