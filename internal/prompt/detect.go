package prompt

import (
	"path/filepath"
	"sort"
	"strings"

	"pr-diff-review/internal/batcher"
)

var extLanguages = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".java":  "Java",
	".kt":    "Kotlin",
	".rb":    "Ruby",
	".rs":    "Rust",
	".c":     "C",
	".h":     "C",
	".cc":    "C++",
	".cpp":   "C++",
	".hpp":   "C++",
	".cs":    "C#",
	".php":   "PHP",
	".swift": "Swift",
	".scala": "Scala",
	".sh":    "Shell",
	".sql":   "SQL",
	".tf":    "Terraform",
	".yaml":  "YAML",
	".yml":   "YAML",
}

// DetectFileTypes names the programming languages touched by a batch, from
// file extensions, sorted for deterministic prompts. Unknown extensions are
// ignored; the model still sees the paths themselves.
func DetectFileTypes(batch *batcher.Batch) string {
	seen := map[string]bool{}
	for _, f := range batch.Files() {
		if lang, ok := extLanguages[strings.ToLower(filepath.Ext(f))]; ok {
			seen[lang] = true
		}
	}
	if len(seen) == 0 {
		return ""
	}
	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return strings.Join(langs, ", ")
}
