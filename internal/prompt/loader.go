package prompt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed prompts/*.md
var builtin embed.FS

// Loader resolves prompt templates with a fallback hierarchy: a
// language-specific file in the override directory, then the directory's
// default, then the embedded default shipped with the binary.
type Loader struct {
	baseDir string
}

// NewLoader creates a Loader. baseDir may be empty, in which case only the
// embedded templates are used.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// Load returns the rendered review prompt for the given language.
func (l *Loader) Load(language string, data map[string]any) (string, error) {
	if l.baseDir != "" {
		candidates := []string{
			filepath.Join(l.baseDir, language+".md"),
			filepath.Join(l.baseDir, "default.md"),
		}
		for _, path := range candidates {
			raw, err := os.ReadFile(path)
			if err == nil {
				return render(path, string(raw), data)
			}
			if !os.IsNotExist(err) {
				return "", fmt.Errorf("read prompt %s: %w", path, err)
			}
		}
	}

	raw, err := builtin.ReadFile("prompts/review.md")
	if err != nil {
		return "", fmt.Errorf("read embedded prompt: %w", err)
	}
	return render("review.md", string(raw), data)
}

func render(name, content string, data map[string]any) (string, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return "", fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("execute prompt template %s: %w", name, err)
	}
	return sb.String(), nil
}
