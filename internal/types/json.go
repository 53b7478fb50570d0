package types

import "strings"

// CleanJSONFromMarkdown removes markdown code fences from a JSON string.
// Models asked for JSON frequently wrap it in ```json blocks anyway.
func CleanJSONFromMarkdown(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
