package domain

import (
	"regexp"
	"strings"
)

const (
	// PathPrefixGitSource is the standard git pre-image prefix.
	PathPrefixGitSource = "a/"
	// PathPrefixGitDestination is the standard git post-image prefix.
	PathPrefixGitDestination = "b/"
)

var (
	markdownLinkRegex = regexp.MustCompile(`^\[(.*?)\]\(.*?\)$`)
	urlPrefixRegex    = regexp.MustCompile(`^(?:tree|blob)/[^/]+/`)
)

// NormalizePath normalizes a file path for comparison across the diff, model
// output, and the review API. Models occasionally cite paths as markdown
// links or with web-UI prefixes; the diff carries a/ and b/ prefixes.
func NormalizePath(path string) string {
	if m := markdownLinkRegex.FindStringSubmatch(path); len(m) > 1 {
		path = m[1]
	}

	path = strings.ReplaceAll(path, "\\", "/")
	path = urlPrefixRegex.ReplaceAllString(path, "")

	for _, p := range []string{PathPrefixGitSource, PathPrefixGitDestination} {
		path = strings.TrimPrefix(path, p)
	}

	return strings.TrimSpace(path)
}
