package github

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// EventRef identifies the pull request a GitHub Actions event refers to.
type EventRef struct {
	Owner  string
	Repo   string
	Number int
	Action string
}

// ParseEventFile reads the workflow event payload at path (GITHUB_EVENT_PATH)
// and extracts the PR reference. It accepts pull_request events and
// issue_comment events made on a PR.
func ParseEventFile(path string) (*EventRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}
	return ParseEvent(data)
}

// ParseEvent extracts the PR reference from a raw event payload.
func ParseEvent(data []byte) (*EventRef, error) {
	root := gjson.ParseBytes(data)

	ref := &EventRef{Action: root.Get("action").String()}

	fullName := root.Get("repository.full_name").String()
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok {
		return nil, fmt.Errorf("event has no usable repository.full_name: %q", fullName)
	}
	ref.Owner, ref.Repo = owner, repo

	switch {
	case root.Get("pull_request.number").Exists():
		ref.Number = int(root.Get("pull_request.number").Int())
	case root.Get("issue.pull_request").Exists():
		ref.Number = int(root.Get("issue.number").Int())
	case root.Get("number").Exists():
		ref.Number = int(root.Get("number").Int())
	}
	if ref.Number <= 0 {
		return nil, fmt.Errorf("event does not reference a pull request")
	}
	return ref, nil
}
