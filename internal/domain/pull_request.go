package domain

import "fmt"

// PullRequest is the canonical PR model carried across the application
// (webhook/event parsing -> pipeline -> submitter).
type PullRequest struct {
	Owner       string
	Repo        string
	Number      int
	Title       string
	Description string
	Author      string
	HeadSHA     string
	BaseSHA     string
}

// IsValid reports whether the key fields required to fetch and review the PR
// are present.
func (pr *PullRequest) IsValid() bool {
	return pr.Owner != "" && pr.Repo != "" && pr.Number > 0
}

// Slug returns the owner/repo#number identifier used for locking and logging.
func (pr *PullRequest) Slug() string {
	return fmt.Sprintf("%s/%s#%d", pr.Owner, pr.Repo, pr.Number)
}
