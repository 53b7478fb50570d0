package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v58/github"
	"golang.org/x/oauth2"

	"pr-diff-review/internal/domain"
	"pr-diff-review/internal/types"
)

// Client wraps the GitHub REST API for the pipeline: fetching pull request
// metadata and diffs, and posting reviews. It implements
// submitter.PlatformClient.
type Client struct {
	api *gh.Client
}

// NewClient creates an authenticated client. An empty token yields an
// unauthenticated client, useful against public repos and test servers.
func NewClient(token string) *Client {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	return &Client{api: gh.NewClient(hc)}
}

// NewClientWithBaseURL points the client at a different API endpoint.
// Tests use it with httptest servers; it also covers GitHub Enterprise.
func NewClientWithBaseURL(token, baseURL string) (*Client, error) {
	c := NewClient(token)
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	c.api.BaseURL = u
	return c, nil
}

// GetPullRequest fetches the PR metadata the prompt needs.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*domain.PullRequest, error) {
	pr, _, err := c.api.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, wrapError(fmt.Errorf("get pull request %s/%s#%d: %w", owner, repo, number, err))
	}

	out := &domain.PullRequest{
		Owner:       owner,
		Repo:        repo,
		Number:      number,
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		Author:      pr.GetUser().GetLogin(),
		HeadSHA:     pr.GetHead().GetSHA(),
		BaseSHA:     pr.GetBase().GetSHA(),
	}
	return out, nil
}

// FetchDiff returns the PR's unified diff exactly as the API serves it.
func (c *Client) FetchDiff(ctx context.Context, pr *domain.PullRequest) (string, error) {
	raw, _, err := c.api.PullRequests.GetRaw(ctx, pr.Owner, pr.Repo, pr.Number,
		gh.RawOptions{Type: gh.Diff})
	if err != nil {
		return "", wrapError(fmt.Errorf("fetch diff for %s: %w", pr.Slug(), err))
	}
	return raw, nil
}

// CreateReview posts one review call with position-anchored comments.
func (c *Client) CreateReview(ctx context.Context, pr *domain.PullRequest, body string,
	comments []domain.Comment, disposition domain.Disposition) error {

	drafts := make([]*gh.DraftReviewComment, 0, len(comments))
	for _, cm := range comments {
		drafts = append(drafts, &gh.DraftReviewComment{
			Path:     gh.String(cm.File),
			Position: gh.Int(int(cm.Pos)),
			Body:     gh.String(cm.Message),
		})
	}

	req := &gh.PullRequestReviewRequest{
		Body:     gh.String(body),
		Event:    gh.String(reviewEvent(disposition)),
		Comments: drafts,
	}
	if _, _, err := c.api.PullRequests.CreateReview(ctx, pr.Owner, pr.Repo, pr.Number, req); err != nil {
		return wrapError(fmt.Errorf("create review on %s: %w", pr.Slug(), err))
	}
	return nil
}

// CreateIssueComment posts a plain PR comment, the fallback channel when
// inline review creation fails.
func (c *Client) CreateIssueComment(ctx context.Context, pr *domain.PullRequest, body string) error {
	comment := &gh.IssueComment{Body: gh.String(body)}
	if _, _, err := c.api.Issues.CreateComment(ctx, pr.Owner, pr.Repo, pr.Number, comment); err != nil {
		return wrapError(fmt.Errorf("create issue comment on %s: %w", pr.Slug(), err))
	}
	return nil
}

func reviewEvent(d domain.Disposition) string {
	if d == domain.DispositionRequestChanges {
		return "REQUEST_CHANGES"
	}
	return "COMMENT"
}

// wrapError marks rate limits and server-side failures as transient so the
// submitter's retry loop picks them up. Client errors stay permanent.
func wrapError(err error) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return types.NewRetryableError(err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		if code == http.StatusTooManyRequests || code >= 500 {
			return types.NewRetryableError(err)
		}
	}
	return err
}
