package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	gh "github.com/google/go-github/v58/github"

	"pr-diff-review/internal/domain"
	"pr-diff-review/internal/types"
)

var clientPR = &domain.PullRequest{Owner: "acme", Repo: "app", Number: 12}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClientWithBaseURL("", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestFetchDiff(t *testing.T) {
	const diff = "diff --git a/a.py b/a.py\n"
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/app/pulls/12" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if accept := r.Header.Get("Accept"); accept != "application/vnd.github.v3.diff" {
			t.Errorf("Accept = %q", accept)
		}
		fmt.Fprint(w, diff)
	}))

	got, err := c.FetchDiff(context.Background(), clientPR)
	if err != nil {
		t.Fatalf("FetchDiff() error = %v", err)
	}
	if got != diff {
		t.Errorf("FetchDiff() = %q", got)
	}
}

func TestGetPullRequest(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"number": 12,
			"title": "Add x",
			"body": "Sets x.",
			"user": {"login": "dev"},
			"head": {"sha": "abc"},
			"base": {"sha": "def"}
		}`)
	}))

	pr, err := c.GetPullRequest(context.Background(), "acme", "app", 12)
	if err != nil {
		t.Fatalf("GetPullRequest() error = %v", err)
	}
	if pr.Title != "Add x" || pr.Author != "dev" || pr.HeadSHA != "abc" {
		t.Errorf("pr = %+v", pr)
	}
}

func TestCreateReview(t *testing.T) {
	var captured gh.PullRequestReviewRequest
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/app/pulls/12/reviews" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatal(err)
		}
		fmt.Fprint(w, `{"id": 1}`)
	}))

	comments := []domain.Comment{
		{File: "a.py", Pos: 4, Severity: domain.SeverityCritical, Message: "bad"},
	}
	err := c.CreateReview(context.Background(), clientPR, "summary", comments, domain.DispositionRequestChanges)
	if err != nil {
		t.Fatalf("CreateReview() error = %v", err)
	}

	if captured.GetEvent() != "REQUEST_CHANGES" || captured.GetBody() != "summary" {
		t.Errorf("request = %+v", captured)
	}
	if len(captured.Comments) != 1 {
		t.Fatalf("comments = %d", len(captured.Comments))
	}
	dc := captured.Comments[0]
	if dc.GetPath() != "a.py" || dc.GetPosition() != 4 || dc.GetBody() != "bad" {
		t.Errorf("draft comment = %+v", dc)
	}
}

func TestCreateReview_ServerErrorIsRetryable(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "boom"}`, http.StatusBadGateway)
	}))

	err := c.CreateReview(context.Background(), clientPR, "s", nil, domain.DispositionComment)
	if err == nil {
		t.Fatal("expected error")
	}
	if !types.IsRetryable(err) {
		t.Errorf("502 should be retryable, got %v", err)
	}
}

func TestCreateReview_ClientErrorIsPermanent(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "validation failed"}`, http.StatusUnprocessableEntity)
	}))

	err := c.CreateReview(context.Background(), clientPR, "s", nil, domain.DispositionComment)
	if err == nil {
		t.Fatal("expected error")
	}
	if types.IsRetryable(err) {
		t.Errorf("422 must not be retryable: %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantNumber int
		wantErr    bool
	}{
		{
			"pull_request event",
			`{"action":"opened","repository":{"full_name":"acme/app"},"pull_request":{"number":7}}`,
			7, false,
		},
		{
			"issue_comment on PR",
			`{"repository":{"full_name":"acme/app"},"issue":{"number":9,"pull_request":{"url":"x"}}}`,
			9, false,
		},
		{
			"bare number",
			`{"repository":{"full_name":"acme/app"},"number":3}`,
			3, false,
		},
		{
			"issue_comment on plain issue",
			`{"repository":{"full_name":"acme/app"},"issue":{"number":9}}`,
			0, true,
		},
		{
			"missing repository",
			`{"pull_request":{"number":7}}`,
			0, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseEvent([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEvent() error = %v", err)
			}
			if ref.Owner != "acme" || ref.Repo != "app" || ref.Number != tt.wantNumber {
				t.Errorf("ref = %+v", ref)
			}
		})
	}
}

func TestParseEventFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	payload := `{"action":"synchronize","repository":{"full_name":"acme/app"},"pull_request":{"number":5}}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	ref, err := ParseEventFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Number != 5 || ref.Action != "synchronize" {
		t.Errorf("ref = %+v", ref)
	}
}
