//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gh "github.com/google/go-github/v58/github"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pr-diff-review/internal/client"
	"pr-diff-review/internal/github"
	"pr-diff-review/internal/pipeline"
	"pr-diff-review/internal/submitter"
)

const e2eDiff = `diff --git a/handler.go b/handler.go
--- a/handler.go
+++ b/handler.go
@@ -10,3 +10,4 @@ func handle(w http.ResponseWriter, r *http.Request) {
 	id := r.URL.Query().Get("id")
 	row := db.QueryRow("SELECT name FROM users WHERE id = " + id)
 	var name string
+	fmt.Fprintf(w, "hello %s", name)
`

// fakeGitHub serves just enough of the REST API for one review run.
type fakeGitHub struct {
	mu      sync.Mutex
	reviews []gh.PullRequestReviewRequest
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "application/vnd.github.v3.diff" {
			io.WriteString(w, e2eDiff)
			return
		}
		fmt.Fprint(w, `{
			"number": 42,
			"title": "Add greeting",
			"body": "Writes a greeting response.",
			"user": {"login": "dev"},
			"head": {"sha": "abc123"},
			"base": {"sha": "def456"}
		}`)
	})
	mux.HandleFunc("/repos/acme/app/pulls/42/reviews", func(w http.ResponseWriter, r *http.Request) {
		var req gh.PullRequestReviewRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.reviews = append(f.reviews, req)
		f.mu.Unlock()
		fmt.Fprint(w, `{"id": 1}`)
	})
	return mux
}

func fakeOpenAI(t *testing.T, content string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReviewRoundTrip(t *testing.T) {
	fakeGH := &fakeGitHub{}
	ghSrv := httptest.NewServer(fakeGH.handler(t))
	defer ghSrv.Close()

	// The model flags the string-concatenated SQL on line 11 and the new
	// line 13, wrapped in a markdown fence like real models do.
	response := "```json\n" + `{
		"summary": "Adds a greeting response to the handler.",
		"findings": [
			{"file": "handler.go", "line": 11, "severity": "critical", "message": "SQL injection: id is concatenated into the query."},
			{"file": "handler.go", "line": 13, "severity": "suggestion", "message": "Check the error from Fprintf."}
		]
	}` + "\n```"
	oaSrv := fakeOpenAI(t, response)

	ghClient, err := github.NewClientWithBaseURL("test-token", ghSrv.URL)
	require.NoError(t, err)

	oc := openai.NewClient(
		option.WithBaseURL(oaSrv.URL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	model := client.NewOpenAIAdapter(&oc, "gpt-4o", 2)

	runner := pipeline.NewRunner(ghClient, model, pipeline.Options{
		ParallelBatches: 2,
		RetryAttempts:   2,
		RetryBackoff:    time.Millisecond,
		MaxBackoff:      time.Millisecond,
		Submit:          submitter.Options{MaxAttempts: 2, Backoff: time.Millisecond},
	})

	res, err := runner.Run(context.Background(), "acme", "app", 42)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, 0, res.Degraded)

	fakeGH.mu.Lock()
	defer fakeGH.mu.Unlock()
	require.Len(t, fakeGH.reviews, 1)

	review := fakeGH.reviews[0]
	assert.Equal(t, "REQUEST_CHANGES", review.GetEvent())
	assert.Contains(t, review.GetBody(), "Adds a greeting response")
	assert.Contains(t, review.GetBody(), "1 critical issue(s)")

	require.Len(t, review.Comments, 2)
	// Hunk starts at new line 10; the @@ header is position 0, so line 11
	// lands on position 2 and the added line 13 on position 4.
	assert.Equal(t, "handler.go", review.Comments[0].GetPath())
	assert.Equal(t, 2, review.Comments[0].GetPosition())
	assert.Contains(t, review.Comments[0].GetBody(), "**[CRITICAL]**")
	assert.Equal(t, 4, review.Comments[1].GetPosition())
}

func TestReviewRoundTrip_ModelOutage(t *testing.T) {
	fakeGH := &fakeGitHub{}
	ghSrv := httptest.NewServer(fakeGH.handler(t))
	defer ghSrv.Close()

	// The model endpoint is down for the whole run.
	oaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer oaSrv.Close()

	oc := openai.NewClient(
		option.WithBaseURL(oaSrv.URL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	model := client.NewOpenAIAdapter(&oc, "gpt-4o", 2)

	ghClient, err := github.NewClientWithBaseURL("test-token", ghSrv.URL)
	require.NoError(t, err)

	runner := pipeline.NewRunner(ghClient, model, pipeline.Options{
		ParallelBatches: 2,
		RetryAttempts:   2,
		RetryBackoff:    time.Millisecond,
		MaxBackoff:      time.Millisecond,
		Submit:          submitter.Options{MaxAttempts: 2, Backoff: time.Millisecond},
	})

	res, err := runner.Run(context.Background(), "acme", "app", 42)
	require.NoError(t, err, "a model outage degrades batches, it does not fail the run")
	assert.Equal(t, 1, res.Degraded)

	fakeGH.mu.Lock()
	defer fakeGH.mu.Unlock()
	require.Len(t, fakeGH.reviews, 1)
	assert.Equal(t, "COMMENT", fakeGH.reviews[0].GetEvent())
	assert.Contains(t, fakeGH.reviews[0].GetBody(), "could not be reviewed")
}
