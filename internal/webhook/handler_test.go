package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pr-diff-review/internal/config"
	gosync "pr-diff-review/internal/sync"
)

type fakeReviewer struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (f *fakeReviewer) Review(_ context.Context, owner, repo string, number int) error {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%s#%d", owner, repo, number))
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return nil
}

func (f *fakeReviewer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const prEvent = `{"action":"opened","repository":{"full_name":"acme/app"},"pull_request":{"number":7,"title":"Add x"}}`

func newTestHandler(t *testing.T, secret string, reviewer Reviewer) *Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.MaxBodySize = config.DefaultMaxBodySize
	cfg.Server.WebhookSecret = secret

	pool := NewWorkerPool(2, 8)
	pool.Start()
	t.Cleanup(pool.Stop)

	return NewHandler(cfg, reviewer, pool)
}

func post(h http.Handler, event, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandler_AcceptsOpenedPR(t *testing.T) {
	reviewer := &fakeReviewer{done: make(chan struct{}, 1)}
	h := newTestHandler(t, "", reviewer)

	rec := post(h, "pull_request", prEvent, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	select {
	case <-reviewer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("review job never ran")
	}

	reviewer.mu.Lock()
	defer reviewer.mu.Unlock()
	if len(reviewer.calls) != 1 || reviewer.calls[0] != "acme/app#7" {
		t.Errorf("calls = %v", reviewer.calls)
	}
}

func TestHandler_SignatureRequired(t *testing.T) {
	reviewer := &fakeReviewer{}
	h := newTestHandler(t, "topsecret", reviewer)

	if rec := post(h, "pull_request", prEvent, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing signature: status = %d", rec.Code)
	}

	bad := map[string]string{"X-Hub-Signature-256": "sha256=deadbeef"}
	if rec := post(h, "pull_request", prEvent, bad); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: status = %d", rec.Code)
	}

	good := map[string]string{"X-Hub-Signature-256": sign(prEvent, "topsecret")}
	if rec := post(h, "pull_request", prEvent, good); rec.Code != http.StatusOK {
		t.Errorf("good signature: status = %d", rec.Code)
	}
}

func TestHandler_IgnoresOtherEvents(t *testing.T) {
	reviewer := &fakeReviewer{}
	h := newTestHandler(t, "", reviewer)

	if rec := post(h, "push", `{"ref":"refs/heads/main"}`, nil); rec.Code != http.StatusOK {
		t.Errorf("push event: status = %d", rec.Code)
	}
	if rec := post(h, "ping", `{"zen":"Keep it simple."}`, nil); rec.Code != http.StatusOK {
		t.Errorf("ping: status = %d", rec.Code)
	}

	closed := `{"action":"closed","repository":{"full_name":"acme/app"},"pull_request":{"number":7}}`
	if rec := post(h, "pull_request", closed, nil); rec.Code != http.StatusOK {
		t.Errorf("closed action: status = %d", rec.Code)
	}

	time.Sleep(50 * time.Millisecond)
	if reviewer.count() != 0 {
		t.Errorf("no review should have run, got %d", reviewer.count())
	}
}

func TestHandler_RejectsBadPayload(t *testing.T) {
	h := newTestHandler(t, "", &fakeReviewer{})

	rec := post(h, "pull_request", `{"action":"opened"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, "", &fakeReviewer{})

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandler_DebouncesSynchronize(t *testing.T) {
	reviewer := &fakeReviewer{done: make(chan struct{}, 8)}
	h := newTestHandler(t, "", reviewer)
	h.debounce = gosync.NewDebouncer(20 * time.Millisecond)

	syncEvent := `{"action":"synchronize","repository":{"full_name":"acme/app"},"pull_request":{"number":7}}`
	for i := 0; i < 4; i++ {
		if rec := post(h, "pull_request", syncEvent, nil); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	select {
	case <-reviewer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced job never ran")
	}
	time.Sleep(100 * time.Millisecond)
	if reviewer.count() != 1 {
		t.Errorf("reviews = %d, want burst collapsed to 1", reviewer.count())
	}
}

func TestWorkerPool_ShedsLoadWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	// Not started: the queue fills and stays full.
	if err := pool.Submit(func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := pool.Submit(func(context.Context) error { return nil }); err != ErrQueueFull {
		t.Errorf("second submit err = %v, want ErrQueueFull", err)
	}
}

func TestReducePayload(t *testing.T) {
	got := ReducePayload([]byte(prEvent))
	for _, want := range []string{`"action":"opened"`, `"full_name":"acme/app"`, `"number":7`} {
		if !strings.Contains(got, want) {
			t.Errorf("reduced payload missing %s: %s", want, got)
		}
	}
	if strings.Contains(got, "title") && !strings.Contains(got, `"title":"Add x"`) {
		t.Errorf("reduced payload mangled title: %s", got)
	}

	if got := ReducePayload([]byte("not json")); got != "not json" {
		t.Errorf("invalid json should pass through truncated, got %q", got)
	}
}
