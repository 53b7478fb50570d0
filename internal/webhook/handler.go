package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"pr-diff-review/internal/config"
	"pr-diff-review/internal/github"
	"pr-diff-review/internal/metrics"
	gosync "pr-diff-review/internal/sync"
)

// reviewableActions are the pull_request actions that trigger a review.
var reviewableActions = map[string]bool{
	"opened":           true,
	"synchronize":      true,
	"reopened":         true,
	"ready_for_review": true,
}

// Reviewer is the piece of the pipeline the handler hands accepted events to.
type Reviewer interface {
	Review(ctx context.Context, owner, repo string, number int) error
}

// Handler accepts GitHub pull_request webhooks, verifies them, and queues
// reviews. It answers fast and does the work asynchronously; GitHub gives a
// webhook ten seconds, a review takes minutes.
type Handler struct {
	cfg      *config.Config
	reviewer Reviewer
	pool     *WorkerPool
	locks    *gosync.KeyLock
	debounce *gosync.Debouncer

	// jobTimeout bounds one review run end to end.
	jobTimeout time.Duration
}

// NewHandler creates a Handler on top of an already started pool.
func NewHandler(cfg *config.Config, reviewer Reviewer, pool *WorkerPool) *Handler {
	return &Handler{
		cfg:      cfg,
		reviewer: reviewer,
		pool:     pool,
		locks:    gosync.NewKeyLock(),
		// Force-push bursts on the same PR collapse into one review.
		debounce:   gosync.NewDebouncer(10 * time.Second),
		jobTimeout: 15 * time.Minute,
	}
}

// ServeHTTP handles incoming webhook requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.WebhookRequests.WithLabelValues("received").Inc()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("read body failed", "error", err)
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		metrics.WebhookRequests.WithLabelValues("error_read").Inc()
		return
	}

	if h.cfg.Server.WebhookSecret != "" {
		signature := r.Header.Get("X-Hub-Signature-256")
		if signature == "" || !verifySignature(body, signature, h.cfg.Server.WebhookSecret) {
			slog.Warn("invalid or missing signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			metrics.WebhookRequests.WithLabelValues("invalid_signature").Inc()
			return
		}
	}

	if !utf8.Valid(body) {
		http.Error(w, "Invalid encoding", http.StatusBadRequest)
		metrics.WebhookRequests.WithLabelValues("invalid_encoding").Inc()
		return
	}

	switch event := r.Header.Get("X-GitHub-Event"); event {
	case "ping":
		metrics.WebhookRequests.WithLabelValues("ignored").Inc()
		fmt.Fprintln(w, "pong")
		return
	case "pull_request":
	default:
		slog.Debug("ignoring event", "event", event)
		metrics.WebhookRequests.WithLabelValues("ignored").Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "Event ignored")
		return
	}

	ref, err := github.ParseEvent(body)
	if err != nil {
		slog.Warn("payload parse failed", "error", err, "payload", ReducePayload(body))
		http.Error(w, "Unparseable payload", http.StatusBadRequest)
		metrics.WebhookRequests.WithLabelValues("invalid_payload").Inc()
		return
	}

	if !reviewableActions[ref.Action] {
		slog.Debug("ignoring action", "action", ref.Action, "pr", ref.Number)
		metrics.WebhookRequests.WithLabelValues("ignored").Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "Action ignored")
		return
	}

	slog.Info("Accepted webhook", "payload", ReducePayload(body))
	key := fmt.Sprintf("%s/%s#%d", ref.Owner, ref.Repo, ref.Number)

	if ref.Action == "synchronize" {
		// New commits arrive in bursts; wait for the pusher to settle.
		h.debounce.Add(key, func() {
			if err := h.enqueue(key, ref); err != nil {
				slog.Warn("debounced job dropped", "pr", key, "error", err)
				metrics.WebhookRequests.WithLabelValues("dropped").Inc()
			}
		})
		metrics.WebhookRequests.WithLabelValues("accepted").Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "Pull request queued for review")
		return
	}

	if err := h.enqueue(key, ref); err != nil {
		metrics.WebhookRequests.WithLabelValues("dropped").Inc()
		http.Error(w, "Server busy, please retry later", http.StatusTooManyRequests)
		return
	}
	metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Pull request queued for review")
}

func (h *Handler) enqueue(key string, ref *github.EventRef) error {
	return h.pool.Submit(func(ctx context.Context) error {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic recovered in review job",
					"pr", key, "panic", r, "stack", string(debug.Stack()))
			}
		}()

		// One review per PR at a time; a second event for the same PR
		// waits for the running review instead of racing it.
		h.locks.Lock(key)
		defer h.locks.Unlock(key)

		ctx, cancel := context.WithTimeout(ctx, h.jobTimeout)
		defer cancel()

		return h.reviewer.Review(ctx, ref.Owner, ref.Repo, ref.Number)
	})
}

// verifySignature validates the HMAC-SHA256 signature of a webhook request.
// Expected header format: sha256=<hex-encoded-signature>
func verifySignature(body []byte, signature, secret string) bool {
	parts := strings.SplitN(signature, "=", 2)
	if len(parts) != 2 || parts[0] != "sha256" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal([]byte(expected), []byte(parts[1]))
}
