package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReviewsTotal counts end-to-end review runs, labeled by status.
	ReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewer_runs_total",
		Help: "The total number of review runs",
	}, []string{"status"}) // status: success, failed

	// WebhookRequests counts incoming webhooks, labeled by status.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewer_webhook_requests_total",
		Help: "The total number of received webhook requests",
	}, []string{"status"}) // status: accepted, dropped, invalid, ignored

	// ReviewDuration measures end-to-end review time.
	ReviewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reviewer_run_duration_seconds",
		Help:    "Time taken to review a pull request",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"}) // result: success, error

	// BatchesTotal counts batch critiques, labeled by outcome.
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewer_batches_total",
		Help: "The total number of reviewed batches",
	}, []string{"status"}) // status: success, degraded, error

	// FindingsTotal counts findings by severity and what became of them.
	FindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewer_findings_total",
		Help: "Total number of findings produced by the model",
	}, []string{"severity", "outcome"}) // outcome: anchored, unresolved, dropped

	// SubmissionFailures counts failed review submission calls.
	SubmissionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewer_submission_failures_total",
		Help: "Total number of failed review submission calls",
	}, []string{"reason"}) // reason: inline, fallback

	// DiffFilesSkipped counts files the parser had to give up on.
	DiffFilesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewer_diff_files_skipped_total",
		Help: "Total number of diff files skipped as unparseable",
	})
)
