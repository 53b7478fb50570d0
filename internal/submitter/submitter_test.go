package submitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"pr-diff-review/internal/domain"
	"pr-diff-review/internal/types"
)

type reviewCall struct {
	body        string
	comments    []domain.Comment
	disposition domain.Disposition
}

type fakePlatform struct {
	reviews       []reviewCall
	issueComments []string

	// failReviews counts down: while positive, CreateReview fails.
	failReviews int
	reviewErr   error
	issueErr    error
}

func (f *fakePlatform) CreateReview(_ context.Context, _ *domain.PullRequest, body string,
	comments []domain.Comment, disposition domain.Disposition) error {
	if f.failReviews > 0 {
		f.failReviews--
		return f.reviewErr
	}
	f.reviews = append(f.reviews, reviewCall{body, comments, disposition})
	return nil
}

func (f *fakePlatform) CreateIssueComment(_ context.Context, _ *domain.PullRequest, body string) error {
	if f.issueErr != nil {
		return f.issueErr
	}
	f.issueComments = append(f.issueComments, body)
	return nil
}

func fastOpts() Options {
	return Options{
		MaxCommentsPerCall: 2,
		MaxAttempts:        3,
		Backoff:            time.Millisecond,
		MaxBackoff:         2 * time.Millisecond,
	}
}

var testPR = &domain.PullRequest{Owner: "acme", Repo: "app", Number: 7}

func makeComments(n int) []domain.Comment {
	out := make([]domain.Comment, n)
	for i := range out {
		out[i] = domain.Comment{
			File:     "a.py",
			Pos:      domain.Position(i + 1),
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("comment %d", i),
		}
	}
	return out
}

func TestSubmit_SingleChunk(t *testing.T) {
	fake := &fakePlatform{}
	sub := &domain.ReviewSubmission{
		Summary:     "summary",
		Comments:    makeComments(2),
		Disposition: domain.DispositionRequestChanges,
	}

	outcome, err := New(fake, fastOpts()).Submit(context.Background(), testPR, sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if outcome.Delivered != 2 || outcome.FellBack {
		t.Errorf("outcome = %+v", outcome)
	}
	if len(fake.reviews) != 1 {
		t.Fatalf("reviews = %d, want 1", len(fake.reviews))
	}
	call := fake.reviews[0]
	if call.body != "summary" || call.disposition != domain.DispositionRequestChanges {
		t.Errorf("call = %+v", call)
	}
}

func TestSubmit_SplitsChunks(t *testing.T) {
	fake := &fakePlatform{}
	sub := &domain.ReviewSubmission{
		Summary:     "summary",
		Comments:    makeComments(5),
		Disposition: domain.DispositionRequestChanges,
	}

	outcome, err := New(fake, fastOpts()).Submit(context.Background(), testPR, sub)
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.reviews) != 3 {
		t.Fatalf("reviews = %d, want 3 chunks of <=2", len(fake.reviews))
	}
	if outcome.Delivered != 5 {
		t.Errorf("delivered = %d, want 5", outcome.Delivered)
	}

	// Only the first chunk carries the summary and the verdict.
	if fake.reviews[0].disposition != domain.DispositionRequestChanges {
		t.Errorf("first chunk disposition = %v", fake.reviews[0].disposition)
	}
	for i, call := range fake.reviews[1:] {
		if call.disposition != domain.DispositionComment {
			t.Errorf("follow-up chunk %d disposition = %v, want comment-only", i+1, call.disposition)
		}
		if call.body == "summary" {
			t.Errorf("follow-up chunk %d repeats the summary", i+1)
		}
	}
}

func TestSubmit_RetriesTransientErrors(t *testing.T) {
	fake := &fakePlatform{
		failReviews: 2,
		reviewErr:   types.NewRetryableError(errors.New("503")),
	}
	sub := &domain.ReviewSubmission{Summary: "s", Comments: makeComments(1)}

	outcome, err := New(fake, fastOpts()).Submit(context.Background(), testPR, sub)
	if err != nil {
		t.Fatalf("Submit() error = %v, want success on third attempt", err)
	}
	if len(fake.reviews) != 1 || outcome.Delivered != 1 {
		t.Errorf("reviews = %d, outcome = %+v", len(fake.reviews), outcome)
	}
}

func TestSubmit_PermanentErrorNoRetry(t *testing.T) {
	fake := &fakePlatform{
		failReviews: 100,
		reviewErr:   errors.New("422 unprocessable"),
	}
	sub := &domain.ReviewSubmission{Summary: "s", Comments: makeComments(1)}

	_, err := New(fake, fastOpts()).Submit(context.Background(), testPR, sub)
	if err != nil {
		t.Fatalf("fallback should rescue a permanent inline failure, got %v", err)
	}

	// One failed attempt, no retries, comments land via the fallback.
	if fake.failReviews != 99 {
		t.Errorf("attempts consumed = %d, want 1", 100-fake.failReviews)
	}
	if len(fake.issueComments) != 1 {
		t.Fatalf("issue comments = %d, want 1 fallback", len(fake.issueComments))
	}
}

func TestSubmit_FallbackCollectsFailedChunks(t *testing.T) {
	fake := &fakePlatform{
		failReviews: 100,
		reviewErr:   errors.New("403"),
	}
	sub := &domain.ReviewSubmission{Summary: "s", Comments: makeComments(5)}

	outcome, err := New(fake, fastOpts()).Submit(context.Background(), testPR, sub)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.FellBack || outcome.Delivered != 5 {
		t.Errorf("outcome = %+v", outcome)
	}
	if len(outcome.Failed()) != 3 {
		t.Errorf("failed chunks = %d, want 3", len(outcome.Failed()))
	}
	if len(fake.issueComments) != 1 {
		t.Fatalf("issue comments = %d", len(fake.issueComments))
	}
	for i := 0; i < 5; i++ {
		want := fmt.Sprintf("comment %d", i)
		if !strings.Contains(fake.issueComments[0], want) {
			t.Errorf("fallback body missing %q", want)
		}
	}
}

func TestSubmit_TotalFailureKeepsSubmissionIntact(t *testing.T) {
	fake := &fakePlatform{
		failReviews: 100,
		reviewErr:   errors.New("403"),
		issueErr:    errors.New("403"),
	}
	sub := &domain.ReviewSubmission{
		Summary:     "s",
		Comments:    makeComments(3),
		Disposition: domain.DispositionRequestChanges,
	}

	outcome, err := New(fake, fastOpts()).Submit(context.Background(), testPR, sub)
	if err == nil {
		t.Fatal("expected error when everything fails")
	}
	if outcome == nil || outcome.Delivered != 0 {
		t.Errorf("outcome = %+v", outcome)
	}

	// The submission is untouched and could be persisted or retried.
	if len(sub.Comments) != 3 || sub.Summary != "s" || sub.Disposition != domain.DispositionRequestChanges {
		t.Errorf("submission mutated: %+v", sub)
	}
}

func TestSubmit_NoComments(t *testing.T) {
	fake := &fakePlatform{}
	sub := &domain.ReviewSubmission{Summary: "clean", Disposition: domain.DispositionComment}

	outcome, err := New(fake, fastOpts()).Submit(context.Background(), testPR, sub)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Delivered != 0 {
		t.Errorf("delivered = %d", outcome.Delivered)
	}
	if len(fake.reviews) != 1 || fake.reviews[0].body != "clean" {
		t.Errorf("summary-only review not posted: %+v", fake.reviews)
	}
}
