package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestReviewJobFork(t *testing.T) {
	var created = time.Unix(1000, 0)
	var job = NewReviewJob(ContentRef{Type: Article, ID: 5}, created).ForkReviewer(7)

	var forked = job.Fork(42)
	if forked.ID != 42 {
		t.Fatalf("got id %d, want 42", forked.ID)
	}
	if forked.ContentID != 5 || forked.Type != Article || forked.Status != NotReviewed || !forked.CreatedAt.Equal(created) || !forked.AssignedTo(7) {
		t.Fatalf("fork changed more than the id: %+v", forked)
	}
	if job.ID != 0 {
		t.Fatal("fork modified the original")
	}

	// reviewer ids don't share memory
	*forked.ReviewerID = 8
	if !job.AssignedTo(7) {
		t.Fatal("fork shares the reviewer id with the original")
	}
}

func TestReviewJobForkResolved(t *testing.T) {
	var job = NewReviewJob(ContentRef{Type: Comment, ID: 1}, time.Unix(1000, 0)).Fork(3)
	var at = time.Unix(2000, 0)
	var resolved = job.ForkResolved(Reviewed, "fine", at)
	if resolved.ID != 3 || resolved.Status != Reviewed || resolved.Result != "fine" || resolved.ReviewTime == nil || !resolved.ReviewTime.Equal(at) {
		t.Fatalf("got %+v", resolved)
	}
	if job.Resolved() || !resolved.Resolved() {
		t.Fatal("unexpected resolved state")
	}

	// review times don't share memory
	var copied = resolved.Fork(resolved.ID)
	*copied.ReviewTime = time.Unix(3000, 0)
	if !resolved.ReviewTime.Equal(at) {
		t.Fatal("fork shares the review time with the original")
	}
}

func TestReviewJobJSON(t *testing.T) {
	var job = NewReviewJob(ContentRef{Type: Post, ID: 2}, time.Unix(1000, 0)).Fork(4)

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "reviewTime") {
		t.Fatalf("unresolved job has a review time: %s", data)
	}

	data, err = json.Marshal(job.ForkResolved(ReviewRejected, "", time.Unix(2000, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"reviewTime":"`) {
		t.Fatalf("resolved job lacks a review time: %s", data)
	}
}

func TestReviewStatus(t *testing.T) {
	for _, s := range []ReviewStatus{NotReviewed, Reviewed, ReviewRejected} {
		parsed, err := ParseReviewStatus(s.String())
		if err != nil || parsed != s {
			t.Fatalf("ParseReviewStatus(%s) = %v, %v", s, parsed, err)
		}
	}
	if _, err := ParseReviewStatus("MAYBE"); err != ErrInvalidReviewStatus {
		t.Fatalf("got %v", err)
	}
	if NotReviewed.Finished() || !Reviewed.Finished() || !ReviewRejected.Finished() {
		t.Fatal("unexpected Finished")
	}
}

func TestParseReviewStatuses(t *testing.T) {
	if g, _ := ParseReviewStatuses(""); g != Unfinished {
		t.Fatalf("got %s, want %s", g, Unfinished)
	}
	if g, _ := ParseReviewStatuses(" Finished "); g != Finished {
		t.Fatalf("got %s, want %s", g, Finished)
	}
	if _, err := ParseReviewStatuses("pending"); err != ErrInvalidReviewStatus {
		t.Fatalf("got %v", err)
	}
}

func TestOutcomeStatus(t *testing.T) {
	if s, ok := OutcomeStatus(Reviewed); !ok || s != Published {
		t.Fatalf("got %s", s)
	}
	if s, ok := OutcomeStatus(ReviewRejected); !ok || s != Rejected {
		t.Fatalf("got %s", s)
	}
	if _, ok := OutcomeStatus(NotReviewed); ok {
		t.Fatal("NotReviewed is no outcome")
	}
}

func TestNeedsAssign(t *testing.T) {
	var meta = ContentMetadata{Ref: ContentRef{Type: Post, ID: 1}}
	var now = time.Now()
	if !NewContentStatusEvent(meta, nil, Reviewing, now).NeedsAssign() {
		t.Fatal("creation in review needs assignment")
	}
	if NewContentStatusEvent(meta, nil, Published, now).NeedsAssign() {
		t.Fatal("published creation needs no assignment")
	}
	if !NewContentStatusEvent(meta, Draft.Ptr(), Reviewing, now).NeedsAssign() {
		t.Fatal("draft entering review needs assignment")
	}
	if NewContentStatusEvent(meta, Reviewing.Ptr(), Published, now).NeedsAssign() {
		t.Fatal("resolution needs no assignment")
	}
}

func TestErrorCodeRegistry(t *testing.T) {
	e, ok := LookupErrorCode("ERROR_TITLE_EMPTY")
	if !ok || e != ErrTitleEmpty || e.Kind != KindValidation {
		t.Fatalf("got %v, %t", e, ok)
	}
	if _, ok := LookupErrorCode("ERROR_NOPE"); ok {
		t.Fatal("unexpected code")
	}
	if AsErrorCode(nil) != Success {
		t.Fatal("nil is success")
	}
	if AsErrorCode(ErrNotFound) != ErrInternal {
		t.Fatal("plain errors are internal")
	}
	if !Success.IsSuccess() || ErrReviewFinished.IsSuccess() {
		t.Fatal("unexpected IsSuccess")
	}
}
