package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/icza/gox/gox"
)

// ReviewStatus is the state of a ReviewJob. NotReviewed is the zero value and the only non-terminal state.
type ReviewStatus int

const (
	NotReviewed    ReviewStatus = 0
	Reviewed       ReviewStatus = 1 // terminal, passed
	ReviewRejected ReviewStatus = 2 // terminal, failed
)

func (s ReviewStatus) String() string {
	switch s {
	case NotReviewed:
		return "NOT_REVIEWED"
	case Reviewed:
		return "REVIEWED"
	case ReviewRejected:
		return "REJECTED"
	}
	return "UNKNOWN"
}

func (s ReviewStatus) Valid() bool {
	switch s {
	case NotReviewed, Reviewed, ReviewRejected:
		return true
	default:
		return false
	}
}

func (s ReviewStatus) Finished() bool {
	return s == Reviewed || s == ReviewRejected
}

func ParseReviewStatus(name string) (ReviewStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NOT_REVIEWED":
		return NotReviewed, nil
	case "REVIEWED":
		return Reviewed, nil
	case "REJECTED":
		return ReviewRejected, nil
	}
	return 0, ErrInvalidReviewStatus
}

func (s ReviewStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid review status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *ReviewStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseReviewStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ReviewStatuses groups review states for queries like "my unfinished jobs".
type ReviewStatuses string

const (
	Finished   ReviewStatuses = "finished"
	Unfinished ReviewStatuses = "unfinished"
	Passed     ReviewStatuses = "passed"
	All        ReviewStatuses = "all"
)

// Statuses returns the review states of the group, or nil if the group is unknown.
func (g ReviewStatuses) Statuses() []ReviewStatus {
	switch g {
	case Finished:
		return []ReviewStatus{Reviewed, ReviewRejected}
	case Unfinished:
		return []ReviewStatus{NotReviewed}
	case Passed:
		return []ReviewStatus{Reviewed}
	case All:
		return []ReviewStatus{NotReviewed, Reviewed, ReviewRejected}
	}
	return nil
}

func ParseReviewStatuses(s string) (ReviewStatuses, error) {
	var g = ReviewStatuses(strings.ToLower(strings.TrimSpace(s)))
	if g == "" {
		return Unfinished, nil
	}
	if g.Statuses() == nil {
		return "", ErrInvalidReviewStatus
	}
	return g, nil
}

// A ReviewJob is one unit of review work. Values are snapshots: modify them with the Fork methods,
// which return copies, and store the copy through a ReviewJobDB.
//
// ReviewJobs are never deleted, they remain as an audit record.
type ReviewJob struct {
	ID         int64        `json:"id"` // zero until inserted
	ContentID  int64        `json:"content"`
	Type       ReviewType   `json:"type"`
	ReviewerID *int         `json:"reviewer,omitempty"`
	Status     ReviewStatus `json:"status"`
	Result     string       `json:"result,omitempty"`
	CreatedAt  time.Time    `json:"created"`              // "pending since" for unfinished jobs
	ReviewTime *time.Time   `json:"reviewTime,omitempty"` // nil until resolved
}

// NewReviewJob creates an unassigned job in state NotReviewed.
func NewReviewJob(ref ContentRef, now time.Time) ReviewJob {
	return ReviewJob{
		ContentID: ref.ID,
		Type:      ref.Type,
		Status:    NotReviewed,
		CreatedAt: now,
	}
}

func (j ReviewJob) Ref() ContentRef {
	return ContentRef{Type: j.Type, ID: j.ContentID}
}

func (j ReviewJob) Resolved() bool {
	return j.Status.Finished()
}

// AssignedTo returns whether the job is assigned to the given user.
func (j ReviewJob) AssignedTo(userID int) bool {
	return j.ReviewerID != nil && *j.ReviewerID == userID
}

// Fork returns a copy of the job with the given id.
func (j ReviewJob) Fork(id int64) ReviewJob {
	var fork = j.clone()
	fork.ID = id
	return fork
}

// ForkReviewer returns a copy of the job assigned to the given reviewer.
func (j ReviewJob) ForkReviewer(reviewerID int) ReviewJob {
	var fork = j.clone()
	fork.ReviewerID = gox.NewInt(reviewerID)
	return fork
}

// ForkResolved returns a copy of the job with the given outcome.
func (j ReviewJob) ForkResolved(status ReviewStatus, result string, at time.Time) ReviewJob {
	var fork = j.clone()
	fork.Status = status
	fork.Result = result
	fork.ReviewTime = &at
	return fork
}

// clone copies the job, including the memory behind the pointers.
func (j ReviewJob) clone() ReviewJob {
	if j.ReviewerID != nil {
		j.ReviewerID = gox.NewInt(*j.ReviewerID)
	}
	if j.ReviewTime != nil {
		var t = *j.ReviewTime
		j.ReviewTime = &t
	}
	return j
}

// A ReviewJobDB is the single source of truth for review jobs.
//
// InsertJob fails with ErrConflict if an unfinished job exists for the same content and type.
// UpdateJob is a compare-and-swap: it replaces the stored job with the same id only if its status equals expected, else it fails with ErrConflict.
type ReviewJobDB interface {
	InsertJob(ctx context.Context, j ReviewJob) (ReviewJob, error)
	UpdateJob(ctx context.Context, j ReviewJob, expected ReviewStatus) error
	GetJob(ctx context.Context, id int64) (ReviewJob, error)                        // ErrNotFound
	GetJobBy(ctx context.Context, contentID int64, t ReviewType) (ReviewJob, error) // unfinished job if any, else the latest one, else ErrNotFound
	GetJobsByReviewer(ctx context.Context, reviewerID int, statuses ...ReviewStatus) ([]ReviewJob, error)
	CountUnfinished(ctx context.Context, reviewerID int) (int, error)
}
