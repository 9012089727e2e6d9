package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ResolveReview finishes the review job with the given outcome and moves the content to the mapped status.
// Only a reviewer can resolve jobs. Jobs which are assigned to another reviewer can only be resolved by staff.
// Nobody can resolve the job of their own content.
func (c *CoreDB) ResolveReview(ctx context.Context, reviewer Identity, jobID int64, outcome ReviewStatus, result string) (ReviewJob, error) {

	if !reviewer.LoggedIn() {
		return ReviewJob{}, ErrUnauthenticated
	}
	if !reviewer.CanReview() {
		return ReviewJob{}, ErrNoReviewer
	}

	target, ok := OutcomeStatus(outcome)
	if !ok {
		return ReviewJob{}, ErrInvalidReviewStatus
	}

	job, err := c.ReviewJobDB.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReviewJob{}, ErrReviewJobNotFound
		}
		return ReviewJob{}, fmt.Errorf("get review job %d: %w", jobID, err)
	}

	if job.Resolved() {
		return ReviewJob{}, ErrReviewFinished
	}
	if !job.AssignedTo(reviewer.UserID) && !reviewer.IsStaff() {
		return ReviewJob{}, ErrNotYourReview
	}

	content, err := c.ContentDB.GetMetadata(ctx, job.Ref())
	if err != nil && !errors.Is(err, ErrNotFound) {
		return ReviewJob{}, fmt.Errorf("get metadata of %s: %w", job.Ref(), err)
	}
	if err == nil && content.OwnerID == reviewer.UserID {
		return ReviewJob{}, ErrForbidden // nobody reviews their own content, staff included
	}

	var now = c.now()
	var resolved = job.ForkResolved(outcome, strings.TrimSpace(result), now)
	if !job.AssignedTo(reviewer.UserID) {
		resolved = resolved.ForkReviewer(reviewer.UserID) // record who actually decided
	}

	if err := c.ReviewJobDB.UpdateJob(ctx, resolved, NotReviewed); err != nil {
		if errors.Is(err, ErrConflict) {
			return ReviewJob{}, ErrReviewFinished
		}
		return ReviewJob{}, fmt.Errorf("update review job %d: %w", jobID, err)
	}

	c.logger().Info("review resolved",
		zap.Int64("job", resolved.ID),
		zap.Stringer("content", resolved.Ref()),
		zap.Stringer("outcome", outcome),
		zap.Int("reviewer", reviewer.UserID))

	if err := c.ContentDB.SetStatus(ctx, resolved.Ref(), Reviewing, target, now); err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			// content was hidden or deleted in the meantime, the job stays as a record
			c.logger().Warn("content left review before resolution", zap.Stringer("content", resolved.Ref()), zap.Error(err))
			return resolved, nil
		}
		return ReviewJob{}, fmt.Errorf("set status of %s: %w", resolved.Ref(), err)
	}

	meta, err := c.ContentDB.GetMetadata(ctx, resolved.Ref())
	if err != nil {
		c.logger().Error("reloading resolved content", zap.Stringer("content", resolved.Ref()), zap.Error(err))
		return resolved, nil
	}

	var ev = NewContentStatusEvent(meta, Reviewing.Ptr(), target, now)
	ev.Review = &resolved
	c.publish(ctx, ev)

	return resolved, nil
}

// Reassign assigns an unfinished review job to another reviewer. Only staff can do that.
func (c *CoreDB) Reassign(ctx context.Context, staff Identity, jobID int64, reviewerID int) (ReviewJob, error) {

	if !staff.LoggedIn() {
		return ReviewJob{}, ErrUnauthenticated
	}
	if !staff.IsStaff() {
		return ReviewJob{}, ErrForbidden
	}

	reviewer, err := c.Identify(ctx, reviewerID, staff.Language)
	if err != nil {
		return ReviewJob{}, err
	}
	if !reviewer.CanReview() {
		return ReviewJob{}, ErrNoReviewer
	}

	job, err := c.ReviewJobDB.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReviewJob{}, ErrReviewJobNotFound
		}
		return ReviewJob{}, fmt.Errorf("get review job %d: %w", jobID, err)
	}
	if job.Resolved() {
		return ReviewJob{}, ErrReviewFinished
	}
	if job.AssignedTo(reviewerID) {
		return job, nil
	}

	meta, err := c.ContentDB.GetMetadata(ctx, job.Ref())
	if err != nil {
		return ReviewJob{}, fmt.Errorf("get metadata of %s: %w", job.Ref(), err)
	}
	if meta.OwnerID == reviewerID {
		return ReviewJob{}, ErrNoReviewer // nobody reviews their own content
	}

	var reassigned = job.ForkReviewer(reviewerID)
	if err := c.ReviewJobDB.UpdateJob(ctx, reassigned, NotReviewed); err != nil {
		if errors.Is(err, ErrConflict) {
			return ReviewJob{}, ErrReviewFinished
		}
		return ReviewJob{}, fmt.Errorf("update review job %d: %w", jobID, err)
	}

	c.logger().Info("review job reassigned", zap.Int64("job", jobID), zap.Int("reviewer", reviewerID), zap.Int("staff", staff.UserID))

	if c.Assigner != nil && c.Assigner.OnAssigned != nil {
		c.Assigner.OnAssigned(ctx, reassigned, meta)
	}

	return reassigned, nil
}

// MyReviewJobs returns the review jobs of the reviewer in the given group of states.
func (c *CoreDB) MyReviewJobs(ctx context.Context, reviewer Identity, statuses ReviewStatuses) ([]ReviewJob, error) {
	if !reviewer.LoggedIn() {
		return nil, ErrUnauthenticated
	}
	if !reviewer.CanReview() {
		return nil, ErrNoReviewer
	}
	var list = statuses.Statuses()
	if list == nil {
		return nil, ErrInvalidReviewStatus
	}
	return c.ReviewJobDB.GetJobsByReviewer(ctx, reviewer.UserID, list...)
}
