package core

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// A ReviewerSelector picks one of the candidates, which is never empty.
type ReviewerSelector interface {
	Select(ctx context.Context, content ContentMetadata, candidates []int) (int, error)
}

// LeastLoaded selects the candidate with the fewest unfinished review jobs. Ties go to the lowest user id.
type LeastLoaded struct {
	Jobs ReviewJobDB
}

func (s LeastLoaded) Select(ctx context.Context, content ContentMetadata, candidates []int) (int, error) {
	var best, bestCount = 0, -1
	for _, candidate := range candidates {
		count, err := s.Jobs.CountUnfinished(ctx, candidate)
		if err != nil {
			return 0, err
		}
		if bestCount == -1 || count < bestCount || (count == bestCount && candidate < best) {
			best, bestCount = candidate, count
		}
	}
	return best, nil
}

// RoundRobin selects the candidate with the next higher user id than the previous selection, wrapping around.
type RoundRobin struct {
	mu   sync.Mutex
	last int
}

func (s *RoundRobin) Select(ctx context.Context, content ContentMetadata, candidates []int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lowest, next = candidates[0], 0
	for _, candidate := range candidates {
		if candidate < lowest {
			lowest = candidate
		}
		if candidate > s.last && (next == 0 || candidate < next) {
			next = candidate
		}
	}
	if next == 0 {
		next = lowest
	}
	s.last = next
	return next, nil
}

// An Assigner is the Review Assignment Engine. It creates at most one unfinished ReviewJob per content item.
type Assigner struct {
	Jobs       ReviewJobDB
	Identities IdentityProvider
	Selector   ReviewerSelector
	Now        func() time.Time
	Logger     *zap.Logger

	// Contents is consulted before a job is created. If set, content which has left state Reviewing gets no new job.
	Contents interface {
		GetMetadata(ctx context.Context, ref ContentRef) (ContentMetadata, error)
	}

	// OnAssigned is called after a job with a reviewer has been created. It must not block for long.
	OnAssigned func(ctx context.Context, job ReviewJob, content ContentMetadata)

	locks [32]sync.Mutex // serializes assignments per content on this node, the ReviewJobDB does so across nodes
}

func (a *Assigner) lock(ref ContentRef) *sync.Mutex {
	var h = fnv.New32a()
	h.Write([]byte(ref.String()))
	return &a.locks[h.Sum32()%uint32(len(a.locks))]
}

// AssignReviewer returns the unfinished job of the content, or creates one.
// The reviewer is chosen among the candidates of the IdentityProvider, excluding the owner of the content.
// If there is no candidate, the job is created without reviewer.
// If the content is no longer in review, no job is created and the latest resolved job (or a zero job) is returned.
func (a *Assigner) AssignReviewer(ctx context.Context, content ContentMetadata) (ReviewJob, error) {

	var ref = content.Ref

	var mu = a.lock(ref)
	mu.Lock()
	defer mu.Unlock()

	existing, err := a.Jobs.GetJobBy(ctx, ref.ID, ref.Type)
	switch {
	case err == nil && !existing.Resolved():
		a.logger().Debug("review job exists", zap.Stringer("content", ref), zap.Int64("job", existing.ID))
		return existing, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return ReviewJob{}, fmt.Errorf("get review job of %s: %w", ref, err)
	case err != nil:
		existing = ReviewJob{}
	}

	// a redelivered event must not reopen a review which has been resolved meanwhile
	if a.Contents != nil {
		current, err := a.Contents.GetMetadata(ctx, ref)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return ReviewJob{}, fmt.Errorf("get metadata of %s: %w", ref, err)
		}
		if err != nil || current.Status != Reviewing {
			a.logger().Debug("content not in review, no job created", zap.Stringer("content", ref))
			return existing, nil // zero if there is no job
		}
		content = current
	}

	var job = NewReviewJob(ref, a.now())

	reviewer, ok, err := a.selectReviewer(ctx, content)
	if err != nil {
		return ReviewJob{}, err
	}
	if ok {
		job = job.ForkReviewer(reviewer)
	} else {
		a.logger().Warn("no reviewer candidate, job stays unassigned", zap.Stringer("content", ref))
	}

	inserted, err := a.Jobs.InsertJob(ctx, job)
	if errors.Is(err, ErrConflict) {
		// another node was faster
		if existing, err := a.Jobs.GetJobBy(ctx, ref.ID, ref.Type); err == nil && !existing.Resolved() {
			return existing, nil
		}
		return ReviewJob{}, ErrReviewDuplicate
	}
	if err != nil {
		return ReviewJob{}, fmt.Errorf("insert review job of %s: %w", ref, err)
	}

	var fields = []zap.Field{zap.Stringer("content", ref), zap.Int64("job", inserted.ID)}
	if inserted.ReviewerID != nil {
		fields = append(fields, zap.Int("reviewer", *inserted.ReviewerID))
	}
	a.logger().Info("review job created", fields...)

	if a.OnAssigned != nil && inserted.ReviewerID != nil {
		a.OnAssigned(ctx, inserted, content)
	}

	return inserted, nil
}

func (a *Assigner) selectReviewer(ctx context.Context, content ContentMetadata) (int, bool, error) {

	all, err := a.Identities.ReviewerCandidates(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("reviewer candidates: %w", err)
	}

	var candidates = make([]int, 0, len(all))
	for _, candidate := range all {
		if candidate != content.OwnerID {
			candidates = append(candidates, candidate)
		}
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}

	selected, err := a.Selector.Select(ctx, content, candidates)
	if err != nil {
		return 0, false, fmt.Errorf("select reviewer: %w", err)
	}
	for _, candidate := range candidates {
		if candidate == selected {
			return selected, true, nil
		}
	}
	return 0, false, fmt.Errorf("selector returned non-candidate %d", selected)
}

// HandleEvent is the EventHandler of the Assigner. It ignores events which don't need an assignment.
func (a *Assigner) HandleEvent(ctx context.Context, ev StatusEvent) error {
	if !ev.NeedsAssign() {
		return nil
	}
	_, err := a.AssignReviewer(ctx, ev.Content)
	return err
}

func (a *Assigner) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Assigner) logger() *zap.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return zap.NewNop()
}
