package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wansing/pressroom/bus"
	"github.com/wansing/pressroom/core"
	"github.com/wansing/pressroom/filters"
	"github.com/wansing/pressroom/memdb"
	"golang.org/x/text/language"
)

type recorder struct {
	mu     sync.Mutex
	events []core.StatusEvent
}

func (r *recorder) handle(ctx context.Context, ev core.StatusEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) all() []core.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.StatusEvent(nil), r.events...)
}

// dropDispatcher loses all events.
type dropDispatcher struct{}

func (dropDispatcher) Publish(ctx context.Context, ev core.StatusEvent) error {
	return errors.New("broker unavailable")
}

type fixture struct {
	c        *core.CoreDB
	db       *memdb.DB
	events   *recorder
	author   core.Identity
	stranger core.Identity
	reviewer core.Identity
	staff    core.Identity
}

func newFixture(t *testing.T, dispatcher core.Dispatcher) *fixture {

	var db = memdb.New()
	var ctx = context.Background()

	pipeline, err := filters.DefaultRegistry.Pipeline([]string{"title-not-empty", "body-length", "require-review"}, filters.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}

	var direct = &bus.Sync{}
	if dispatcher == nil {
		dispatcher = direct
	}

	var clock = time.Unix(1600000000, 0)
	var c = &core.CoreDB{
		ContentDB:   db,
		GrantDB:     db,
		GroupDB:     db,
		ReviewJobDB: db,
		UserDB:      db,
		Dispatcher:  dispatcher,
		Pipeline:    pipeline,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	if err := c.Init(nil); err != nil {
		t.Fatal(err)
	}
	c.Subscribe(direct)

	var f = &fixture{
		c:      c,
		db:     db,
		events: &recorder{},
	}
	direct.Subscribe("recorder", nil, f.events.handle)

	var identify = func(name string) core.Identity {
		u, err := db.InsertUser(name)
		if err != nil {
			t.Fatal(err)
		}
		id, err := c.Identify(ctx, u.ID(), language.German)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	var group = func(name string, a core.Authority) core.DBGroup {
		if err := db.InsertGroup(name); err != nil {
			t.Fatal(err)
		}
		g, err := db.GetGroupByName(name)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Grant(g, a); err != nil {
			t.Fatal(err)
		}
		return g
	}

	var reviewers = group("reviewers", core.Reviewer)
	var staff = group("staff", core.Staff)

	reviewerUser, _ := db.InsertUser("reviewer")
	staffUser, _ := db.InsertUser("staff")
	db.Join(reviewers, reviewerUser)
	db.Join(staff, staffUser)

	f.author = identify("author")
	f.stranger = identify("stranger")
	f.reviewer, _ = c.Identify(ctx, reviewerUser.ID(), language.English)
	f.staff, _ = c.Identify(ctx, staffUser.ID(), language.English)

	if !f.reviewer.CanReview() || f.reviewer.IsStaff() || !f.staff.IsStaff() || f.author.CanReview() {
		t.Fatalf("unexpected authorities: %+v %+v %+v", f.reviewer, f.staff, f.author)
	}
	return f
}

func (f *fixture) submit(t *testing.T) core.ContentMetadata {
	meta, err := f.c.Submit(context.Background(), f.author, core.UncreatedContent{
		Type:  core.Article,
		Title: "Hello",
		Body:  "A body which is long enough.",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return meta
}

func (f *fixture) job(t *testing.T, meta core.ContentMetadata) core.ReviewJob {
	job, err := f.db.GetJobBy(context.Background(), meta.Ref.ID, meta.Ref.Type)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return job
}

func TestSubmitEmptyTitle(t *testing.T) {
	var f = newFixture(t, nil)
	_, err := f.c.Submit(context.Background(), f.author, core.UncreatedContent{Type: core.Article, Body: "A body which is long enough."})
	if err != core.ErrTitleEmpty {
		t.Fatalf("got %v, want %v", err, core.ErrTitleEmpty)
	}
	if list, _ := f.db.ListByStatus(context.Background(), core.Reviewing, 0); len(list) != 0 {
		t.Fatalf("content was stored: %v", list)
	}
	if _, err := f.db.GetJobBy(context.Background(), 1, core.Article); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("job was created: %v", err)
	}
	if len(f.events.all()) != 0 {
		t.Fatal("event was fired")
	}
}

func TestSubmitAnonymous(t *testing.T) {
	var f = newFixture(t, nil)
	_, err := f.c.Submit(context.Background(), core.Anonymous(language.English), core.UncreatedContent{Type: core.Article, Title: "x", Body: "long enough body"})
	if err != core.ErrUnauthenticated {
		t.Fatalf("got %v", err)
	}
}

func TestSubmitCreatesJob(t *testing.T) {
	var f = newFixture(t, nil)
	var meta = f.submit(t)
	if meta.Status != core.Reviewing || meta.OwnerID != f.author.UserID || meta.Language != "de" {
		t.Fatalf("got %+v", meta)
	}

	var job = f.job(t, meta)
	if job.Status != core.NotReviewed || !job.AssignedTo(f.reviewer.UserID) {
		t.Fatalf("got job %+v", job)
	}

	var events = f.events.all()
	if len(events) != 1 || !events[0].IsCreation() || events[0].CurrentStatus != core.Reviewing {
		t.Fatalf("got events %+v", events)
	}

	// repeated triggers reuse the job
	for i := 0; i < 3; i++ {
		again, err := f.c.Assigner.AssignReviewer(context.Background(), meta)
		if err != nil {
			t.Fatal(err)
		}
		if again.ID != job.ID {
			t.Fatalf("got job %d, want %d", again.ID, job.ID)
		}
	}
	if n, _ := f.db.CountUnfinished(context.Background(), f.reviewer.UserID); n != 1 {
		t.Fatalf("got %d unfinished jobs, want 1", n)
	}
}

func TestSubmitThroughBus(t *testing.T) {
	var b = bus.New(bus.Config{Workers: 2, RetryBackoff: time.Millisecond}, nil)
	var f = newFixture(t, b)
	f.c.Subscribe(b)
	b.Start()

	var meta = f.submit(t)
	b.Close()

	var job = f.job(t, meta)
	if job.Status != core.NotReviewed || job.ReviewerID == nil {
		t.Fatalf("got job %+v", job)
	}
}

func TestLeastLoaded(t *testing.T) {
	var f = newFixture(t, nil)
	var first = f.job(t, f.submit(t))
	var second = f.job(t, f.submit(t))
	if !first.AssignedTo(f.reviewer.UserID) || !second.AssignedTo(f.staff.UserID) {
		t.Fatalf("got reviewers %v and %v", *first.ReviewerID, *second.ReviewerID)
	}
}

func TestAuthorIsNotReviewer(t *testing.T) {
	var f = newFixture(t, nil)
	meta, err := f.c.Submit(context.Background(), f.reviewer, core.UncreatedContent{Type: core.Post, Title: "mine", Body: "A body which is long enough."})
	if err != nil {
		t.Fatal(err)
	}
	if job := f.job(t, meta); !job.AssignedTo(f.staff.UserID) {
		t.Fatalf("got job %+v", job)
	}
}

func TestNoCandidates(t *testing.T) {
	var f = newFixture(t, nil)
	f.c.Assigner.Identities = staticCandidates(nil)
	var job = f.job(t, f.submit(t))
	if job.ReviewerID != nil {
		t.Fatalf("got reviewer %d", *job.ReviewerID)
	}
	// staff can resolve unassigned jobs
	resolved, err := f.c.ResolveReview(context.Background(), f.staff, job.ID, core.ReviewRejected, "")
	if err != nil {
		t.Fatal(err)
	}
	if !resolved.AssignedTo(f.staff.UserID) {
		t.Fatal("resolver is not recorded")
	}
}

type staticCandidates []int

func (s staticCandidates) Identify(ctx context.Context, userID int, lang language.Tag) (core.Identity, error) {
	return core.Identity{UserID: userID}, nil
}

func (s staticCandidates) ReviewerCandidates(ctx context.Context) ([]int, error) {
	return s, nil
}

func TestResolve(t *testing.T) {
	var f = newFixture(t, nil)
	var meta = f.submit(t)
	var job = f.job(t, meta)

	resolved, err := f.c.ResolveReview(context.Background(), f.reviewer, job.ID, core.Reviewed, " looks good ")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Status != core.Reviewed || resolved.Result != "looks good" || resolved.ReviewTime == nil {
		t.Fatalf("got %+v", resolved)
	}

	stored, _ := f.db.GetJob(context.Background(), job.ID)
	if stored.Status != core.Reviewed {
		t.Fatalf("stored job %+v", stored)
	}
	updated, _ := f.db.GetMetadata(context.Background(), meta.Ref)
	if updated.Status != core.Published {
		t.Fatalf("got content status %s", updated.Status)
	}

	var events = f.events.all()
	var last = events[len(events)-1]
	if last.PreviousStatus == nil || *last.PreviousStatus != core.Reviewing || last.CurrentStatus != core.Published || last.Review == nil || last.Review.ID != job.ID {
		t.Fatalf("got event %+v", last)
	}

	// second resolution
	_, err = f.c.ResolveReview(context.Background(), f.reviewer, job.ID, core.ReviewRejected, "changed my mind")
	if err != core.ErrReviewFinished {
		t.Fatalf("got %v, want %v", err, core.ErrReviewFinished)
	}
	again, _ := f.db.GetJob(context.Background(), job.ID)
	if again.Status != core.Reviewed || again.Result != "looks good" || again.ReviewTime == nil || stored.ReviewTime == nil || !again.ReviewTime.Equal(*stored.ReviewTime) {
		t.Fatalf("stored job changed: %+v", again)
	}
	if len(f.events.all()) != len(events) {
		t.Fatal("second resolution fired an event")
	}
}

func TestResolveRejected(t *testing.T) {
	var f = newFixture(t, nil)
	var meta = f.submit(t)
	if _, err := f.c.ResolveReview(context.Background(), f.reviewer, f.job(t, meta).ID, core.ReviewRejected, "no"); err != nil {
		t.Fatal(err)
	}
	updated, _ := f.db.GetMetadata(context.Background(), meta.Ref)
	if updated.Status != core.Rejected {
		t.Fatalf("got %s", updated.Status)
	}
	// rejected content is visible to the owner only
	if _, err := f.c.GetContentMetadataDetails(context.Background(), f.staff, meta.Ref); err != core.ErrContentNotFound {
		t.Fatalf("got %v", err)
	}
	if _, err := f.c.GetContentMetadataDetails(context.Background(), f.author, meta.Ref); err != nil {
		t.Fatalf("got %v", err)
	}
}

func TestResolveErrors(t *testing.T) {
	var f = newFixture(t, nil)
	var job = f.job(t, f.submit(t))
	var ctx = context.Background()

	var tests = []struct {
		who     core.Identity
		id      int64
		outcome core.ReviewStatus
		want    error
	}{
		{core.Identity{}, job.ID, core.Reviewed, core.ErrUnauthenticated},
		{f.author, job.ID, core.Reviewed, core.ErrNoReviewer},
		{f.reviewer, job.ID, core.NotReviewed, core.ErrInvalidReviewStatus},
		{f.reviewer, 999, core.Reviewed, core.ErrReviewJobNotFound},
	}
	for _, test := range tests {
		if _, err := f.c.ResolveReview(ctx, test.who, test.id, test.outcome, ""); err != test.want {
			t.Fatalf("got %v, want %v", err, test.want)
		}
	}

	var other = f.job(t, f.submit(t)) // assigned to staff
	if _, err := f.c.ResolveReview(ctx, f.reviewer, other.ID, core.Reviewed, ""); err != core.ErrNotYourReview {
		t.Fatalf("got %v, want %v", err, core.ErrNotYourReview)
	}
	if _, err := f.c.ResolveReview(ctx, f.staff, job.ID, core.Reviewed, ""); err != nil {
		t.Fatalf("staff can resolve any job: %v", err)
	}
}

func TestConcurrentResolve(t *testing.T) {
	var f = newFixture(t, nil)
	var job = f.job(t, f.submit(t))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes, conflicts int
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var outcome = core.Reviewed
			if i%2 == 1 {
				outcome = core.ReviewRejected
			}
			_, err := f.c.ResolveReview(context.Background(), f.staff, job.ID, outcome, "")
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				successes++
			case core.ErrReviewFinished:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if successes != 1 || conflicts != 15 {
		t.Fatalf("got %d successes and %d conflicts", successes, conflicts)
	}
}

func TestAccessGate(t *testing.T) {
	var f = newFixture(t, nil)
	var meta = f.submit(t)
	var ctx = context.Background()

	if _, err := f.c.GetContentMetadataDetails(ctx, f.stranger, meta.Ref); err != core.ErrContentNotFound {
		t.Fatalf("stranger: got %v", err)
	}
	if _, err := f.c.GetContentMetadataDetails(ctx, core.Anonymous(language.English), meta.Ref); err != core.ErrContentNotFound {
		t.Fatalf("anonymous: got %v", err)
	}
	for _, who := range []core.Identity{f.author, f.reviewer, f.staff} {
		details, err := f.c.GetContentMetadataDetails(ctx, who, meta.Ref)
		if err != nil {
			t.Fatalf("%+v: got %v", who, err)
		}
		if details.Title != "Hello" || details.HTML == "" {
			t.Fatalf("got %+v", details)
		}
	}
	if _, err := f.c.GetContentMetadataDetails(ctx, f.author, core.ContentRef{Type: core.Article, ID: 999}); err != core.ErrContentNotFound {
		t.Fatalf("missing: got %v", err)
	}
}

func TestMyReviewJobsAndReassign(t *testing.T) {
	var f = newFixture(t, nil)
	var ctx = context.Background()
	var job = f.job(t, f.submit(t))

	jobs, err := f.c.MyReviewJobs(ctx, f.reviewer, core.Unfinished)
	if err != nil || len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("got %v, %v", jobs, err)
	}

	if _, err := f.c.Reassign(ctx, f.reviewer, job.ID, f.staff.UserID); err != core.ErrForbidden {
		t.Fatalf("got %v", err)
	}
	if _, err := f.c.Reassign(ctx, f.staff, job.ID, f.author.UserID); err != core.ErrNoReviewer {
		t.Fatalf("got %v", err)
	}
	reassigned, err := f.c.Reassign(ctx, f.staff, job.ID, f.staff.UserID)
	if err != nil || !reassigned.AssignedTo(f.staff.UserID) {
		t.Fatalf("got %+v, %v", reassigned, err)
	}

	if jobs, _ := f.c.MyReviewJobs(ctx, f.reviewer, core.Unfinished); len(jobs) != 0 {
		t.Fatalf("got %v", jobs)
	}
	if _, err := f.c.ResolveReview(ctx, f.staff, job.ID, core.Reviewed, ""); err != nil {
		t.Fatal(err)
	}
	if jobs, _ := f.c.MyReviewJobs(ctx, f.staff, core.Finished); len(jobs) != 1 {
		t.Fatalf("got %v", jobs)
	}
	if _, err := f.c.Reassign(ctx, f.staff, job.ID, f.reviewer.UserID); err != core.ErrReviewFinished {
		t.Fatalf("got %v", err)
	}
}

func TestHideAndDelete(t *testing.T) {
	var f = newFixture(t, nil)
	var ctx = context.Background()
	var meta = f.submit(t)

	if _, err := f.c.Hide(ctx, f.stranger, meta.Ref); err != core.ErrContentNotFound {
		t.Fatalf("got %v", err)
	}
	if _, err := f.c.Hide(ctx, f.reviewer, meta.Ref); err != core.ErrForbidden {
		t.Fatalf("got %v", err)
	}
	hidden, err := f.c.Hide(ctx, f.author, meta.Ref)
	if err != nil || hidden.Status != core.Hidden {
		t.Fatalf("got %+v, %v", hidden, err)
	}
	if _, err := f.c.Hide(ctx, f.author, meta.Ref); err != core.ErrInvalidTransition {
		t.Fatalf("got %v", err)
	}

	// resolving after hiding keeps the content hidden
	if _, err := f.c.ResolveReview(ctx, f.reviewer, f.job(t, meta).ID, core.Reviewed, ""); err != nil {
		t.Fatal(err)
	}
	if stored, _ := f.db.GetMetadata(ctx, meta.Ref); stored.Status != core.Hidden {
		t.Fatalf("got %s", stored.Status)
	}

	deleted, err := f.c.Delete(ctx, f.staff, meta.Ref)
	if err != nil || deleted.Status != core.Deleted {
		t.Fatalf("got %+v, %v", deleted, err)
	}
	if _, err := f.c.GetContentMetadataDetails(ctx, f.reviewer, meta.Ref); err != core.ErrContentNotFound {
		t.Fatalf("got %v", err)
	}
	if _, err := f.c.Delete(ctx, f.author, meta.Ref); err != core.ErrInvalidTransition {
		t.Fatalf("got %v", err)
	}
}

func TestReconcileAssignments(t *testing.T) {
	var f = newFixture(t, dropDispatcher{})
	var meta = f.submit(t) // the event is lost
	if _, err := f.db.GetJobBy(context.Background(), meta.Ref.ID, meta.Ref.Type); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	created, err := f.c.ReconcileAssignments(context.Background(), 100)
	if err != nil || created != 1 {
		t.Fatalf("got %d, %v", created, err)
	}
	if created, _ := f.c.ReconcileAssignments(context.Background(), 100); created != 0 {
		t.Fatalf("second run created %d jobs", created)
	}
	if job := f.job(t, meta); job.Status != core.NotReviewed {
		t.Fatalf("got %+v", job)
	}
}

func TestRedeliveredEventAfterResolution(t *testing.T) {
	var f = newFixture(t, nil)
	var ctx = context.Background()
	var meta = f.submit(t)
	var job = f.job(t, meta)
	if _, err := f.c.ResolveReview(ctx, f.reviewer, job.ID, core.Reviewed, ""); err != nil {
		t.Fatal(err)
	}

	// the creation event arrives again, e.g. after a broker retry
	var ev = core.NewContentStatusEvent(meta, nil, core.Reviewing, time.Now())
	if err := f.c.Assigner.HandleEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}

	jobs, err := f.db.GetJobsByReviewer(ctx, f.reviewer.UserID, core.All.Statuses()...)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != job.ID || jobs[0].Status != core.Reviewed {
		t.Fatalf("got jobs %+v", jobs)
	}
	if stored, _ := f.db.GetMetadata(ctx, meta.Ref); stored.Status != core.Published {
		t.Fatalf("got %s", stored.Status)
	}
}

func TestStaffCannotResolveOwnContent(t *testing.T) {
	var f = newFixture(t, nil)
	var ctx = context.Background()

	meta, err := f.c.Submit(ctx, f.staff, core.UncreatedContent{Type: core.Post, Title: "mine", Body: "A body which is long enough."})
	if err != nil {
		t.Fatal(err)
	}
	var job = f.job(t, meta)
	if !job.AssignedTo(f.reviewer.UserID) {
		t.Fatalf("got %+v", job)
	}

	if _, err := f.c.ResolveReview(ctx, f.staff, job.ID, core.Reviewed, ""); err != core.ErrForbidden {
		t.Fatalf("got %v, want %v", err, core.ErrForbidden)
	}
	if stored, _ := f.db.GetJob(ctx, job.ID); stored.Resolved() {
		t.Fatalf("job was resolved: %+v", stored)
	}
	if stored, _ := f.db.GetMetadata(ctx, meta.Ref); stored.Status != core.Reviewing {
		t.Fatalf("got %s", stored.Status)
	}

	// the assigned reviewer still can
	if _, err := f.c.ResolveReview(ctx, f.reviewer, job.ID, core.Reviewed, ""); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitDraft(t *testing.T) {
	var f = newFixture(t, nil)
	var ctx = context.Background()

	pipeline, err := filters.DefaultRegistry.Pipeline([]string{"title-not-empty", "body-length", "require-review", "draft"}, filters.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	f.c.Pipeline = pipeline

	draft, err := f.c.Submit(ctx, f.author, core.UncreatedContent{
		Type:  core.Article,
		Title: "Later",
		Body:  "A body which is long enough.",
		Meta:  map[string]string{"draft": "true"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if draft.Status != core.Draft {
		t.Fatalf("got %s", draft.Status)
	}
	if _, err := f.db.GetJobBy(ctx, draft.Ref.ID, draft.Ref.Type); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("draft has a job: %v", err)
	}

	if _, err := f.c.SubmitDraft(ctx, f.stranger, draft.Ref); err != core.ErrContentNotFound {
		t.Fatalf("got %v", err)
	}

	submitted, err := f.c.SubmitDraft(ctx, f.author, draft.Ref)
	if err != nil || submitted.Status != core.Reviewing {
		t.Fatalf("got %+v, %v", submitted, err)
	}
	if job := f.job(t, draft); job.Resolved() || job.ReviewerID == nil {
		t.Fatalf("got %+v", job)
	}

	var events = f.events.all()
	var last = events[len(events)-1]
	if last.PreviousStatus == nil || *last.PreviousStatus != core.Draft || last.CurrentStatus != core.Reviewing {
		t.Fatalf("got event %+v", last)
	}

	if _, err := f.c.SubmitDraft(ctx, f.author, draft.Ref); err != core.ErrInvalidTransition {
		t.Fatalf("got %v", err)
	}
}
