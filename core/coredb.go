package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wansing/pressroom/util"
	"go.uber.org/zap"
)

// CoreDB embeds the databases and shadows some of their methods with validation and events.
type CoreDB struct {
	ContentDB
	GrantDB
	GroupDB
	ReviewJobDB
	UserDB

	Assigner   *Assigner
	Dispatcher Dispatcher
	Pipeline   *Pipeline
	Logger     *zap.Logger
	Now        func() time.Time
	Render     func(body string) string // markdown to html
}

// Init sets defaults for the fields which are nil. The Dispatcher must be set by the caller.
func (c *CoreDB) Init(logger *zap.Logger) error {

	if c.ContentDB == nil || c.ReviewJobDB == nil || c.UserDB == nil || c.GroupDB == nil || c.GrantDB == nil {
		return errors.New("core: database missing")
	}
	if c.Dispatcher == nil {
		return errors.New("core: dispatcher missing")
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	c.Logger = logger

	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Render == nil {
		c.Render = util.RenderMarkdown
	}
	if c.Pipeline == nil {
		c.Pipeline = NewPipeline(nil, nil)
	}
	if c.Assigner == nil {
		c.Assigner = &Assigner{}
	}
	if c.Assigner.Jobs == nil {
		c.Assigner.Jobs = c.ReviewJobDB
	}
	if c.Assigner.Contents == nil {
		c.Assigner.Contents = c.ContentDB
	}
	if c.Assigner.Identities == nil {
		c.Assigner.Identities = c
	}
	if c.Assigner.Selector == nil {
		c.Assigner.Selector = LeastLoaded{Jobs: c.ReviewJobDB}
	}
	if c.Assigner.Now == nil {
		c.Assigner.Now = c.Now
	}
	if c.Assigner.Logger == nil {
		c.Assigner.Logger = logger.Named("assign")
	}
	return nil
}

// Subscribe registers the assignment handler. Further handlers like notifiers are registered by the caller.
func (c *CoreDB) Subscribe(sub Subscriber) {
	sub.Subscribe("assign", nil, c.Assigner.HandleEvent)
}

// Submit runs the Publish Pipeline and stores accepted content. It returns the metadata of the stored content.
//
// Filter rejections are returned as ErrorCodes, nothing is stored then. If the content is stored,
// a creation event is published and Submit succeeds even if publishing fails. ReconcileAssignments catches up then.
func (c *CoreDB) Submit(ctx context.Context, author Identity, u UncreatedContent) (ContentMetadata, error) {

	if !author.LoggedIn() {
		return ContentMetadata{}, ErrUnauthenticated
	}
	if !u.Type.Valid() {
		return ContentMetadata{}, ErrContentTypeUnknown
	}

	u.AuthorID = author.UserID
	u.Title = strings.TrimSpace(u.Title)

	if code := c.Pipeline.Filter(ctx, u); !code.IsSuccess() {
		c.logger().Info("submission rejected", zap.String("type", string(u.Type)), zap.Int("author", author.UserID), zap.String("code", code.Code))
		return ContentMetadata{}, code
	}

	var now = c.now()
	var lang = author.Language.String()

	var preliminary = ContentDetails{
		ContentMetadata: ContentMetadata{
			Ref:       ContentRef{Type: u.Type},
			OwnerID:   author.UserID,
			Language:  lang,
			CreatedAt: now,
			ChangedAt: now,
		},
		Title: u.Title,
		Body:  u.Body,
		HTML:  c.render(u.Body),
		Meta:  u.Meta,
	}

	status, err := c.Pipeline.Decide(ctx, author, preliminary)
	if err != nil {
		return ContentMetadata{}, err
	}

	meta, err := c.ContentDB.InsertContent(ctx, u, status, lang, now)
	if err != nil {
		return ContentMetadata{}, fmt.Errorf("insert content: %w", err)
	}

	c.logger().Info("submission accepted", zap.Stringer("content", meta.Ref), zap.Stringer("status", meta.Status), zap.Int("author", author.UserID))

	c.publish(ctx, NewContentStatusEvent(meta, nil, meta.Status, now))
	return meta, nil
}

// Hide hides published or rejected content. Only the owner and staff can hide content.
func (c *CoreDB) Hide(ctx context.Context, requester Identity, ref ContentRef) (ContentMetadata, error) {
	return c.transition(ctx, requester, ref, Hidden, Published, Rejected, Reviewing)
}

// Delete marks content as deleted. Only the owner and staff can delete content.
func (c *CoreDB) Delete(ctx context.Context, requester Identity, ref ContentRef) (ContentMetadata, error) {
	return c.transition(ctx, requester, ref, Deleted, Draft, Reviewing, Published, Rejected, Hidden)
}

// SubmitDraft sends a draft to review. The creation of the review job follows from the status event.
func (c *CoreDB) SubmitDraft(ctx context.Context, requester Identity, ref ContentRef) (ContentMetadata, error) {
	return c.transition(ctx, requester, ref, Reviewing, Draft)
}

func (c *CoreDB) transition(ctx context.Context, requester Identity, ref ContentRef, to ContentStatus, allowedFrom ...ContentStatus) (ContentMetadata, error) {

	if !requester.LoggedIn() {
		return ContentMetadata{}, ErrUnauthenticated
	}
	if !ref.Type.Valid() {
		return ContentMetadata{}, ErrContentTypeUnknown
	}

	meta, err := c.ContentDB.GetMetadata(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ContentMetadata{}, ErrContentNotFound
		}
		return ContentMetadata{}, fmt.Errorf("get metadata of %s: %w", ref, err)
	}

	if !CanView(requester, meta) {
		return ContentMetadata{}, ErrContentNotFound
	}
	if !requester.Owns(meta) && !requester.IsStaff() {
		return ContentMetadata{}, ErrForbidden
	}

	var allowed = false
	for _, from := range allowedFrom {
		if meta.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return ContentMetadata{}, ErrInvalidTransition
	}

	var previous = meta.Status
	var now = c.now()
	if err := c.ContentDB.SetStatus(ctx, ref, previous, to, now); err != nil {
		if errors.Is(err, ErrConflict) {
			return ContentMetadata{}, ErrInvalidTransition
		}
		return ContentMetadata{}, fmt.Errorf("set status of %s: %w", ref, err)
	}
	meta.Status = to
	meta.ChangedAt = now

	c.logger().Info("content status changed", zap.Stringer("content", ref), zap.Stringer("from", previous), zap.Stringer("to", to), zap.Int("by", requester.UserID))

	c.publish(ctx, NewContentStatusEvent(meta, previous.Ptr(), to, now))
	return meta, nil
}

// ReconcileAssignments assigns reviewers to content in state Reviewing which has no unfinished review job.
// It catches up on events which were lost, e.g. when the process stopped before the bus delivered them.
func (c *CoreDB) ReconcileAssignments(ctx context.Context, limit int) (int, error) {

	reviewing, err := c.ContentDB.ListByStatus(ctx, Reviewing, limit)
	if err != nil {
		return 0, fmt.Errorf("list content in review: %w", err)
	}

	var created = 0
	for _, meta := range reviewing {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		job, err := c.ReviewJobDB.GetJobBy(ctx, meta.Ref.ID, meta.Ref.Type)
		if err == nil && !job.Resolved() {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return created, err
		}
		assigned, err := c.Assigner.AssignReviewer(ctx, meta)
		if err != nil {
			c.logger().Warn("reconcile assignment", zap.Stringer("content", meta.Ref), zap.Error(err))
			continue
		}
		if assigned.ID == 0 || assigned.Resolved() {
			continue // left review since listing
		}
		created++
	}
	return created, nil
}

// publish hands the event to the Dispatcher. Failures are logged only.
func (c *CoreDB) publish(ctx context.Context, ev StatusEvent) {
	if err := c.Dispatcher.Publish(ctx, ev); err != nil {
		c.logger().Error("publishing status event", zap.Stringer("content", ev.Content.Ref), zap.Stringer("event", ev.ID), zap.Error(err))
	}
}

func (c *CoreDB) render(body string) string {
	if c.Render == nil {
		return ""
	}
	return c.Render(body)
}

func (c *CoreDB) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CoreDB) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
