package notify

import (
	"context"

	"github.com/wansing/pressroom/core"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Notifier tells authors about review outcomes and reviewers about new jobs.
type Notifier struct {
	Pusher  Pusher
	Catalog *Catalog
	Logger  *zap.Logger
}

type messageData struct {
	Type   core.ContentType
	ID     int64
	JobID  int64
	Result string
}

// HandleEvent is a core.EventHandler. It always returns nil, because push failures must not be retried or undo anything.
func (n *Notifier) HandleEvent(ctx context.Context, ev core.StatusEvent) error {

	if ev.Review == nil {
		return nil
	}

	var name string
	switch ev.CurrentStatus {
	case core.Published:
		name = TemplatePublished
	case core.Rejected:
		name = TemplateRejected
	default:
		return nil
	}

	lang, err := language.Parse(ev.Content.Language)
	if err != nil {
		lang = language.Und
	}

	n.push(ctx, ev.Content.OwnerID, lang, name, ev.Content.Ref, messageData{
		Type:   ev.Content.Ref.Type,
		ID:     ev.Content.Ref.ID,
		JobID:  ev.Review.ID,
		Result: ev.Review.Result,
	})
	return nil
}

// OnAssigned can be used as core.Assigner.OnAssigned.
func (n *Notifier) OnAssigned(ctx context.Context, job core.ReviewJob, content core.ContentMetadata) {
	if job.ReviewerID == nil {
		return
	}
	n.push(ctx, *job.ReviewerID, language.Und, TemplateAssigned, content.Ref, messageData{
		Type:  content.Ref.Type,
		ID:    content.Ref.ID,
		JobID: job.ID,
	})
}

func (n *Notifier) push(ctx context.Context, userID int, lang language.Tag, name string, ref core.ContentRef, data messageData) {

	var logger = n.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	subject, body, err := n.Catalog.Render(lang, name, data)
	if err != nil {
		logger.Error("rendering notification", zap.String("template", name), zap.Error(err))
		return
	}

	var m = Message{
		Kind:    name,
		Subject: subject,
		Body:    body,
		Content: ref,
		Time:    nowUTC(),
	}
	if err := n.Pusher.Push(ctx, userID, m); err != nil {
		logger.Warn("push failed", zap.Int("user", userID), zap.String("kind", name), zap.Error(err))
		return
	}
	logger.Debug("pushed", zap.Int("user", userID), zap.String("kind", name), zap.Stringer("content", ref))
}
