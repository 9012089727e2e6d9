package filters

import (
	"context"

	"github.com/wansing/pressroom/core"
)

func init() {
	Register(&Element{
		Code: "require-review",
		Name: "All content goes to review",
		CreateCallback: func(s Settings) core.PublishCallback {
			return RequireReview{}
		},
	})
	Register(&Element{
		Code: "staff-auto-publish",
		Name: "Staff content is published without review",
		CreateCallback: func(s Settings) core.PublishCallback {
			return StaffAutoPublish{Enabled: s.AutoPublishStaff}
		},
	})
	Register(&Element{
		Code: "draft",
		Name: `Content with meta "draft" = "true" stays a draft`,
		CreateCallback: func(s Settings) core.PublishCallback {
			return KeepDraft{}
		},
	})
}

type RequireReview struct{}

func (RequireReview) Order() int {
	return 0
}

func (RequireReview) Publish(ctx context.Context, author core.Identity, d core.ContentDetails) (core.ContentStatus, error) {
	return core.Reviewing, nil
}

type StaffAutoPublish struct {
	Enabled bool
}

func (StaffAutoPublish) Order() int {
	return 100
}

func (cb StaffAutoPublish) Publish(ctx context.Context, author core.Identity, d core.ContentDetails) (core.ContentStatus, error) {
	if cb.Enabled && author.IsStaff() {
		return core.Published, nil
	}
	return 0, nil
}

// KeepDraft runs last, so a draft is never published or reviewed.
type KeepDraft struct{}

func (KeepDraft) Order() int {
	return 200
}

func (KeepDraft) Publish(ctx context.Context, author core.Identity, d core.ContentDetails) (core.ContentStatus, error) {
	if d.Meta["draft"] == "true" {
		return core.Draft, nil
	}
	return 0, nil
}
