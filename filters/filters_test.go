package filters

import (
	"context"
	"strings"
	"testing"

	"github.com/wansing/pressroom/core"
)

var all = []string{"title-not-empty", "title-length", "body-length", "banned-terms", "require-review", "staff-auto-publish", "draft"}

func pipeline(t *testing.T, s Settings) *core.Pipeline {
	p, err := DefaultRegistry.Pipeline(all, s)
	if err != nil {
		t.Fatalf("creating pipeline: %v", err)
	}
	return p
}

func TestFilters(t *testing.T) {
	var s = DefaultSettings()
	s.TitleMax = 10
	s.BodyMin = 5
	s.BodyMax = 20
	s.Banned = []string{" Spam "}
	var p = pipeline(t, s)

	var tests = []struct {
		content core.UncreatedContent
		want    *core.ErrorCode
	}{
		{core.UncreatedContent{Type: core.Article, Title: " ", Body: "hello world"}, core.ErrTitleEmpty},
		{core.UncreatedContent{Type: core.Article, Title: "a very long title", Body: "hello world"}, core.ErrTitleTooLong},
		{core.UncreatedContent{Type: core.Article, Title: "t", Body: " \n\t "}, core.ErrBodyEmpty},
		{core.UncreatedContent{Type: core.Article, Title: "t", Body: "hey"}, core.ErrBodyTooShort},
		{core.UncreatedContent{Type: core.Article, Title: "t", Body: strings.Repeat("x", 21)}, core.ErrBodyTooLong},
		{core.UncreatedContent{Type: core.Post, Title: "t", Body: "buy SPAM now"}, core.ErrBannedTerm},
		{core.UncreatedContent{Type: core.Comment, Body: "ok"}, core.Success}, // no title, short
		{core.UncreatedContent{Type: core.Image, Meta: map[string]string{"src": "a.jpg"}}, core.Success},
		{core.UncreatedContent{Type: core.Article, Title: "t", Body: "# hello world"}, core.Success},
	}
	for _, test := range tests {
		if got := p.Filter(context.Background(), test.content); got != test.want {
			t.Fatalf("Filter(%+v) = %v, want %v", test.content, got.Code, test.want.Code)
		}
	}
}

func TestFilterOrder(t *testing.T) {
	// empty title and banned term: the title filter runs first
	var s = DefaultSettings()
	s.Banned = []string{"spam"}
	var p = pipeline(t, s)
	got := p.Filter(context.Background(), core.UncreatedContent{Type: core.Article, Body: "spam spam spam"})
	if got != core.ErrTitleEmpty {
		t.Fatalf("got %s, want %s", got.Code, core.ErrTitleEmpty.Code)
	}
}

func TestCallbacks(t *testing.T) {
	var s = DefaultSettings()
	s.AutoPublishStaff = true
	var p = pipeline(t, s)

	var user = core.Identity{UserID: 1}
	var staff = core.Identity{UserID: 2, Authority: core.Staff}

	var tests = []struct {
		author core.Identity
		meta   map[string]string
		want   core.ContentStatus
	}{
		{user, nil, core.Reviewing},
		{staff, nil, core.Published},
		{staff, map[string]string{"draft": "true"}, core.Draft},
		{user, map[string]string{"draft": "false"}, core.Reviewing},
	}
	for _, test := range tests {
		got, err := p.Decide(context.Background(), test.author, core.ContentDetails{Meta: test.meta})
		if err != nil {
			t.Fatalf("decide failed: %v", err)
		}
		if got != test.want {
			t.Fatalf("Decide(%+v, %v) = %s, want %s", test.author, test.meta, got, test.want)
		}
	}
}

func TestStaffAutoPublishDisabled(t *testing.T) {
	var p = pipeline(t, DefaultSettings())
	got, _ := p.Decide(context.Background(), core.Identity{UserID: 2, Authority: core.Staff}, core.ContentDetails{})
	if got != core.Reviewing {
		t.Fatalf("got %s, want %s", got, core.Reviewing)
	}
}

func TestUnknownElement(t *testing.T) {
	if _, err := DefaultRegistry.Pipeline([]string{"nope"}, DefaultSettings()); err == nil {
		t.Fatal("expected error")
	}
}
