package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/wansing/pressroom/core"
	"github.com/wansing/pressroom/memdb"
	"golang.org/x/text/language"
)

func TestCatalogFallback(t *testing.T) {

	var c = DefaultCatalog()

	subject, body, err := c.Render(language.German, TemplateRejected, messageData{Type: core.Article, ID: 7, Result: "zu kurz"})
	if err != nil {
		t.Fatal(err)
	}
	if subject != "Dein Beitrag wurde abgelehnt" {
		t.Fatalf("got subject %q", subject)
	}
	if !strings.Contains(body, "ARTICLE #7") || !strings.Contains(body, "zu kurz") {
		t.Fatalf("got body %q", body)
	}

	// unmatched languages fall back to English
	subject, _, err = c.Render(language.Japanese, TemplatePublished, messageData{Type: core.Post, ID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if subject != "Your POST has been published" {
		t.Fatalf("got subject %q", subject)
	}

	if _, _, err = c.Render(language.English, "unknown", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}

	if _, _, err = NewCatalog().Render(language.English, TemplatePublished, nil); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

func TestCatalogMissingTranslation(t *testing.T) {
	var c = NewCatalog()
	if err := c.Register(language.English, "hello", "Hello\n\n{{.}}"); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(language.German, "other", "Andere"); err != nil {
		t.Fatal(err)
	}
	subject, body, err := c.Render(language.German, "hello", "world")
	if err != nil {
		t.Fatal(err)
	}
	if subject != "Hello" || body != "world" {
		t.Fatalf("got %q %q", subject, body)
	}
	if err := c.Register(language.English, "broken", "{{.Foo"); err == nil {
		t.Fatal("expected parse error")
	}
}

type failingPusher struct{}

func (failingPusher) Push(ctx context.Context, userID int, m Message) error {
	return errors.New("unreachable")
}

func TestMulti(t *testing.T) {
	var a, b = &MemoryPusher{}, &MemoryPusher{}
	var multi = Multi{a, failingPusher{}, b}
	err := multi.Push(context.Background(), 3, Message{Kind: "x"})
	if err == nil || !strings.Contains(err.Error(), "pusher 1") {
		t.Fatalf("got %v", err)
	}
	if len(a.Deliveries()) != 1 || len(b.Deliveries()) != 1 {
		t.Fatal("both memory pushers should have received the message")
	}
}

func resolvedEvent(status core.ContentStatus, lang string) core.StatusEvent {
	var content = core.ContentMetadata{
		Ref:      core.ContentRef{Type: core.Article, ID: 42},
		Status:   status,
		OwnerID:  3,
		Language: lang,
	}
	var job = core.NewReviewJob(content.Ref, time.Now()).Fork(9).ForkResolved(core.Reviewed, "fine", time.Now())
	var ev = core.NewContentStatusEvent(content, core.Reviewing.Ptr(), status, time.Now())
	ev.Review = &job
	return ev
}

func TestNotifierOutcome(t *testing.T) {

	var mem = &MemoryPusher{}
	var n = &Notifier{Pusher: mem, Catalog: DefaultCatalog()}

	if err := n.HandleEvent(context.Background(), resolvedEvent(core.Published, "de")); err != nil {
		t.Fatal(err)
	}

	var deliveries = mem.Deliveries()
	if len(deliveries) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(deliveries))
	}
	var d = deliveries[0]
	if d.UserID != 3 || d.Message.Kind != TemplatePublished {
		t.Fatalf("got %+v", d)
	}
	if d.Message.Subject != "Dein Beitrag wurde veröffentlicht" {
		t.Fatalf("got subject %q", d.Message.Subject)
	}
	if !strings.Contains(d.Message.Body, "fine") {
		t.Fatalf("reviewer note missing in %q", d.Message.Body)
	}
}

func TestNotifierIgnoresOtherEvents(t *testing.T) {

	var mem = &MemoryPusher{}
	var n = &Notifier{Pusher: mem, Catalog: DefaultCatalog()}

	// creation
	var content = core.ContentMetadata{Ref: core.ContentRef{Type: core.Post, ID: 1}, Status: core.Reviewing, OwnerID: 3}
	if err := n.HandleEvent(context.Background(), core.NewContentStatusEvent(content, nil, core.Reviewing, time.Now())); err != nil {
		t.Fatal(err)
	}

	// hidden by owner
	content.Status = core.Hidden
	if err := n.HandleEvent(context.Background(), core.NewContentStatusEvent(content, core.Published.Ptr(), core.Hidden, time.Now())); err != nil {
		t.Fatal(err)
	}

	if got := len(mem.Deliveries()); got != 0 {
		t.Fatalf("got %d deliveries, want 0", got)
	}
}

func TestNotifierSwallowsErrors(t *testing.T) {
	var n = &Notifier{Pusher: failingPusher{}, Catalog: DefaultCatalog()}
	if err := n.HandleEvent(context.Background(), resolvedEvent(core.Rejected, "invalid language tag!")); err != nil {
		t.Fatalf("push errors must be swallowed, got %v", err)
	}
}

func TestNotifierAssigned(t *testing.T) {

	var mem = &MemoryPusher{}
	var n = &Notifier{Pusher: mem, Catalog: DefaultCatalog()}
	var content = core.ContentMetadata{Ref: core.ContentRef{Type: core.Comment, ID: 5}}

	var job = core.NewReviewJob(content.Ref, time.Now()).Fork(11)
	n.OnAssigned(context.Background(), job, content) // unassigned
	n.OnAssigned(context.Background(), job.ForkReviewer(1), content)

	var deliveries = mem.Deliveries()
	if len(deliveries) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(deliveries))
	}
	if deliveries[0].UserID != 1 || !strings.Contains(deliveries[0].Message.Body, "Job 11") {
		t.Fatalf("got %+v", deliveries[0])
	}
}

func TestMailPusher(t *testing.T) {

	var db = memdb.New()
	alice, err := db.InsertUser("alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := db.InsertUser("bob")
	if err != nil {
		t.Fatal(err)
	}

	var sent []string
	var p = &MailPusher{
		Config: MailConfig{Host: "localhost", Port: 25, From: "pressroom@example.com"},
		Users:  db,
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			if addr != "localhost:25" {
				t.Fatalf("got addr %q", addr)
			}
			sent = append(sent, to[0]+"|"+string(msg))
			return nil
		},
	}

	var m = Message{Subject: "Hi", Body: "line one\nline two"}
	if err := p.Push(context.Background(), alice.ID(), m); err != nil {
		t.Fatal(err)
	}
	if err := p.Push(context.Background(), bob.ID(), m); err != nil {
		t.Fatal(err)
	}
	if err := p.Push(context.Background(), 999, m); err == nil {
		t.Fatal("expected error for unknown user")
	}

	if len(sent) != 1 {
		t.Fatalf("got %d mails, want 1", len(sent))
	}
	if !strings.HasPrefix(sent[0], "alice@example.com|") || !strings.Contains(sent[0], "Subject: Hi\r\n") || !strings.Contains(sent[0], "line one\r\nline two") {
		t.Fatalf("got %q", sent[0])
	}
}
