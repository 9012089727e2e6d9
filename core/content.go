package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// A ContentType identifies the kind of user-submitted content.
type ContentType string

const (
	Article ContentType = "ARTICLE"
	Comment ContentType = "COMMENT"
	Post    ContentType = "POST"
	Image   ContentType = "IMAGE"
)

// ContentTypes lists all known content types.
var ContentTypes = []ContentType{Article, Comment, Post, Image}

func (t ContentType) Valid() bool {
	switch t {
	case Article, Comment, Post, Image:
		return true
	default:
		return false
	}
}

// ParseContentType is case-insensitive.
func ParseContentType(s string) (ContentType, error) {
	var t = ContentType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrContentTypeUnknown
	}
	return t, nil
}

// A ReviewType mirrors the ContentType which is reviewed.
type ReviewType = ContentType

// ContentStatus is the lifecycle state of a content item. The zero value means "no decision" and is never stored.
type ContentStatus int

const (
	Draft     ContentStatus = 1
	Reviewing ContentStatus = 2
	Published ContentStatus = 3
	Rejected  ContentStatus = 4
	Hidden    ContentStatus = 5
	Deleted   ContentStatus = 6
)

var contentStatusNames = map[ContentStatus]string{
	Draft:     "DRAFT",
	Reviewing: "REVIEWING",
	Published: "PUBLISHED",
	Rejected:  "REJECTED",
	Hidden:    "HIDDEN",
	Deleted:   "DELETED",
}

func (s ContentStatus) String() string {
	if name, ok := contentStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

func (s ContentStatus) Valid() bool {
	_, ok := contentStatusNames[s]
	return ok
}

func ParseContentStatus(name string) (ContentStatus, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for status, n := range contentStatusNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown content status %q", name)
}

func (s ContentStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid content status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *ContentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseContentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Ptr returns a pointer to a copy of s. It is used for the nullable previous status of events.
func (s ContentStatus) Ptr() *ContentStatus {
	return &s
}

// ContentRef identifies a content item. IDs are unique per content type.
type ContentRef struct {
	Type ContentType `json:"type"`
	ID   int64       `json:"id"`
}

// String returns a textual representation like "ARTICLE:42".
func (r ContentRef) String() string {
	return string(r.Type) + ":" + strconv.FormatInt(r.ID, 10)
}

// UncreatedContent is new content before the Publish Pipeline accepted it. It is never stored as-is.
type UncreatedContent struct {
	Type     ContentType
	AuthorID int
	Title    string
	Body     string
	Meta     map[string]string // type-specific, e.g. "parent" for comments or "src" for images
}

// ContentMetadata is the stored header of a content item, separate from its body.
type ContentMetadata struct {
	Ref       ContentRef    `json:"ref"`
	Status    ContentStatus `json:"status"`
	OwnerID   int           `json:"owner"`
	Language  string        `json:"lang,omitempty"` // BCP 47 tag of the submitter, used for notifications
	CreatedAt time.Time     `json:"created"`
	ChangedAt time.Time     `json:"changed"`
}

// ContentDetails is metadata plus body. The Access Gate hands it out after authorization,
// and publish callbacks receive it before the content is stored (then Ref.ID is zero).
type ContentDetails struct {
	ContentMetadata
	Title string            `json:"title"`
	Body  string            `json:"body"`
	HTML  string            `json:"html,omitempty"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// A ContentDB stores content metadata and bodies.
//
// SetStatus is a compare-and-swap: it fails with ErrConflict if the current status is not from.
type ContentDB interface {
	InsertContent(ctx context.Context, c UncreatedContent, status ContentStatus, language string, now time.Time) (ContentMetadata, error)
	GetMetadata(ctx context.Context, ref ContentRef) (ContentMetadata, error) // ErrNotFound
	GetDetails(ctx context.Context, ref ContentRef) (*ContentDetails, error)  // ErrNotFound
	SetStatus(ctx context.Context, ref ContentRef, from, to ContentStatus, now time.Time) error
	ListByStatus(ctx context.Context, status ContentStatus, limit int) ([]ContentMetadata, error) // oldest first
}
