package filters

import (
	"context"
	"strings"

	"github.com/wansing/pressroom/core"
	"github.com/wansing/pressroom/util"
)

func init() {
	Register(&Element{
		Code: "title-not-empty",
		Name: "Articles and posts need a title",
		CreateFilter: func(s Settings) core.PublishFilter {
			return TitleNotEmpty{}
		},
	})
	Register(&Element{
		Code: "title-length",
		Name: "Maximum title length",
		CreateFilter: func(s Settings) core.PublishFilter {
			return TitleLength{Max: s.TitleMax}
		},
	})
	Register(&Element{
		Code: "body-length",
		Name: "Minimum and maximum length of the text",
		CreateFilter: func(s Settings) core.PublishFilter {
			return BodyLength{Min: s.BodyMin, Max: s.BodyMax}
		},
	})
	Register(&Element{
		Code: "banned-terms",
		Name: "Reject banned terms",
		CreateFilter: func(s Settings) core.PublishFilter {
			return NewBannedTerms(s.Banned)
		},
	})
}

func titled(t core.ContentType) bool {
	return t == core.Article || t == core.Post
}

type TitleNotEmpty struct{}

func (TitleNotEmpty) Order() int {
	return 0
}

func (TitleNotEmpty) Filter(ctx context.Context, c core.UncreatedContent) *core.ErrorCode {
	if titled(c.Type) && strings.TrimSpace(c.Title) == "" {
		return core.ErrTitleEmpty
	}
	return core.Success
}

type TitleLength struct {
	Max int // zero means unlimited
}

func (TitleLength) Order() int {
	return 10
}

func (f TitleLength) Filter(ctx context.Context, c core.UncreatedContent) *core.ErrorCode {
	if f.Max > 0 && util.RuneCount(c.Title) > f.Max {
		return core.ErrTitleTooLong
	}
	return core.Success
}

// BodyLength counts the runes of the plain text of the rendered markdown body.
// Comments are only checked for emptiness and Max. Images are not checked.
type BodyLength struct {
	Min int
	Max int // zero means unlimited
}

func (BodyLength) Order() int {
	return 20
}

func (f BodyLength) Filter(ctx context.Context, c core.UncreatedContent) *core.ErrorCode {
	if c.Type == core.Image {
		return core.Success // the image is the content, the body is an optional caption
	}
	var length = util.RuneCount(util.MarkdownText(c.Body))
	switch {
	case length == 0:
		return core.ErrBodyEmpty
	case c.Type != core.Comment && length < f.Min:
		return core.ErrBodyTooShort
	case f.Max > 0 && length > f.Max:
		return core.ErrBodyTooLong
	}
	return core.Success
}

// BannedTerms rejects content whose title or body contains a banned term, case-insensitively.
type BannedTerms struct {
	banned []string
}

func NewBannedTerms(banned []string) BannedTerms {
	normalized := make([]string, 0, len(banned))
	for _, term := range banned {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		normalized = append(normalized, strings.ToLower(term))
	}
	return BannedTerms{banned: normalized}
}

func (BannedTerms) Order() int {
	return 100
}

func (f BannedTerms) Filter(ctx context.Context, c core.UncreatedContent) *core.ErrorCode {
	lower := strings.ToLower(c.Title + "\n" + c.Body)
	for _, banned := range f.banned {
		if strings.Contains(lower, banned) {
			return core.ErrBannedTerm
		}
	}
	return core.Success
}
