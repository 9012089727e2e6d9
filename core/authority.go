package core

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// An Authority is granted to groups. Higher authorities include lower authorities.
type Authority int

const (
	NoAuthority Authority = 0
	Reviewer    Authority = 100 // review content
	Staff       Authority = 200 // review, reassign, hide and delete any content
	Admin       Authority = 500 // manage users, groups and grants
)

func (a Authority) String() string {
	switch a {
	case NoAuthority:
		return "none"
	case Reviewer:
		return "reviewer"
	case Staff:
		return "staff"
	case Admin:
		return "admin"
	}
	return "unknown"
}

func (a Authority) Valid() bool {
	switch a {
	case Reviewer, Staff, Admin:
		return true
	default:
		return false
	}
}

func ParseAuthority(s string) (Authority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reviewer":
		return Reviewer, nil
	case "staff":
		return Staff, nil
	case "admin":
		return Admin, nil
	}
	return NoAuthority, fmt.Errorf("unknown authority %q", s)
}

// An Identity is the requesting user. It is passed explicitly through the Publish Pipeline and the Access Gate.
// The zero value is the anonymous public.
type Identity struct {
	UserID    int
	Authority Authority    // highest authority of all groups of the user
	Language  language.Tag // language.Und if unknown
}

// Anonymous returns the identity of a user who is not logged in.
func Anonymous(lang language.Tag) Identity {
	return Identity{Language: lang}
}

func (id Identity) LoggedIn() bool {
	return id.UserID != 0
}

// Has returns whether the identity holds the given authority or a higher one.
func (id Identity) Has(a Authority) bool {
	return id.LoggedIn() && id.Authority >= a
}

func (id Identity) IsStaff() bool {
	return id.Has(Staff)
}

func (id Identity) CanReview() bool {
	return id.Has(Reviewer)
}

// Owns returns whether the identity is the owner of the content.
func (id Identity) Owns(m ContentMetadata) bool {
	return id.LoggedIn() && m.OwnerID == id.UserID
}
