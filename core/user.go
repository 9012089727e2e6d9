package core

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/text/language"
)

type DBUser interface {
	ID() int
	Name() string // can be email address
}

type UserDB interface {
	ChangePassword(u DBUser, old, new string) error
	DeleteUser(u DBUser) error
	GetUser(id int) (DBUser, error)
	GetUserByName(name string) (DBUser, error)
	GetAllUsers(limit, offset int) ([]DBUser, error)
	InsertUser(name string) (DBUser, error)
	LoginUser(name, password string) (DBUser, error)
	SetPassword(u DBUser, password string) error
}

var (
	ErrAuth          = errors.New("authentication failed")
	ErrEmptyPassword = errors.New("refusing to set empty password")
)

// An IdentityProvider resolves identities and reviewer candidates.
type IdentityProvider interface {
	Identify(ctx context.Context, userID int, lang language.Tag) (Identity, error)
	ReviewerCandidates(ctx context.Context) ([]int, error) // user ids, ascending
}

// SetPassword shadows UserDB.SetPassword.
func (c *CoreDB) SetPassword(u DBUser, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	return c.UserDB.SetPassword(u, password)
}

// Identify returns the Identity of the given user. User id zero yields the anonymous identity.
func (c *CoreDB) Identify(ctx context.Context, userID int, lang language.Tag) (Identity, error) {
	if userID == 0 {
		return Anonymous(lang), nil
	}
	u, err := c.UserDB.GetUser(userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, err
	}
	authority, err := c.AuthorityOf(u)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		UserID:    u.ID(),
		Authority: authority,
		Language:  lang,
	}, nil
}

// ReviewerCandidates returns all members of groups which hold the Reviewer authority or a higher one.
func (c *CoreDB) ReviewerCandidates(ctx context.Context) ([]int, error) {
	grants, err := c.GrantDB.GetAllGrants()
	if err != nil {
		return nil, err
	}
	var candidates = make(map[int]interface{})
	for groupID, authorities := range grants {
		var qualifies = false
		for a := range authorities {
			if a >= Reviewer {
				qualifies = true
			}
		}
		if !qualifies {
			continue
		}
		group, err := c.GroupDB.GetGroup(groupID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // grant of a deleted group
			}
			return nil, err
		}
		members, err := group.Members()
		if err != nil {
			return nil, err
		}
		for userID := range members {
			candidates[userID] = struct{}{}
		}
	}
	var result = make([]int, 0, len(candidates))
	for userID := range candidates {
		result = append(result, userID)
	}
	sort.Ints(result)
	return result, nil
}
