package core

import "fmt"

// A GrantDB assigns authorities to groups.
type GrantDB interface {
	GetGrants(groupID int) (map[Authority]interface{}, error)
	GetAllGrants() (map[int]map[Authority]interface{}, error) // group id -> authorities
	InsertGrant(groupID int, a Authority) error
	RemoveGrant(groupID int, a Authority) error
}

// Grant shadows GrantDB.InsertGrant.
func (c *CoreDB) Grant(g DBGroup, a Authority) error {
	if !a.Valid() {
		return fmt.Errorf("invalid authority %d", int(a))
	}
	if _, err := c.GroupDB.GetGroup(g.ID()); err != nil {
		return err
	}
	return c.GrantDB.InsertGrant(g.ID(), a)
}

// Revoke shadows GrantDB.RemoveGrant.
func (c *CoreDB) Revoke(g DBGroup, a Authority) error {
	// not checking if the group exists because not a lot can go wrong
	return c.GrantDB.RemoveGrant(g.ID(), a)
}

// AuthorityOf returns the highest authority which any group of the user holds.
func (c *CoreDB) AuthorityOf(u DBUser) (Authority, error) {
	if u == nil {
		return NoAuthority, nil
	}
	groups, err := c.GroupDB.GetGroupsOf(u)
	if err != nil {
		return NoAuthority, err
	}
	var highest = NoAuthority
	for _, g := range groups {
		grants, err := c.GrantDB.GetGrants(g.ID())
		if err != nil {
			return NoAuthority, err
		}
		for a := range grants {
			if a.Valid() && a > highest {
				highest = a
			}
		}
	}
	return highest, nil
}
