package memdb

import (
	"sort"

	"github.com/wansing/pressroom/core"
	"golang.org/x/crypto/bcrypt"
)

// users

func (db *DB) ChangePassword(u core.DBUser, old, new string) error {
	db.mu.RLock()
	stored, ok := db.users[u.ID()]
	db.mu.RUnlock()
	if !ok {
		return core.ErrNotFound
	}
	if bcrypt.CompareHashAndPassword(stored.pass, []byte(old)) != nil {
		return core.ErrAuth
	}
	return db.SetPassword(u, new)
}

func (db *DB) DeleteUser(u core.DBUser) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.users, u.ID())
	for _, members := range db.members {
		delete(members, u.ID())
	}
	return nil
}

func (db *DB) GetUser(id int) (core.DBUser, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return u, nil
}

func (db *DB) GetUserByName(name string) (core.DBUser, error) {
	name = clean(name)
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, u := range db.users {
		if u.name == name {
			return u, nil
		}
	}
	return nil, core.ErrNotFound
}

func (db *DB) GetAllUsers(limit, offset int) ([]core.DBUser, error) {
	db.mu.RLock()
	var all = make([]*user, 0, len(db.users))
	for _, u := range db.users {
		all = append(all, u)
	}
	db.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		return all[i].name < all[j].name
	})
	var result = []core.DBUser{}
	for i := offset; i < len(all) && (limit <= 0 || i < offset+limit); i++ {
		result = append(result, all[i])
	}
	return result, nil
}

func (db *DB) InsertUser(name string) (core.DBUser, error) {
	name = clean(name)
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.name == name {
			return nil, core.ErrConflict
		}
	}
	db.userSeq++
	var u = &user{
		id:   db.userSeq,
		name: name,
	}
	db.users[u.id] = u
	return u, nil
}

func (db *DB) LoginUser(name, password string) (core.DBUser, error) {
	stored, err := db.GetUserByName(name)
	if err != nil {
		return nil, core.ErrAuth // user not found
	}
	db.mu.RLock()
	var hash = stored.(*user).pass
	db.mu.RUnlock()
	if len(hash) == 0 || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, core.ErrAuth // wrong password
	}
	return stored, nil
}

func (db *DB) SetPassword(u core.DBUser, password string) error {
	if password == "" {
		return core.ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), db.bcryptCost)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	stored, ok := db.users[u.ID()]
	if !ok {
		return core.ErrNotFound
	}
	stored.pass = hash
	return nil
}

// groups

func (db *DB) DeleteGroup(g core.DBGroup) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.groups, g.ID())
	delete(db.members, g.ID())
	delete(db.grants, g.ID())
	return nil
}

func (db *DB) GetAllGroups(limit, offset int) ([]core.DBGroup, error) {
	db.mu.RLock()
	var all = make([]*group, 0, len(db.groups))
	for _, g := range db.groups {
		all = append(all, g)
	}
	db.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		return all[i].name < all[j].name
	})
	var result = []core.DBGroup{}
	for i := offset; i < len(all) && (limit <= 0 || i < offset+limit); i++ {
		result = append(result, all[i])
	}
	return result, nil
}

func (db *DB) GetGroup(id int) (core.DBGroup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	g, ok := db.groups[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return g, nil
}

func (db *DB) GetGroupByName(name string) (core.DBGroup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, g := range db.groups {
		if g.name == name {
			return g, nil
		}
	}
	return nil, core.ErrNotFound
}

func (db *DB) GetGroupsOf(u core.DBUser) ([]core.DBGroup, error) {
	db.mu.RLock()
	var of = []*group{}
	for groupID, members := range db.members {
		if _, ok := members[u.ID()]; ok {
			if g, ok := db.groups[groupID]; ok {
				of = append(of, g)
			}
		}
	}
	db.mu.RUnlock()
	sort.Slice(of, func(i, j int) bool {
		return of[i].name < of[j].name
	})
	var result = make([]core.DBGroup, len(of))
	for i := range of {
		result[i] = of[i]
	}
	return result, nil
}

func (db *DB) InsertGroup(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, g := range db.groups {
		if g.name == name {
			return core.ErrConflict
		}
	}
	db.groupSeq++
	db.groups[db.groupSeq] = &group{
		db:   db,
		id:   db.groupSeq,
		name: name,
	}
	return nil
}

func (db *DB) Join(g core.DBGroup, u core.DBUser) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.groups[g.ID()]; !ok {
		return core.ErrNotFound
	}
	if _, ok := db.users[u.ID()]; !ok {
		return core.ErrNotFound
	}
	if db.members[g.ID()] == nil {
		db.members[g.ID()] = make(map[int]struct{})
	}
	db.members[g.ID()][u.ID()] = struct{}{}
	return nil
}

func (db *DB) Leave(g core.DBGroup, u core.DBUser) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.members[g.ID()], u.ID())
	return nil
}

// grants

func (db *DB) GetGrants(groupID int) (map[core.Authority]interface{}, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var grants = make(map[core.Authority]interface{})
	for a := range db.grants[groupID] {
		grants[a] = struct{}{}
	}
	return grants, nil
}

func (db *DB) GetAllGrants() (map[int]map[core.Authority]interface{}, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var all = make(map[int]map[core.Authority]interface{})
	for groupID, authorities := range db.grants {
		all[groupID] = make(map[core.Authority]interface{})
		for a := range authorities {
			all[groupID][a] = struct{}{}
		}
	}
	return all, nil
}

func (db *DB) InsertGrant(groupID int, a core.Authority) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.grants[groupID] == nil {
		db.grants[groupID] = make(map[core.Authority]interface{})
	}
	db.grants[groupID][a] = struct{}{}
	return nil
}

func (db *DB) RemoveGrant(groupID int, a core.Authority) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.grants[groupID], a)
	return nil
}
