package sqldb

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/wansing/pressroom/core"
)

type group struct {
	db            *GroupDB // required for lazy loading
	id            int
	name          string
	members       map[int]interface{} // user id => struct{}
	membersLoaded bool                // lazy loading
}

func (g *group) ID() int {
	return g.id
}

func (g *group) Name() string {
	return g.name
}

func (g *group) HasMember(u core.DBUser) (bool, error) {
	members, err := g.Members()
	if err != nil {
		return false, err
	}
	_, ok := members[u.ID()]
	return ok, nil
}

func (g *group) Members() (map[int]interface{}, error) {

	if !g.membersLoaded {

		var members = make(map[int]interface{})

		rows, err := g.db.members.Query(g.id)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var userID int
			if err = rows.Scan(&userID); err != nil {
				return nil, err
			}
			members[userID] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		g.members = members
		g.membersLoaded = true
	}

	return g.members, nil
}

type GroupDB struct {
	*DB
	delete       *sql.Stmt
	deleteGrants *sql.Stmt
	get          *sql.Stmt
	getAll       *sql.Stmt
	getByName    *sql.Stmt
	getOf        *sql.Stmt
	insert       *sql.Stmt
	join         *sql.Stmt
	leave        *sql.Stmt
	leaveUsers   *sql.Stmt
	members      *sql.Stmt
}

// NewGroupDB creates the group tables and the grant table, so groups can be deleted with their grants.
func NewGroupDB(db *DB) (*GroupDB, error) {

	err := db.createTables(
		`CREATE TABLE IF NOT EXISTS grp (
			id SERIAL_PRIMARY_KEY,
			name varchar(64) NOT NULL,
			UNIQUE(name)
		)`,
		`CREATE TABLE IF NOT EXISTS membership (
			grp int NOT NULL,
			usr int NOT NULL,
			PRIMARY KEY (grp, usr)
		)`,
		grantTable,
	)
	if err != nil {
		return nil, err
	}

	var groupDB = &GroupDB{}
	groupDB.DB = db
	groupDB.delete = db.mustPrepare("DELETE FROM grp WHERE id = ?")
	groupDB.deleteGrants = db.mustPrepare("DELETE FROM authority_grant WHERE grp = ?")
	groupDB.get = db.mustPrepare("SELECT name FROM grp WHERE id = ?")
	groupDB.getAll = db.mustPrepare("SELECT id, name FROM grp ORDER BY name LIMIT ? OFFSET ?")
	groupDB.getByName = db.mustPrepare("SELECT id FROM grp WHERE name = ?")
	groupDB.getOf = db.mustPrepare("SELECT grp.id, grp.name FROM grp, membership WHERE grp.id = membership.grp AND membership.usr = ? ORDER BY grp.name")
	groupDB.insert = db.mustPrepare("INSERT INTO grp (name) VALUES (?)")
	groupDB.join = db.mustPrepare("INSERT INTO membership (grp, usr) VALUES (?, ?) ON CONFLICT DO NOTHING")
	groupDB.leave = db.mustPrepare("DELETE FROM membership WHERE grp = ? AND usr = ?")
	groupDB.leaveUsers = db.mustPrepare("DELETE FROM membership WHERE grp = ?")
	groupDB.members = db.mustPrepare("SELECT usr FROM membership WHERE grp = ?")
	return groupDB, nil
}

func (db *GroupDB) DeleteGroup(g core.DBGroup) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	for _, stmt := range []*sql.Stmt{db.leaveUsers, db.deleteGrants, db.delete} {
		if _, err = tx.Stmt(stmt).Exec(g.ID()); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (db *GroupDB) GetGroup(id int) (core.DBGroup, error) {
	var g = &group{
		db: db,
		id: id,
	}
	if err := db.get.QueryRow(id).Scan(&g.name); err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

func (db *GroupDB) GetGroupByName(name string) (core.DBGroup, error) {
	var g = &group{
		db:   db,
		name: strings.TrimSpace(name),
	}
	if err := db.getByName.QueryRow(g.name).Scan(&g.id); err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

func (db *GroupDB) getMultiple(stmt *sql.Stmt, args ...interface{}) ([]core.DBGroup, error) {

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups = []core.DBGroup{}

	for rows.Next() {
		var g = &group{
			db: db,
		}
		if err = rows.Scan(&g.id, &g.name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

func (db *GroupDB) GetAllGroups(limit, offset int) ([]core.DBGroup, error) {
	return db.getMultiple(db.getAll, limit, offset)
}

func (db *GroupDB) GetGroupsOf(u core.DBUser) ([]core.DBGroup, error) {
	return db.getMultiple(db.getOf, u.ID())
}

func (db *GroupDB) InsertGroup(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("group name can't be empty")
	}
	_, err := db.insert.Exec(name)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (db *GroupDB) Join(g core.DBGroup, u core.DBUser) error {

	if u.ID() == 0 {
		return errors.New("can't add user 0")
	}

	if _, err := db.join.Exec(g.ID(), u.ID()); err != nil {
		return err
	}

	if gr, ok := g.(*group); ok && gr.membersLoaded {
		gr.members[u.ID()] = struct{}{}
	}
	return nil
}

func (db *GroupDB) Leave(g core.DBGroup, u core.DBUser) error {

	if _, err := db.leave.Exec(g.ID(), u.ID()); err != nil {
		return err
	}

	if gr, ok := g.(*group); ok && gr.membersLoaded {
		delete(gr.members, u.ID())
	}
	return nil
}
