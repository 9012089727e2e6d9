package sqldb

import (
	"database/sql"

	"github.com/wansing/pressroom/core"
)

const grantTable = `CREATE TABLE IF NOT EXISTS authority_grant (
	grp int NOT NULL,
	authority int NOT NULL,
	PRIMARY KEY (grp, authority)
)`

type GrantDB struct {
	db     *DB
	get    *sql.Stmt
	getAll *sql.Stmt
	insert *sql.Stmt
	remove *sql.Stmt
}

func NewGrantDB(db *DB) (*GrantDB, error) {

	if err := db.createTables(grantTable); err != nil {
		return nil, err
	}

	var grantDB = &GrantDB{}
	grantDB.db = db
	grantDB.get = db.mustPrepare("SELECT authority FROM authority_grant WHERE grp = ?")
	grantDB.getAll = db.mustPrepare("SELECT grp, authority FROM authority_grant")
	grantDB.insert = db.mustPrepare("INSERT INTO authority_grant (grp, authority) VALUES (?, ?) ON CONFLICT DO NOTHING")
	grantDB.remove = db.mustPrepare("DELETE FROM authority_grant WHERE grp = ? AND authority = ?")
	return grantDB, nil
}

func (e *GrantDB) GetGrants(groupID int) (map[core.Authority]interface{}, error) {
	res, err := e.get.Query(groupID)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	var grants = map[core.Authority]interface{}{}
	for res.Next() {
		var a int
		if err = res.Scan(&a); err != nil {
			return nil, err
		}
		grants[core.Authority(a)] = struct{}{}
	}
	return grants, res.Err()
}

func (e *GrantDB) GetAllGrants() (map[int]map[core.Authority]interface{}, error) {
	res, err := e.getAll.Query()
	if err != nil {
		return nil, err
	}
	defer res.Close()
	var all = make(map[int]map[core.Authority]interface{})
	for res.Next() {
		var groupID, a int
		if err = res.Scan(&groupID, &a); err != nil {
			return nil, err
		}
		if _, ok := all[groupID]; !ok {
			all[groupID] = make(map[core.Authority]interface{})
		}
		all[groupID][core.Authority(a)] = struct{}{}
	}
	return all, res.Err()
}

func (e *GrantDB) InsertGrant(groupID int, a core.Authority) error {
	_, err := e.insert.Exec(groupID, int(a))
	return err
}

func (e *GrantDB) RemoveGrant(groupID int, a core.Authority) error {
	_, err := e.remove.Exec(groupID, int(a))
	return err
}
