package sqldb

import (
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/wansing/pressroom/sqldb/sqlite3"
)

// SessionStore returns a session store for the dialect. PostgreSQL sessions are kept in memory.
func (db *DB) SessionStore() (scs.Store, error) {
	switch db.Dialect {
	case SQLite:
		return sqlite3.NewSessionStore(db.DB)
	default:
		return memstore.New(), nil
	}
}

// Databases holds one of each core database.
type Databases struct {
	Content *ContentDB
	Grants  *GrantDB
	Groups  *GroupDB
	Jobs    *ReviewJobDB
	Users   *UserDB
}

// OpenAll creates the schema and prepares the statements of all databases.
func (db *DB) OpenAll() (*Databases, error) {
	var dbs = &Databases{}
	var err error
	if dbs.Content, err = NewContentDB(db); err != nil {
		return nil, err
	}
	if dbs.Users, err = NewUserDB(db); err != nil {
		return nil, err
	}
	if dbs.Groups, err = NewGroupDB(db); err != nil {
		return nil, err
	}
	if dbs.Grants, err = NewGrantDB(db); err != nil {
		return nil, err
	}
	if dbs.Jobs, err = NewReviewJobDB(db); err != nil {
		return nil, err
	}
	return dbs, nil
}
