package sqldb

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/wansing/pressroom/core"
	"golang.org/x/crypto/bcrypt"
)

func clean(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	return name
}

type user struct {
	id   int
	name string
}

func (u *user) ID() int {
	return u.id
}

func (u *user) Name() string {
	return u.name
}

type UserDB struct {
	*DB
	BcryptCost  int
	delete      *sql.Stmt
	get         *sql.Stmt
	getAll      *sql.Stmt
	getByName   *sql.Stmt
	getHash     *sql.Stmt
	insert      *sql.Stmt
	setPassword *sql.Stmt
}

func NewUserDB(db *DB) (*UserDB, error) {

	err := db.createTables(
		`CREATE TABLE IF NOT EXISTS usr (
			id SERIAL_PRIMARY_KEY,
			name varchar(128) NOT NULL,
			password varchar(72) NOT NULL DEFAULT '',
			UNIQUE(name)
		)`,
	)
	if err != nil {
		return nil, err
	}

	var userDB = &UserDB{}
	userDB.DB = db
	userDB.BcryptCost = bcrypt.DefaultCost
	userDB.delete = db.mustPrepare("DELETE FROM usr WHERE id = ?")
	userDB.get = db.mustPrepare("SELECT name FROM usr WHERE id = ?")
	userDB.getAll = db.mustPrepare("SELECT id, name FROM usr ORDER BY name LIMIT ? OFFSET ?")
	userDB.getByName = db.mustPrepare("SELECT id FROM usr WHERE name = ?")
	userDB.getHash = db.mustPrepare("SELECT id, password FROM usr WHERE name = ?")
	userDB.insert = db.mustPrepare("INSERT INTO usr (name) VALUES (?) RETURNING id") // empty password field is safe because no bcrypt hash equals it
	userDB.setPassword = db.mustPrepare("UPDATE usr SET password = ? WHERE id = ?")
	return userDB, nil
}

func (db *UserDB) ChangePassword(u core.DBUser, old, new string) error {
	if _, err := db.LoginUser(u.Name(), old); err != nil {
		return err
	}
	return db.SetPassword(u, new)
}

// DeleteUser requires that the membership table exists, see NewGroupDB.
func (db *UserDB) DeleteUser(u core.DBUser) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(db.rebind("DELETE FROM membership WHERE usr = ?"), u.ID())
	if err != nil {
		tx.Rollback()
		return err
	}

	_, err = tx.Stmt(db.delete).Exec(u.ID())
	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (db *UserDB) GetUser(id int) (core.DBUser, error) {
	var u = &user{
		id: id,
	}
	if err := db.get.QueryRow(id).Scan(&u.name); err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (db *UserDB) GetUserByName(name string) (core.DBUser, error) {
	var u = &user{
		name: clean(name),
	}
	if err := db.getByName.QueryRow(u.name).Scan(&u.id); err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (db *UserDB) GetAllUsers(limit, offset int) ([]core.DBUser, error) {

	var all = []core.DBUser{}

	rows, err := db.getAll.Query(limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u = &user{}
		if err = rows.Scan(&u.id, &u.name); err != nil {
			return nil, err
		}
		all = append(all, u)
	}

	return all, rows.Err()
}

func (db *UserDB) InsertUser(name string) (core.DBUser, error) {
	var u = &user{
		name: clean(name),
	}
	if u.name == "" {
		return nil, errors.New("user name can't be empty")
	}
	if err := db.insert.QueryRow(u.name).Scan(&u.id); err != nil {
		if isUniqueViolation(err) {
			return nil, core.ErrConflict
		}
		return nil, err
	}
	return u, nil
}

func (db *UserDB) LoginUser(name, password string) (core.DBUser, error) {

	var u = &user{
		name: clean(name),
	}
	var hash string

	err := db.getHash.QueryRow(u.name).Scan(&u.id, &hash)
	if err == sql.ErrNoRows {
		return nil, core.ErrAuth // user not found
	}
	if err != nil {
		return nil, err
	}

	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, core.ErrAuth // wrong password
	}

	return u, nil
}

func (db *UserDB) SetPassword(u core.DBUser, password string) error {

	if password == "" {
		return core.ErrEmptyPassword
	}

	if u.ID() == 0 {
		return errors.New("can't set password of user 0")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), db.BcryptCost)
	if err != nil {
		return err
	}

	_, err = db.setPassword.Exec(string(hash), u.ID())
	return err
}
