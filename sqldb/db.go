// Package sqldb implements the core databases with database/sql. It supports SQLite (mattn/go-sqlite3)
// and PostgreSQL (jackc/pgx). Queries are written with "?" placeholders and rebound for PostgreSQL.
package sqldb

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/mattn/go-sqlite3"
	"github.com/wansing/pressroom/core"
	"github.com/xo/dburl"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite3"
}

// DB is a database connection which knows its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// New wraps an open connection.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{
		DB:      db,
		Dialect: dialect,
	}
}

// Open parses a database url (see github.com/xo/dburl), opens the database and pings it.
func Open(rawURL string) (*DB, error) {

	dbURL, err := dburl.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse database url: %w", err)
	}

	var driver string
	var dialect Dialect
	switch dbURL.Driver {
	case "sqlite3":
		driver, dialect = "sqlite3", SQLite
	case "postgres", "pgx":
		driver, dialect = "pgx", Postgres
	default:
		return nil, fmt.Errorf("unsupported database backend: %s", dbURL.Driver)
	}

	sqlDB, err := sql.Open(driver, dbURL.DSN)
	if err != nil {
		return nil, fmt.Errorf("could not open sql database: %w", err)
	}

	if dialect == SQLite && strings.Contains(dbURL.DSN, ":memory:") {
		sqlDB.SetMaxOpenConns(1) // each connection would get its own database
	}

	if err = sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("could not ping sql database: %w", err)
	}

	return New(sqlDB, dialect), nil
}

// rebind replaces "?" placeholders by "$1", "$2" etc. for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.Dialect != Postgres {
		return query
	}
	var b = &strings.Builder{}
	var n = 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// serial is the column type of auto-increment primary keys.
func (db *DB) serial() string {
	if db.Dialect == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY"
}

func (db *DB) mustPrepare(query string) *sql.Stmt {
	stmt, err := db.Prepare(db.rebind(query))
	if err != nil {
		panic(fmt.Sprintf("preparing %q: %v", query, err))
	}
	return stmt
}

// createTables executes the statements one by one, because the drivers differ in multi-statement support.
func (db *DB) createTables(statements ...string) error {
	for _, stmt := range statements {
		stmt = strings.ReplaceAll(stmt, "SERIAL_PRIMARY_KEY", db.serial())
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// notFound translates sql.ErrNoRows.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}
