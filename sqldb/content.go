package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wansing/pressroom/core"
)

type ContentDB struct {
	db         *DB
	getDetails *sql.Stmt
	getMeta    *sql.Stmt
	insertBody *sql.Stmt
	insertMeta *sql.Stmt
	listBy     *sql.Stmt
	setStatus  *sql.Stmt
}

func NewContentDB(db *DB) (*ContentDB, error) {

	err := db.createTables(
		`CREATE TABLE IF NOT EXISTS content_meta (
			id SERIAL_PRIMARY_KEY,
			type varchar(16) NOT NULL,
			status int NOT NULL,
			owner int NOT NULL,
			lang varchar(35) NOT NULL DEFAULT '',
			created bigint NOT NULL,
			changed bigint NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS content_meta_status ON content_meta (status, created)`,
		`CREATE TABLE IF NOT EXISTS content_body (
			id bigint PRIMARY KEY REFERENCES content_meta (id),
			title text NOT NULL,
			body text NOT NULL,
			meta text NOT NULL
		)`,
	)
	if err != nil {
		return nil, err
	}

	var contentDB = &ContentDB{}
	contentDB.db = db
	contentDB.getDetails = db.mustPrepare("SELECT m.status, m.owner, m.lang, m.created, m.changed, b.title, b.body, b.meta FROM content_meta m, content_body b WHERE m.id = b.id AND m.type = ? AND m.id = ?")
	contentDB.getMeta = db.mustPrepare("SELECT status, owner, lang, created, changed FROM content_meta WHERE type = ? AND id = ?")
	contentDB.insertBody = db.mustPrepare("INSERT INTO content_body (id, title, body, meta) VALUES (?, ?, ?, ?)")
	contentDB.insertMeta = db.mustPrepare("INSERT INTO content_meta (type, status, owner, lang, created, changed) VALUES (?, ?, ?, ?, ?, ?) RETURNING id")
	contentDB.listBy = db.mustPrepare("SELECT type, id, owner, lang, created, changed FROM content_meta WHERE status = ? ORDER BY created, id LIMIT ?")
	contentDB.setStatus = db.mustPrepare("UPDATE content_meta SET status = ?, changed = ? WHERE type = ? AND id = ? AND status = ?")
	return contentDB, nil
}

// InsertContent writes metadata and body in one transaction.
func (db *ContentDB) InsertContent(ctx context.Context, c core.UncreatedContent, status core.ContentStatus, language string, now time.Time) (core.ContentMetadata, error) {

	metaJSON, err := json.Marshal(c.Meta)
	if err != nil {
		return core.ContentMetadata{}, err
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ContentMetadata{}, err
	}

	var id int64
	err = tx.StmtContext(ctx, db.insertMeta).QueryRowContext(ctx, string(c.Type), int(status), c.AuthorID, language, now.Unix(), now.Unix()).Scan(&id)
	if err != nil {
		tx.Rollback()
		return core.ContentMetadata{}, err
	}

	_, err = tx.StmtContext(ctx, db.insertBody).ExecContext(ctx, id, c.Title, c.Body, string(metaJSON))
	if err != nil {
		tx.Rollback()
		return core.ContentMetadata{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.ContentMetadata{}, err
	}

	return core.ContentMetadata{
		Ref:       core.ContentRef{Type: c.Type, ID: id},
		Status:    status,
		OwnerID:   c.AuthorID,
		Language:  language,
		CreatedAt: time.Unix(now.Unix(), 0),
		ChangedAt: time.Unix(now.Unix(), 0),
	}, nil
}

func (db *ContentDB) GetMetadata(ctx context.Context, ref core.ContentRef) (core.ContentMetadata, error) {
	var m = core.ContentMetadata{Ref: ref}
	var status int
	var created, changed int64
	err := db.getMeta.QueryRowContext(ctx, string(ref.Type), ref.ID).Scan(&status, &m.OwnerID, &m.Language, &created, &changed)
	if err != nil {
		return core.ContentMetadata{}, notFound(err)
	}
	m.Status = core.ContentStatus(status)
	m.CreatedAt = time.Unix(created, 0)
	m.ChangedAt = time.Unix(changed, 0)
	return m, nil
}

func (db *ContentDB) GetDetails(ctx context.Context, ref core.ContentRef) (*core.ContentDetails, error) {
	var d = &core.ContentDetails{}
	d.Ref = ref
	var status int
	var created, changed int64
	var metaJSON string
	err := db.getDetails.QueryRowContext(ctx, string(ref.Type), ref.ID).Scan(&status, &d.OwnerID, &d.Language, &created, &changed, &d.Title, &d.Body, &metaJSON)
	if err != nil {
		return nil, notFound(err)
	}
	d.Status = core.ContentStatus(status)
	d.CreatedAt = time.Unix(created, 0)
	d.ChangedAt = time.Unix(changed, 0)
	if err := json.Unmarshal([]byte(metaJSON), &d.Meta); err != nil {
		return nil, fmt.Errorf("decoding meta of %s: %w", ref, err)
	}
	return d, nil
}

// SetStatus is a compare-and-swap on the status column.
func (db *ContentDB) SetStatus(ctx context.Context, ref core.ContentRef, from, to core.ContentStatus, now time.Time) error {
	res, err := db.setStatus.ExecContext(ctx, int(to), now.Unix(), string(ref.Type), ref.ID, int(from))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := db.GetMetadata(ctx, ref); err != nil {
			return err
		}
		return core.ErrConflict
	}
	return nil
}

func (db *ContentDB) ListByStatus(ctx context.Context, status core.ContentStatus, limit int) ([]core.ContentMetadata, error) {

	if limit <= 0 {
		limit = -1 // no limit in sqlite
		if db.db.Dialect == Postgres {
			limit = 1 << 30
		}
	}

	rows, err := db.listBy.QueryContext(ctx, int(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all = []core.ContentMetadata{}
	for rows.Next() {
		var m = core.ContentMetadata{Status: status}
		var t string
		var created, changed int64
		if err := rows.Scan(&t, &m.Ref.ID, &m.OwnerID, &m.Language, &created, &changed); err != nil {
			return nil, err
		}
		m.Ref.Type = core.ContentType(t)
		m.CreatedAt = time.Unix(created, 0)
		m.ChangedAt = time.Unix(changed, 0)
		all = append(all, m)
	}
	return all, rows.Err()
}
