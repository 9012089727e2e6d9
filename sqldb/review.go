package sqldb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/wansing/pressroom/core"
)

type ReviewJobDB struct {
	db              *DB
	countUnfinished *sql.Stmt
	get             *sql.Stmt
	getBy           *sql.Stmt
	insert          *sql.Stmt
	update          *sql.Stmt
}

const reviewJobColumns = "id, content_id, content_type, reviewer, status, result, created, review_time"

func NewReviewJobDB(db *DB) (*ReviewJobDB, error) {

	err := db.createTables(
		`CREATE TABLE IF NOT EXISTS review_job (
			id SERIAL_PRIMARY_KEY,
			content_id bigint NOT NULL,
			content_type varchar(16) NOT NULL,
			reviewer int,
			status int NOT NULL,
			result text NOT NULL,
			created bigint NOT NULL,
			review_time bigint NOT NULL
		)`,
		// at most one unfinished job per content
		`CREATE UNIQUE INDEX IF NOT EXISTS review_job_unfinished ON review_job (content_type, content_id) WHERE status = 0`,
		`CREATE INDEX IF NOT EXISTS review_job_reviewer ON review_job (reviewer, status)`,
	)
	if err != nil {
		return nil, err
	}

	var jobDB = &ReviewJobDB{}
	jobDB.db = db
	jobDB.countUnfinished = db.mustPrepare("SELECT COUNT(1) FROM review_job WHERE reviewer = ? AND status = 0")
	jobDB.get = db.mustPrepare("SELECT " + reviewJobColumns + " FROM review_job WHERE id = ?")
	jobDB.getBy = db.mustPrepare("SELECT " + reviewJobColumns + " FROM review_job WHERE content_id = ? AND content_type = ? ORDER BY CASE WHEN status = 0 THEN 0 ELSE 1 END, id DESC LIMIT 1")
	jobDB.insert = db.mustPrepare("INSERT INTO review_job (content_id, content_type, reviewer, status, result, created, review_time) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id")
	jobDB.update = db.mustPrepare("UPDATE review_job SET reviewer = ?, status = ?, result = ?, review_time = ? WHERE id = ? AND status = ?")
	return jobDB, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (core.ReviewJob, error) {
	var j core.ReviewJob
	var t string
	var reviewer sql.NullInt64
	var status int
	var created, reviewTime int64
	if err := row.Scan(&j.ID, &j.ContentID, &t, &reviewer, &status, &j.Result, &created, &reviewTime); err != nil {
		return core.ReviewJob{}, err
	}
	j.Type = core.ReviewType(t)
	j.Status = core.ReviewStatus(status)
	j.CreatedAt = time.Unix(created, 0)
	if reviewTime != 0 {
		var t = time.Unix(reviewTime, 0)
		j.ReviewTime = &t
	}
	if reviewer.Valid {
		j = j.ForkReviewer(int(reviewer.Int64))
	}
	return j, nil
}

func reviewerArg(j core.ReviewJob) sql.NullInt64 {
	if j.ReviewerID == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*j.ReviewerID), Valid: true}
}

func unixOrZero(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.Unix()
}

// InsertJob relies on the partial unique index for the uniqueness of unfinished jobs.
func (db *ReviewJobDB) InsertJob(ctx context.Context, j core.ReviewJob) (core.ReviewJob, error) {
	var id int64
	err := db.insert.QueryRowContext(ctx, j.ContentID, string(j.Type), reviewerArg(j), int(j.Status), j.Result, j.CreatedAt.Unix(), unixOrZero(j.ReviewTime)).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ReviewJob{}, core.ErrConflict
		}
		return core.ReviewJob{}, err
	}
	var inserted = j.Fork(id)
	inserted.CreatedAt = time.Unix(j.CreatedAt.Unix(), 0)
	return inserted, nil
}

func (db *ReviewJobDB) UpdateJob(ctx context.Context, j core.ReviewJob, expected core.ReviewStatus) error {
	res, err := db.update.ExecContext(ctx, reviewerArg(j), int(j.Status), j.Result, unixOrZero(j.ReviewTime), j.ID, int(expected))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := db.GetJob(ctx, j.ID); err != nil {
			return err
		}
		return core.ErrConflict
	}
	return nil
}

func (db *ReviewJobDB) GetJob(ctx context.Context, id int64) (core.ReviewJob, error) {
	j, err := scanJob(db.get.QueryRowContext(ctx, id))
	return j, notFound(err)
}

func (db *ReviewJobDB) GetJobBy(ctx context.Context, contentID int64, t core.ReviewType) (core.ReviewJob, error) {
	j, err := scanJob(db.getBy.QueryRowContext(ctx, contentID, string(t)))
	return j, notFound(err)
}

// GetJobsByReviewer returns the jobs in ascending id order. No statuses means all statuses.
func (db *ReviewJobDB) GetJobsByReviewer(ctx context.Context, reviewerID int, statuses ...core.ReviewStatus) ([]core.ReviewJob, error) {

	var query = "SELECT " + reviewJobColumns + " FROM review_job WHERE reviewer = ?"
	var args = []interface{}{reviewerID}
	if len(statuses) > 0 {
		var placeholders = make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, int(s))
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id"

	rows, err := db.db.QueryContext(ctx, db.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs = []core.ReviewJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (db *ReviewJobDB) CountUnfinished(ctx context.Context, reviewerID int) (int, error) {
	var count int
	err := db.countUnfinished.QueryRowContext(ctx, reviewerID).Scan(&count)
	return count, err
}
