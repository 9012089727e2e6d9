// Package memdb implements the core databases in memory. It is used in tests and for the "mem:" database url.
package memdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wansing/pressroom/core"
	"golang.org/x/crypto/bcrypt"
)

type content struct {
	meta  core.ContentMetadata
	title string
	body  string
	extra map[string]string
}

type user struct {
	id   int
	name string
	pass []byte // bcrypt hash
}

func (u *user) ID() int {
	return u.id
}

func (u *user) Name() string {
	return u.name
}

type group struct {
	db   *DB
	id   int
	name string
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
	g.db.mu.RLock()
	defer g.db.mu.RUnlock()
	var members = make(map[int]interface{})
	for userID := range g.db.members[g.id] {
		members[userID] = struct{}{}
	}
	return members, nil
}

// DB implements ContentDB, ReviewJobDB, UserDB, GroupDB and GrantDB.
type DB struct {
	mu sync.RWMutex

	contentSeq map[core.ContentType]int64 // ids are unique per content type
	contents   map[core.ContentRef]*content

	jobSeq int64
	jobs   map[int64]core.ReviewJob

	userSeq int
	users   map[int]*user

	groupSeq int
	groups   map[int]*group
	members  map[int]map[int]struct{} // group id -> user ids
	grants   map[int]map[core.Authority]interface{}

	bcryptCost int
}

func New() *DB {
	return &DB{
		contentSeq: make(map[core.ContentType]int64),
		contents:   make(map[core.ContentRef]*content),
		jobs:       make(map[int64]core.ReviewJob),
		users:      make(map[int]*user),
		groups:     make(map[int]*group),
		members:    make(map[int]map[int]struct{}),
		grants:     make(map[int]map[core.Authority]interface{}),
		bcryptCost: bcrypt.MinCost,
	}
}

// content

func (db *DB) InsertContent(ctx context.Context, c core.UncreatedContent, status core.ContentStatus, language string, now time.Time) (core.ContentMetadata, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.contentSeq[c.Type]++
	var meta = core.ContentMetadata{
		Ref:       core.ContentRef{Type: c.Type, ID: db.contentSeq[c.Type]},
		Status:    status,
		OwnerID:   c.AuthorID,
		Language:  language,
		CreatedAt: now,
		ChangedAt: now,
	}
	db.contents[meta.Ref] = &content{
		meta:  meta,
		title: c.Title,
		body:  c.Body,
		extra: copyMap(c.Meta),
	}
	return meta, nil
}

func (db *DB) GetMetadata(ctx context.Context, ref core.ContentRef) (core.ContentMetadata, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.contents[ref]
	if !ok {
		return core.ContentMetadata{}, core.ErrNotFound
	}
	return c.meta, nil
}

func (db *DB) GetDetails(ctx context.Context, ref core.ContentRef) (*core.ContentDetails, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.contents[ref]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &core.ContentDetails{
		ContentMetadata: c.meta,
		Title:           c.title,
		Body:            c.body,
		Meta:            copyMap(c.extra),
	}, nil
}

func (db *DB) SetStatus(ctx context.Context, ref core.ContentRef, from, to core.ContentStatus, now time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.contents[ref]
	if !ok {
		return core.ErrNotFound
	}
	if c.meta.Status != from {
		return core.ErrConflict
	}
	c.meta.Status = to
	c.meta.ChangedAt = now
	return nil
}

func (db *DB) ListByStatus(ctx context.Context, status core.ContentStatus, limit int) ([]core.ContentMetadata, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var result = []core.ContentMetadata{}
	for _, c := range db.contents {
		if c.meta.Status == status {
			result = append(result, c.meta)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		if result[i].Ref.Type != result[j].Ref.Type {
			return result[i].Ref.Type < result[j].Ref.Type
		}
		return result[i].Ref.ID < result[j].Ref.ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// review jobs

func (db *DB) InsertJob(ctx context.Context, j core.ReviewJob) (core.ReviewJob, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !j.Resolved() {
		for _, existing := range db.jobs {
			if existing.ContentID == j.ContentID && existing.Type == j.Type && !existing.Resolved() {
				return core.ReviewJob{}, core.ErrConflict
			}
		}
	}
	db.jobSeq++
	var inserted = j.Fork(db.jobSeq)
	db.jobs[inserted.ID] = inserted.Fork(inserted.ID)
	return inserted, nil
}

func (db *DB) UpdateJob(ctx context.Context, j core.ReviewJob, expected core.ReviewStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored, ok := db.jobs[j.ID]
	if !ok {
		return core.ErrNotFound
	}
	if stored.Status != expected {
		return core.ErrConflict
	}
	db.jobs[j.ID] = j.Fork(j.ID)
	return nil
}

func (db *DB) GetJob(ctx context.Context, id int64) (core.ReviewJob, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	j, ok := db.jobs[id]
	if !ok {
		return core.ReviewJob{}, core.ErrNotFound
	}
	return j.Fork(j.ID), nil
}

func (db *DB) GetJobBy(ctx context.Context, contentID int64, t core.ReviewType) (core.ReviewJob, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var found bool
	var best core.ReviewJob
	for _, j := range db.jobs {
		if j.ContentID != contentID || j.Type != t {
			continue
		}
		switch {
		case !found:
			best, found = j, true
		case !j.Resolved() && best.Resolved():
			best = j
		case j.Resolved() == best.Resolved() && j.ID > best.ID:
			best = j
		}
	}
	if !found {
		return core.ReviewJob{}, core.ErrNotFound
	}
	return best.Fork(best.ID), nil
}

func (db *DB) GetJobsByReviewer(ctx context.Context, reviewerID int, statuses ...core.ReviewStatus) ([]core.ReviewJob, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var result = []core.ReviewJob{}
	for _, j := range db.jobs {
		if !j.AssignedTo(reviewerID) {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, j.Status) {
			continue
		}
		result = append(result, j.Fork(j.ID))
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].ID < result[k].ID
	})
	return result, nil
}

func (db *DB) CountUnfinished(ctx context.Context, reviewerID int) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var count = 0
	for _, j := range db.jobs {
		if j.AssignedTo(reviewerID) && !j.Resolved() {
			count++
		}
	}
	return count, nil
}

func containsStatus(statuses []core.ReviewStatus, s core.ReviewStatus) bool {
	for _, status := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	var c = make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func clean(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
