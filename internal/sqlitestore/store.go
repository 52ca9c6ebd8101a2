// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package sqlitestore is a SQLite-backed page store for local runs and
// tests. It implements the same contract as the Postgres store in pagedb.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cardinalhq/pagekeeper/internal/pages"
	"github.com/cardinalhq/pagekeeper/internal/sqlitestore/migrations"
)

// Store persists pages in a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ pages.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Post timestamps keep microseconds, the resolution of a Postgres timestamptz.
func toMicros(value time.Time) int64 {
	return value.UnixMicro()
}

func fromMicros(value int64) time.Time {
	return time.UnixMicro(value).UTC()
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations. Write transactions start with BEGIN IMMEDIATE so
// concurrent writers queue on the busy timeout instead of failing on a lock
// upgrade.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(10000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create iofs driver: %w", err)
	}
	dbDriver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{
		MigrationsTable: "gomigrate_pages",
	})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	// The migrate instance is not closed: closing it would close db.
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	_, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if dirty {
		return errors.New("migration is dirty, please fix it before proceeding")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn in one transaction. Busy, locked and unique-constraint
// failures are reported as pages.ErrConflict.
func (s *Store) InTx(ctx context.Context, fn func(pages.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
	}()

	if err = fn(&storeTx{tx: tx, now: s.now}); err != nil {
		return classify(err)
	}
	if err = tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

func classify(err error) error {
	if isConflict(err) {
		return fmt.Errorf("%w: %w", pages.ErrConflict, err)
	}
	return err
}

func isConflict(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	switch code {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	switch code & 0xff {
	case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
		return true
	}
	return false
}

const pageColumns = `id, external_id, platform_id, name, url, profile_image_url,
       description, website, industry, follower_count, headcount,
       specialities, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (pages.Page, error) {
	var (
		p            pages.Page
		platformID   sql.NullString
		specialities string
		createdAt    int64
		updatedAt    int64
	)
	err := row.Scan(
		&p.ID,
		&p.ExternalID,
		&platformID,
		&p.Name,
		&p.URL,
		&p.ProfileImageURL,
		&p.Description,
		&p.Website,
		&p.Industry,
		&p.FollowerCount,
		&p.Headcount,
		&specialities,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return pages.Page{}, err
	}
	if platformID.Valid {
		p.PlatformID = &platformID.String
	}
	if err := json.Unmarshal([]byte(specialities), &p.Specialities); err != nil {
		return pages.Page{}, fmt.Errorf("decode specialities: %w", err)
	}
	if p.Specialities == nil {
		p.Specialities = []string{}
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

func (s *Store) FindPage(ctx context.Context, externalID string) (pages.Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pageColumns+`
		   FROM pages
		  WHERE external_id = ?`,
		externalID,
	)
	p, err := scanPage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pages.Page{}, pages.ErrNotFound
		}
		return pages.Page{}, fmt.Errorf("find page: %w", err)
	}
	return p, nil
}

// escapeLike escapes LIKE metacharacters so the value matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) SearchPages(ctx context.Context, filter pages.SearchFilter, offset int64, limit int) (int64, []pages.PageSummary, error) {
	var (
		where []string
		args  []any
	)
	if filter.Name != nil {
		where = append(where, `name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(*filter.Name)+"%")
	}
	if filter.Industry != nil {
		where = append(where, `industry = ?`)
		args = append(args, *filter.Industry)
	}
	if filter.FollowersMin != nil {
		where = append(where, `follower_count >= ?`)
		args = append(args, *filter.FollowersMin)
	}
	if filter.FollowersMax != nil {
		where = append(where, `follower_count <= ?`)
		args = append(args, *filter.FollowersMax)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`+clause, args...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count pages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, name, industry, follower_count
		   FROM pages`+clause+`
		  ORDER BY id
		  LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()

	var items []pages.PageSummary
	for rows.Next() {
		var item pages.PageSummary
		if err := rows.Scan(&item.ID, &item.ExternalID, &item.Name, &item.Industry, &item.FollowerCount); err != nil {
			return 0, nil, fmt.Errorf("scan page summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterate pages: %w", err)
	}
	return total, items, nil
}

func (s *Store) ListPostsForPage(ctx context.Context, pageID int64, limit int) ([]pages.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, page_id, external_id, content_text, media_url,
		        like_count, comment_count, share_count, posted_at
		   FROM posts
		  WHERE page_id = ?
		  ORDER BY posted_at DESC NULLS LAST, id
		  LIMIT ?`,
		pageID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []pages.Post
	for rows.Next() {
		var (
			p        pages.Post
			postedAt sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.PageID, &p.ExternalID, &p.ContentText, &p.MediaURL,
			&p.LikeCount, &p.CommentCount, &p.ShareCount, &postedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if postedAt.Valid {
			t := fromMicros(postedAt.Int64)
			p.PostedAt = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}

func (s *Store) ListCommentsForPosts(ctx context.Context, postIDs []int64) (map[int64][]pages.Comment, error) {
	out := make(map[int64][]pages.Comment, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(postIDs)), ",")
	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.post_id, c.content_text, c.like_count,
		        u.id, u.external_id, u.name, u.headline, u.profile_url, u.profile_image_url
		   FROM comments c
		   JOIN users u ON u.id = c.user_id
		  WHERE c.post_id IN (`+placeholders+`)
		  ORDER BY c.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c pages.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.ContentText, &c.LikeCount,
			&c.Author.ID, &c.Author.ExternalID, &c.Author.Name, &c.Author.Headline,
			&c.Author.ProfileURL, &c.Author.ProfileImageURL); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out[c.PostID] = append(out[c.PostID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return out, nil
}

func (s *Store) ListFollowersForPage(ctx context.Context, pageID int64, limit int) ([]pages.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.external_id, u.name, u.headline, u.profile_url, u.profile_image_url
		   FROM page_followers pf
		   JOIN users u ON u.id = pf.user_id
		  WHERE pf.page_id = ?
		  ORDER BY pf.id
		  LIMIT ?`,
		pageID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	defer rows.Close()

	var out []pages.User
	for rows.Next() {
		var u pages.User
		if err := rows.Scan(&u.ID, &u.ExternalID, &u.Name, &u.Headline, &u.ProfileURL, &u.ProfileImageURL); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate followers: %w", err)
	}
	return out, nil
}

func (s *Store) ListEmployeesForPage(ctx context.Context, pageID int64, limit int) ([]pages.Employment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.page_id, e.title, e.location,
		        u.id, u.external_id, u.name, u.headline, u.profile_url, u.profile_image_url
		   FROM employments e
		   JOIN users u ON u.id = e.user_id
		  WHERE e.page_id = ?
		  ORDER BY e.id
		  LIMIT ?`,
		pageID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var out []pages.Employment
	for rows.Next() {
		var e pages.Employment
		if err := rows.Scan(&e.ID, &e.PageID, &e.Title, &e.Location,
			&e.User.ID, &e.User.ExternalID, &e.User.Name, &e.User.Headline,
			&e.User.ProfileURL, &e.User.ProfileImageURL); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return out, nil
}
