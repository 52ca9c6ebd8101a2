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

// Package pagedb is the PostgreSQL page store.
package pagedb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

// Store provides all functions to execute db queries and transactions
type Store struct {
	*Queries
	connPool *pgxpool.Pool
}

var _ pages.Store = (*Store)(nil)

// NewStore creates a new Store
func NewStore(connPool *pgxpool.Pool) *Store {
	return &Store{
		connPool: connPool,
		Queries:  New(connPool),
	}
}

func (store *Store) Pool() *pgxpool.Pool {
	return store.connPool
}

func (store *Store) Close() error {
	if store.connPool != nil {
		store.connPool.Close()
	}
	return nil
}

func (store *Store) Ping(ctx context.Context) error {
	return store.connPool.Ping(ctx)
}

func (store *Store) execTx(ctx context.Context, fn func(*Store) error) (err error) {
	tx, err := store.connPool.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Never use the caller ctx for cleanup as it may be cancelled.
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			if err != nil {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			} else {
				err = fmt.Errorf("rollback failed: %w", rbErr)
			}
		}
	}()

	txStore := &Store{
		connPool: store.connPool,
		Queries:  New(tx),
	}

	if err = fn(txStore); err != nil {
		return err
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = tx.Commit(commitCtx); err != nil {
		return err
	}
	committed = true
	return nil
}

// InTx runs fn in one transaction. Unique violations, serialization
// failures and deadlocks come back wrapped in pages.ErrConflict.
func (store *Store) InTx(ctx context.Context, fn func(pages.Tx) error) error {
	err := store.execTx(ctx, func(s *Store) error {
		return fn(&storeTx{q: s.Queries})
	})
	if err != nil && isConflict(err) {
		return fmt.Errorf("%w: %w", pages.ErrConflict, err)
	}
	return err
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation, pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	}
	return false
}

func toPage(p Page) pages.Page {
	specialities := p.Specialities
	if specialities == nil {
		specialities = []string{}
	}
	return pages.Page{
		ID:              p.ID,
		ExternalID:      p.ExternalID,
		PlatformID:      p.PlatformID,
		Name:            p.Name,
		URL:             p.Url,
		ProfileImageURL: p.ProfileImageUrl,
		Description:     p.Description,
		Website:         p.Website,
		Industry:        p.Industry,
		FollowerCount:   p.FollowerCount,
		Headcount:       p.Headcount,
		Specialities:    specialities,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
}

func toUser(u User) pages.User {
	return pages.User{
		ID:              u.ID,
		ExternalID:      u.ExternalID,
		Name:            u.Name,
		Headline:        u.Headline,
		ProfileURL:      u.ProfileUrl,
		ProfileImageURL: u.ProfileImageUrl,
	}
}

func (store *Store) FindPage(ctx context.Context, externalID string) (pages.Page, error) {
	p, err := store.GetPage(ctx, externalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pages.Page{}, pages.ErrNotFound
		}
		return pages.Page{}, fmt.Errorf("find page: %w", err)
	}
	return toPage(p), nil
}

// escapeLike escapes LIKE metacharacters so the value matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (store *Store) SearchPages(ctx context.Context, filter pages.SearchFilter, offset int64, limit int) (int64, []pages.PageSummary, error) {
	var namePattern *string
	if filter.Name != nil {
		escaped := escapeLike(*filter.Name)
		namePattern = &escaped
	}

	total, err := store.CountPages(ctx, CountPagesParams{
		NamePattern:  namePattern,
		Industry:     filter.Industry,
		FollowersMin: filter.FollowersMin,
		FollowersMax: filter.FollowersMax,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("count pages: %w", err)
	}

	rows, err := store.Queries.SearchPages(ctx, SearchPagesParams{
		NamePattern:  namePattern,
		Industry:     filter.Industry,
		FollowersMin: filter.FollowersMin,
		FollowersMax: filter.FollowersMax,
		Limit:        int32(limit),
		Offset:       offset,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("search pages: %w", err)
	}

	items := make([]pages.PageSummary, len(rows))
	for i, r := range rows {
		items[i] = pages.PageSummary{
			ID:            r.ID,
			ExternalID:    r.ExternalID,
			Name:          r.Name,
			Industry:      r.Industry,
			FollowerCount: r.FollowerCount,
		}
	}
	return total, items, nil
}

func (store *Store) ListPostsForPage(ctx context.Context, pageID int64, limit int) ([]pages.Post, error) {
	rows, err := store.ListPagePosts(ctx, ListPagePostsParams{PageID: pageID, Limit: int32(limit)})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	out := make([]pages.Post, len(rows))
	for i, r := range rows {
		out[i] = pages.Post{
			ID:           r.ID,
			PageID:       r.PageID,
			ExternalID:   r.ExternalID,
			ContentText:  r.ContentText,
			MediaURL:     r.MediaUrl,
			LikeCount:    r.LikeCount,
			CommentCount: r.CommentCount,
			ShareCount:   r.ShareCount,
		}
		if r.PostedAt != nil {
			t := r.PostedAt.UTC()
			out[i].PostedAt = &t
		}
	}
	return out, nil
}

func (store *Store) ListCommentsForPosts(ctx context.Context, postIDs []int64) (map[int64][]pages.Comment, error) {
	out := make(map[int64][]pages.Comment, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	rows, err := store.ListPostComments(ctx, postIDs)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	for _, r := range rows {
		out[r.Comment.PostID] = append(out[r.Comment.PostID], pages.Comment{
			ID:          r.Comment.ID,
			PostID:      r.Comment.PostID,
			Author:      toUser(r.User),
			ContentText: r.Comment.ContentText,
			LikeCount:   r.Comment.LikeCount,
		})
	}
	return out, nil
}

func (store *Store) ListFollowersForPage(ctx context.Context, pageID int64, limit int) ([]pages.User, error) {
	rows, err := store.ListPageFollowers(ctx, ListPageFollowersParams{PageID: pageID, Limit: int32(limit)})
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	out := make([]pages.User, len(rows))
	for i, r := range rows {
		out[i] = toUser(r)
	}
	return out, nil
}

func (store *Store) ListEmployeesForPage(ctx context.Context, pageID int64, limit int) ([]pages.Employment, error) {
	rows, err := store.ListPageEmployments(ctx, ListPageEmploymentsParams{PageID: pageID, Limit: int32(limit)})
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	out := make([]pages.Employment, len(rows))
	for i, r := range rows {
		out[i] = pages.Employment{
			ID:       r.Employment.ID,
			PageID:   r.Employment.PageID,
			User:     toUser(r.User),
			Title:    r.Employment.Title,
			Location: r.Employment.Location,
		}
	}
	return out, nil
}
