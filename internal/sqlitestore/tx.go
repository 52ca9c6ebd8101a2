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

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

type storeTx struct {
	tx  *sql.Tx
	now func() time.Time
}

var _ pages.Tx = (*storeTx)(nil)

func (t *storeTx) UpsertPage(ctx context.Context, page pages.PageSnapshot) (pages.Page, error) {
	specialities, err := json.Marshal(pages.NormalizeSpecialities(page.Specialities))
	if err != nil {
		return pages.Page{}, fmt.Errorf("encode specialities: %w", err)
	}
	var platformID sql.NullString
	if page.PlatformID != nil {
		platformID = sql.NullString{String: *page.PlatformID, Valid: true}
	}
	now := toMillis(t.now())

	row := t.tx.QueryRowContext(ctx,
		`INSERT INTO pages (
		    external_id, platform_id, name, url, profile_image_url,
		    description, website, industry, follower_count, headcount,
		    specialities, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET
		    platform_id       = excluded.platform_id,
		    name              = excluded.name,
		    url               = excluded.url,
		    profile_image_url = excluded.profile_image_url,
		    description       = excluded.description,
		    website           = excluded.website,
		    industry          = excluded.industry,
		    follower_count    = excluded.follower_count,
		    headcount         = excluded.headcount,
		    specialities      = excluded.specialities,
		    updated_at        = excluded.updated_at
		 RETURNING `+pageColumns,
		page.ExternalID,
		platformID,
		page.Name,
		page.URL,
		page.ProfileImageURL,
		page.Description,
		page.Website,
		page.Industry,
		page.FollowerCount,
		page.Headcount,
		string(specialities),
		now,
		now,
	)
	p, err := scanPage(row)
	if err != nil {
		return pages.Page{}, err
	}
	return p, nil
}

// resolveUsers upserts users in external id order and returns their row ids.
func (t *storeTx) resolveUsers(ctx context.Context, users []pages.UserSnapshot) (map[string]int64, error) {
	unique := pages.UniqueUsers(users)
	ids := make(map[string]int64, len(unique))
	for _, u := range unique {
		var id int64
		err := t.tx.QueryRowContext(ctx,
			`INSERT INTO users (external_id, name, headline, profile_url, profile_image_url)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (external_id) DO UPDATE SET
			    name              = excluded.name,
			    headline          = excluded.headline,
			    profile_url       = excluded.profile_url,
			    profile_image_url = excluded.profile_image_url
			 RETURNING id`,
			u.ExternalID, u.Name, u.Headline, u.ProfileURL, u.ProfileImageURL,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("upsert user %s: %w", u.ExternalID, err)
		}
		ids[u.ExternalID] = id
	}
	return ids, nil
}

func (t *storeTx) ReplacePosts(ctx context.Context, pageID int64, posts []pages.PostSnapshot) error {
	authors, err := t.resolveUsers(ctx, pages.CommentAuthors(posts))
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM posts WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("delete posts: %w", err)
	}

	for _, post := range posts {
		var postedAt sql.NullInt64
		if post.PostedAt != nil {
			postedAt = sql.NullInt64{Int64: toMicros(*post.PostedAt), Valid: true}
		}
		var postID int64
		err := t.tx.QueryRowContext(ctx,
			`INSERT INTO posts (
			    page_id, external_id, content_text, media_url,
			    like_count, comment_count, share_count, posted_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 RETURNING id`,
			pageID, post.ExternalID, post.ContentText, post.MediaURL,
			post.LikeCount, post.CommentCount, post.ShareCount, postedAt,
		).Scan(&postID)
		if err != nil {
			return fmt.Errorf("insert post %s: %w", post.ExternalID, err)
		}

		for _, c := range post.Comments {
			if _, err := t.tx.ExecContext(ctx,
				`INSERT INTO comments (post_id, user_id, content_text, like_count)
				 VALUES (?, ?, ?, ?)`,
				postID, authors[c.Author.ExternalID], c.ContentText, c.LikeCount,
			); err != nil {
				return fmt.Errorf("insert comment on post %s: %w", post.ExternalID, err)
			}
		}
	}
	return nil
}

func (t *storeTx) ReplaceFollowers(ctx context.Context, pageID int64, followers []pages.UserSnapshot) error {
	ids, err := t.resolveUsers(ctx, followers)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM page_followers WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("delete followers: %w", err)
	}
	for _, u := range followers {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO page_followers (page_id, user_id)
			 VALUES (?, ?)
			 ON CONFLICT (page_id, user_id) DO NOTHING`,
			pageID, ids[u.ExternalID],
		); err != nil {
			return fmt.Errorf("insert follower %s: %w", u.ExternalID, err)
		}
	}
	return nil
}

func (t *storeTx) ReplaceEmployees(ctx context.Context, pageID int64, employees []pages.EmployeeSnapshot) error {
	ids, err := t.resolveUsers(ctx, pages.EmployeeUsers(employees))
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM employments WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("delete employees: %w", err)
	}
	for _, e := range employees {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO employments (page_id, user_id, title, location)
			 VALUES (?, ?, ?, ?)`,
			pageID, ids[e.User.ExternalID], e.Title, e.Location,
		); err != nil {
			return fmt.Errorf("insert employee %s: %w", e.User.ExternalID, err)
		}
	}
	return nil
}
