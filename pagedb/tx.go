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

package pagedb

import (
	"context"
	"fmt"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

type storeTx struct {
	q *Queries
}

var _ pages.Tx = (*storeTx)(nil)

func (t *storeTx) UpsertPage(ctx context.Context, page pages.PageSnapshot) (pages.Page, error) {
	p, err := t.q.UpsertPage(ctx, UpsertPageParams{
		ExternalID:      page.ExternalID,
		PlatformID:      page.PlatformID,
		Name:            page.Name,
		Url:             page.URL,
		ProfileImageUrl: page.ProfileImageURL,
		Description:     page.Description,
		Website:         page.Website,
		Industry:        page.Industry,
		FollowerCount:   page.FollowerCount,
		Headcount:       page.Headcount,
		Specialities:    pages.NormalizeSpecialities(page.Specialities),
	})
	if err != nil {
		return pages.Page{}, err
	}
	return toPage(p), nil
}

// resolveUsers upserts users in external id order so concurrent
// transactions lock user rows in the same sequence.
func (t *storeTx) resolveUsers(ctx context.Context, users []pages.UserSnapshot) (map[string]int64, error) {
	unique := pages.UniqueUsers(users)
	ids := make(map[string]int64, len(unique))
	for _, u := range unique {
		id, err := t.q.UpsertUser(ctx, UpsertUserParams{
			ExternalID:      u.ExternalID,
			Name:            u.Name,
			Headline:        u.Headline,
			ProfileUrl:      u.ProfileURL,
			ProfileImageUrl: u.ProfileImageURL,
		})
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
	if err := t.q.DeletePagePosts(ctx, pageID); err != nil {
		return fmt.Errorf("delete posts: %w", err)
	}
	for _, post := range posts {
		postID, err := t.q.InsertPost(ctx, InsertPostParams{
			PageID:       pageID,
			ExternalID:   post.ExternalID,
			ContentText:  post.ContentText,
			MediaUrl:     post.MediaURL,
			LikeCount:    post.LikeCount,
			CommentCount: post.CommentCount,
			ShareCount:   post.ShareCount,
			PostedAt:     post.PostedAt,
		})
		if err != nil {
			return fmt.Errorf("insert post %s: %w", post.ExternalID, err)
		}
		for _, c := range post.Comments {
			if err := t.q.InsertComment(ctx, InsertCommentParams{
				PostID:      postID,
				UserID:      authors[c.Author.ExternalID],
				ContentText: c.ContentText,
				LikeCount:   c.LikeCount,
			}); err != nil {
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
	if err := t.q.DeletePageFollowers(ctx, pageID); err != nil {
		return fmt.Errorf("delete followers: %w", err)
	}
	for _, u := range followers {
		if err := t.q.InsertPageFollower(ctx, InsertPageFollowerParams{
			PageID: pageID,
			UserID: ids[u.ExternalID],
		}); err != nil {
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
	if err := t.q.DeletePageEmployments(ctx, pageID); err != nil {
		return fmt.Errorf("delete employees: %w", err)
	}
	for _, e := range employees {
		if err := t.q.InsertEmployment(ctx, InsertEmploymentParams{
			PageID:   pageID,
			UserID:   ids[e.User.ExternalID],
			Title:    e.Title,
			Location: e.Location,
		}); err != nil {
			return fmt.Errorf("insert employee %s: %w", e.User.ExternalID, err)
		}
	}
	return nil
}
