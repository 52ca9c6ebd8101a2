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
	"time"
)

const deletePagePosts = `-- name: DeletePagePosts :exec
DELETE FROM posts WHERE page_id = $1
`

func (q *Queries) DeletePagePosts(ctx context.Context, pageID int64) error {
	_, err := q.db.Exec(ctx, deletePagePosts, pageID)
	return err
}

const insertPost = `-- name: InsertPost :one
INSERT INTO posts (
  page_id, external_id, content_text, media_url,
  like_count, comment_count, share_count, posted_at
) VALUES (
  $1, $2, $3, $4, $5, $6, $7, $8
)
RETURNING id
`

type InsertPostParams struct {
	PageID       int64      `json:"page_id"`
	ExternalID   string     `json:"external_id"`
	ContentText  string     `json:"content_text"`
	MediaUrl     string     `json:"media_url"`
	LikeCount    int64      `json:"like_count"`
	CommentCount int64      `json:"comment_count"`
	ShareCount   int64      `json:"share_count"`
	PostedAt     *time.Time `json:"posted_at"`
}

func (q *Queries) InsertPost(ctx context.Context, arg InsertPostParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertPost,
		arg.PageID,
		arg.ExternalID,
		arg.ContentText,
		arg.MediaUrl,
		arg.LikeCount,
		arg.CommentCount,
		arg.ShareCount,
		arg.PostedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listPagePosts = `-- name: ListPagePosts :many
SELECT id, page_id, external_id, content_text, media_url,
       like_count, comment_count, share_count, posted_at
FROM posts
WHERE page_id = $1
ORDER BY posted_at DESC NULLS LAST, id
LIMIT $2
`

type ListPagePostsParams struct {
	PageID int64 `json:"page_id"`
	Limit  int32 `json:"limit"`
}

func (q *Queries) ListPagePosts(ctx context.Context, arg ListPagePostsParams) ([]Post, error) {
	rows, err := q.db.Query(ctx, listPagePosts, arg.PageID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Post
	for rows.Next() {
		var i Post
		if err := rows.Scan(
			&i.ID,
			&i.PageID,
			&i.ExternalID,
			&i.ContentText,
			&i.MediaUrl,
			&i.LikeCount,
			&i.CommentCount,
			&i.ShareCount,
			&i.PostedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertComment = `-- name: InsertComment :exec
INSERT INTO comments (post_id, user_id, content_text, like_count)
VALUES ($1, $2, $3, $4)
`

type InsertCommentParams struct {
	PostID      int64  `json:"post_id"`
	UserID      int64  `json:"user_id"`
	ContentText string `json:"content_text"`
	LikeCount   int64  `json:"like_count"`
}

func (q *Queries) InsertComment(ctx context.Context, arg InsertCommentParams) error {
	_, err := q.db.Exec(ctx, insertComment, arg.PostID, arg.UserID, arg.ContentText, arg.LikeCount)
	return err
}

const listPostComments = `-- name: ListPostComments :many
SELECT c.id, c.post_id, c.user_id, c.content_text, c.like_count,
       u.id, u.external_id, u.name, u.headline, u.profile_url, u.profile_image_url
FROM comments c
JOIN users u ON u.id = c.user_id
WHERE c.post_id = ANY($1::bigint[])
ORDER BY c.id
`

type ListPostCommentsRow struct {
	Comment Comment `json:"comment"`
	User    User    `json:"user"`
}

func (q *Queries) ListPostComments(ctx context.Context, postIds []int64) ([]ListPostCommentsRow, error) {
	rows, err := q.db.Query(ctx, listPostComments, postIds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListPostCommentsRow
	for rows.Next() {
		var i ListPostCommentsRow
		if err := rows.Scan(
			&i.Comment.ID,
			&i.Comment.PostID,
			&i.Comment.UserID,
			&i.Comment.ContentText,
			&i.Comment.LikeCount,
			&i.User.ID,
			&i.User.ExternalID,
			&i.User.Name,
			&i.User.Headline,
			&i.User.ProfileUrl,
			&i.User.ProfileImageUrl,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
