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
)

const upsertUser = `-- name: UpsertUser :one
INSERT INTO users (external_id, name, headline, profile_url, profile_image_url)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (external_id) DO UPDATE SET
  name              = EXCLUDED.name,
  headline          = EXCLUDED.headline,
  profile_url       = EXCLUDED.profile_url,
  profile_image_url = EXCLUDED.profile_image_url
RETURNING id
`

type UpsertUserParams struct {
	ExternalID      string `json:"external_id"`
	Name            string `json:"name"`
	Headline        string `json:"headline"`
	ProfileUrl      string `json:"profile_url"`
	ProfileImageUrl string `json:"profile_image_url"`
}

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (int64, error) {
	row := q.db.QueryRow(ctx, upsertUser,
		arg.ExternalID,
		arg.Name,
		arg.Headline,
		arg.ProfileUrl,
		arg.ProfileImageUrl,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const deletePageFollowers = `-- name: DeletePageFollowers :exec
DELETE FROM page_followers WHERE page_id = $1
`

func (q *Queries) DeletePageFollowers(ctx context.Context, pageID int64) error {
	_, err := q.db.Exec(ctx, deletePageFollowers, pageID)
	return err
}

const insertPageFollower = `-- name: InsertPageFollower :exec
INSERT INTO page_followers (page_id, user_id)
VALUES ($1, $2)
ON CONFLICT (page_id, user_id) DO NOTHING
`

type InsertPageFollowerParams struct {
	PageID int64 `json:"page_id"`
	UserID int64 `json:"user_id"`
}

func (q *Queries) InsertPageFollower(ctx context.Context, arg InsertPageFollowerParams) error {
	_, err := q.db.Exec(ctx, insertPageFollower, arg.PageID, arg.UserID)
	return err
}

const listPageFollowers = `-- name: ListPageFollowers :many
SELECT u.id, u.external_id, u.name, u.headline, u.profile_url, u.profile_image_url
FROM page_followers pf
JOIN users u ON u.id = pf.user_id
WHERE pf.page_id = $1
ORDER BY pf.id
LIMIT $2
`

type ListPageFollowersParams struct {
	PageID int64 `json:"page_id"`
	Limit  int32 `json:"limit"`
}

func (q *Queries) ListPageFollowers(ctx context.Context, arg ListPageFollowersParams) ([]User, error) {
	rows, err := q.db.Query(ctx, listPageFollowers, arg.PageID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(
			&i.ID,
			&i.ExternalID,
			&i.Name,
			&i.Headline,
			&i.ProfileUrl,
			&i.ProfileImageUrl,
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

const deletePageEmployments = `-- name: DeletePageEmployments :exec
DELETE FROM employments WHERE page_id = $1
`

func (q *Queries) DeletePageEmployments(ctx context.Context, pageID int64) error {
	_, err := q.db.Exec(ctx, deletePageEmployments, pageID)
	return err
}

const insertEmployment = `-- name: InsertEmployment :exec
INSERT INTO employments (page_id, user_id, title, location)
VALUES ($1, $2, $3, $4)
`

type InsertEmploymentParams struct {
	PageID   int64  `json:"page_id"`
	UserID   int64  `json:"user_id"`
	Title    string `json:"title"`
	Location string `json:"location"`
}

func (q *Queries) InsertEmployment(ctx context.Context, arg InsertEmploymentParams) error {
	_, err := q.db.Exec(ctx, insertEmployment, arg.PageID, arg.UserID, arg.Title, arg.Location)
	return err
}

const listPageEmployments = `-- name: ListPageEmployments :many
SELECT e.id, e.page_id, e.user_id, e.title, e.location,
       u.id, u.external_id, u.name, u.headline, u.profile_url, u.profile_image_url
FROM employments e
JOIN users u ON u.id = e.user_id
WHERE e.page_id = $1
ORDER BY e.id
LIMIT $2
`

type ListPageEmploymentsParams struct {
	PageID int64 `json:"page_id"`
	Limit  int32 `json:"limit"`
}

type ListPageEmploymentsRow struct {
	Employment Employment `json:"employment"`
	User       User       `json:"user"`
}

func (q *Queries) ListPageEmployments(ctx context.Context, arg ListPageEmploymentsParams) ([]ListPageEmploymentsRow, error) {
	rows, err := q.db.Query(ctx, listPageEmployments, arg.PageID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListPageEmploymentsRow
	for rows.Next() {
		var i ListPageEmploymentsRow
		if err := rows.Scan(
			&i.Employment.ID,
			&i.Employment.PageID,
			&i.Employment.UserID,
			&i.Employment.Title,
			&i.Employment.Location,
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
