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

const pageColumns = `id, external_id, platform_id, name, url, profile_image_url, description, website, industry, follower_count, headcount, specialities, created_at, updated_at`

func scanPage(row interface{ Scan(...any) error }) (Page, error) {
	var i Page
	err := row.Scan(
		&i.ID,
		&i.ExternalID,
		&i.PlatformID,
		&i.Name,
		&i.Url,
		&i.ProfileImageUrl,
		&i.Description,
		&i.Website,
		&i.Industry,
		&i.FollowerCount,
		&i.Headcount,
		&i.Specialities,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getPage = `-- name: GetPage :one
SELECT ` + pageColumns + `
FROM pages
WHERE external_id = $1
`

func (q *Queries) GetPage(ctx context.Context, externalID string) (Page, error) {
	return scanPage(q.db.QueryRow(ctx, getPage, externalID))
}

const upsertPage = `-- name: UpsertPage :one
INSERT INTO pages (
  external_id, platform_id, name, url, profile_image_url, description,
  website, industry, follower_count, headcount, specialities
) VALUES (
  $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
ON CONFLICT (external_id) DO UPDATE SET
  platform_id       = EXCLUDED.platform_id,
  name              = EXCLUDED.name,
  url               = EXCLUDED.url,
  profile_image_url = EXCLUDED.profile_image_url,
  description       = EXCLUDED.description,
  website           = EXCLUDED.website,
  industry          = EXCLUDED.industry,
  follower_count    = EXCLUDED.follower_count,
  headcount         = EXCLUDED.headcount,
  specialities      = EXCLUDED.specialities,
  updated_at        = now()
RETURNING ` + pageColumns + `
`

type UpsertPageParams struct {
	ExternalID      string   `json:"external_id"`
	PlatformID      *string  `json:"platform_id"`
	Name            string   `json:"name"`
	Url             string   `json:"url"`
	ProfileImageUrl string   `json:"profile_image_url"`
	Description     string   `json:"description"`
	Website         string   `json:"website"`
	Industry        string   `json:"industry"`
	FollowerCount   int64    `json:"follower_count"`
	Headcount       int64    `json:"headcount"`
	Specialities    []string `json:"specialities"`
}

func (q *Queries) UpsertPage(ctx context.Context, arg UpsertPageParams) (Page, error) {
	row := q.db.QueryRow(ctx, upsertPage,
		arg.ExternalID,
		arg.PlatformID,
		arg.Name,
		arg.Url,
		arg.ProfileImageUrl,
		arg.Description,
		arg.Website,
		arg.Industry,
		arg.FollowerCount,
		arg.Headcount,
		arg.Specialities,
	)
	return scanPage(row)
}

const pageSearchWhere = `
WHERE ($1::text IS NULL OR name ILIKE '%' || $1::text || '%')
  AND ($2::text IS NULL OR industry = $2::text)
  AND ($3::bigint IS NULL OR follower_count >= $3::bigint)
  AND ($4::bigint IS NULL OR follower_count <= $4::bigint)
`

const countPages = `-- name: CountPages :one
SELECT count(*) FROM pages` + pageSearchWhere

type CountPagesParams struct {
	NamePattern  *string `json:"name_pattern"`
	Industry     *string `json:"industry"`
	FollowersMin *int64  `json:"followers_min"`
	FollowersMax *int64  `json:"followers_max"`
}

func (q *Queries) CountPages(ctx context.Context, arg CountPagesParams) (int64, error) {
	row := q.db.QueryRow(ctx, countPages,
		arg.NamePattern,
		arg.Industry,
		arg.FollowersMin,
		arg.FollowersMax,
	)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const searchPages = `-- name: SearchPages :many
SELECT id, external_id, name, industry, follower_count
FROM pages` + pageSearchWhere + `ORDER BY id
LIMIT $5 OFFSET $6
`

type SearchPagesParams struct {
	NamePattern  *string `json:"name_pattern"`
	Industry     *string `json:"industry"`
	FollowersMin *int64  `json:"followers_min"`
	FollowersMax *int64  `json:"followers_max"`
	Limit        int32   `json:"limit"`
	Offset       int64   `json:"offset"`
}

type SearchPagesRow struct {
	ID            int64  `json:"id"`
	ExternalID    string `json:"external_id"`
	Name          string `json:"name"`
	Industry      string `json:"industry"`
	FollowerCount int64  `json:"follower_count"`
}

func (q *Queries) SearchPages(ctx context.Context, arg SearchPagesParams) ([]SearchPagesRow, error) {
	rows, err := q.db.Query(ctx, searchPages,
		arg.NamePattern,
		arg.Industry,
		arg.FollowersMin,
		arg.FollowersMax,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SearchPagesRow
	for rows.Next() {
		var i SearchPagesRow
		if err := rows.Scan(
			&i.ID,
			&i.ExternalID,
			&i.Name,
			&i.Industry,
			&i.FollowerCount,
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
