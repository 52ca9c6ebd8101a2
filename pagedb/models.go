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
	"time"
)

type Page struct {
	ID              int64     `json:"id"`
	ExternalID      string    `json:"external_id"`
	PlatformID      *string   `json:"platform_id"`
	Name            string    `json:"name"`
	Url             string    `json:"url"`
	ProfileImageUrl string    `json:"profile_image_url"`
	Description     string    `json:"description"`
	Website         string    `json:"website"`
	Industry        string    `json:"industry"`
	FollowerCount   int64     `json:"follower_count"`
	Headcount       int64     `json:"headcount"`
	Specialities    []string  `json:"specialities"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Post struct {
	ID           int64      `json:"id"`
	PageID       int64      `json:"page_id"`
	ExternalID   string     `json:"external_id"`
	ContentText  string     `json:"content_text"`
	MediaUrl     string     `json:"media_url"`
	LikeCount    int64      `json:"like_count"`
	CommentCount int64      `json:"comment_count"`
	ShareCount   int64      `json:"share_count"`
	PostedAt     *time.Time `json:"posted_at"`
}

type User struct {
	ID              int64  `json:"id"`
	ExternalID      string `json:"external_id"`
	Name            string `json:"name"`
	Headline        string `json:"headline"`
	ProfileUrl      string `json:"profile_url"`
	ProfileImageUrl string `json:"profile_image_url"`
}

type Comment struct {
	ID          int64  `json:"id"`
	PostID      int64  `json:"post_id"`
	UserID      int64  `json:"user_id"`
	ContentText string `json:"content_text"`
	LikeCount   int64  `json:"like_count"`
}

type Employment struct {
	ID       int64  `json:"id"`
	PageID   int64  `json:"page_id"`
	UserID   int64  `json:"user_id"`
	Title    string `json:"title"`
	Location string `json:"location"`
}
