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

package pages

import (
	"slices"
	"time"
)

// Page is a stored organization page. ID is the surrogate row id; ExternalID
// is the natural key used for upserts and cache keys.
type Page struct {
	ID              int64     `json:"id"`
	ExternalID      string    `json:"external_id"`
	PlatformID      *string   `json:"platform_id,omitempty"`
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	Description     string    `json:"description,omitempty"`
	Website         string    `json:"website,omitempty"`
	Industry        string    `json:"industry,omitempty"`
	FollowerCount   int64     `json:"follower_count"`
	Headcount       int64     `json:"headcount"`
	Specialities    []string  `json:"specialities"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Post is owned by exactly one page and is replaced wholesale on every sync.
type Post struct {
	ID           int64      `json:"id"`
	PageID       int64      `json:"page_id"`
	ExternalID   string     `json:"external_id"`
	ContentText  string     `json:"content_text,omitempty"`
	MediaURL     string     `json:"media_url,omitempty"`
	LikeCount    int64      `json:"like_count"`
	CommentCount int64      `json:"comment_count"`
	ShareCount   int64      `json:"share_count"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	Comments     []Comment  `json:"comments,omitempty"`
}

// User is a follower, employee or comment author. Users outlive the pages
// that reference them.
type User struct {
	ID              int64  `json:"id"`
	ExternalID      string `json:"external_id"`
	Name            string `json:"name"`
	Headline        string `json:"headline,omitempty"`
	ProfileURL      string `json:"profile_url,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

type Comment struct {
	ID          int64  `json:"id"`
	PostID      int64  `json:"post_id"`
	Author      User   `json:"author"`
	ContentText string `json:"content_text,omitempty"`
	LikeCount   int64  `json:"like_count"`
}

type Employment struct {
	ID       int64  `json:"id"`
	PageID   int64  `json:"page_id"`
	User     User   `json:"user"`
	Title    string `json:"title,omitempty"`
	Location string `json:"location,omitempty"`
}

// PageSummary is one row of a search result.
type PageSummary struct {
	ID            int64  `json:"id"`
	ExternalID    string `json:"external_id"`
	Name          string `json:"name"`
	Industry      string `json:"industry,omitempty"`
	FollowerCount int64  `json:"follower_count"`
}

// PagePayload is the assembled response for a page: the page itself plus its
// posts, newest first. It is the unit stored in the read-through cache.
type PagePayload struct {
	Page
	Posts []Post `json:"posts"`
}

// Clone returns a deep copy so cached payloads never share slices with callers.
func (p PagePayload) Clone() PagePayload {
	out := p
	if p.PlatformID != nil {
		v := *p.PlatformID
		out.PlatformID = &v
	}
	out.Specialities = slices.Clone(p.Specialities)
	if p.Posts != nil {
		out.Posts = make([]Post, len(p.Posts))
		for i, post := range p.Posts {
			if post.PostedAt != nil {
				t := *post.PostedAt
				post.PostedAt = &t
			}
			post.Comments = slices.Clone(post.Comments)
			out.Posts[i] = post
		}
	}
	return out
}

// SearchFilter holds the independently optional search predicates.
// A nil field does not constrain the result.
type SearchFilter struct {
	Name         *string
	Industry     *string
	FollowersMin *int64
	FollowersMax *int64
}

// SearchQuery is a caller request for a page of search results. Page and
// Limit are clamped by the service before reaching the store.
type SearchQuery struct {
	SearchFilter
	Page  int
	Limit int
}

type SearchResult struct {
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Items []PageSummary `json:"items"`
}
