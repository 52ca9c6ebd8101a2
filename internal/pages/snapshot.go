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
	"fmt"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
)

// Snapshot is one point-in-time bundle of a page, its posts, its followers
// and its employees as returned by a Fetcher.
type Snapshot struct {
	Page      PageSnapshot       `json:"page"`
	Posts     []PostSnapshot     `json:"posts"`
	Followers []UserSnapshot     `json:"followers"`
	Employees []EmployeeSnapshot `json:"employees"`
}

type PageSnapshot struct {
	ExternalID      string   `json:"external_id"`
	PlatformID      *string  `json:"platform_id,omitempty"`
	Name            string   `json:"name"`
	URL             string   `json:"url"`
	ProfileImageURL string   `json:"profile_image_url,omitempty"`
	Description     string   `json:"description,omitempty"`
	Website         string   `json:"website,omitempty"`
	Industry        string   `json:"industry,omitempty"`
	FollowerCount   int64    `json:"follower_count"`
	Headcount       int64    `json:"headcount"`
	Specialities    []string `json:"specialities,omitempty"`
}

type PostSnapshot struct {
	ExternalID   string            `json:"external_id"`
	ContentText  string            `json:"content_text,omitempty"`
	MediaURL     string            `json:"media_url,omitempty"`
	LikeCount    int64             `json:"like_count"`
	CommentCount int64             `json:"comment_count"`
	ShareCount   int64             `json:"share_count"`
	PostedAt     *time.Time        `json:"posted_at,omitempty"`
	Comments     []CommentSnapshot `json:"comments,omitempty"`
}

type CommentSnapshot struct {
	Author      UserSnapshot `json:"author"`
	ContentText string       `json:"content_text,omitempty"`
	LikeCount   int64        `json:"like_count"`
}

type UserSnapshot struct {
	ExternalID      string `json:"external_id"`
	Name            string `json:"name"`
	Headline        string `json:"headline,omitempty"`
	ProfileURL      string `json:"profile_url,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

type EmployeeSnapshot struct {
	User     UserSnapshot `json:"user"`
	Title    string       `json:"title,omitempty"`
	Location string       `json:"location,omitempty"`
}

// Normalize returns a copy with identifiers trimmed and specialities reduced
// to a sorted set. The receiver is not modified.
func (s Snapshot) Normalize() Snapshot {
	out := s
	out.Page.ExternalID = strings.TrimSpace(s.Page.ExternalID)
	out.Page.Name = strings.TrimSpace(s.Page.Name)
	out.Page.URL = strings.TrimSpace(s.Page.URL)
	out.Page.Specialities = NormalizeSpecialities(s.Page.Specialities)

	out.Posts = make([]PostSnapshot, len(s.Posts))
	for i, p := range s.Posts {
		p.ExternalID = strings.TrimSpace(p.ExternalID)
		comments := make([]CommentSnapshot, len(p.Comments))
		for j, c := range p.Comments {
			c.Author = c.Author.normalize()
			comments[j] = c
		}
		p.Comments = comments
		out.Posts[i] = p
	}

	out.Followers = make([]UserSnapshot, len(s.Followers))
	for i, u := range s.Followers {
		out.Followers[i] = u.normalize()
	}

	out.Employees = make([]EmployeeSnapshot, len(s.Employees))
	for i, e := range s.Employees {
		e.User = e.User.normalize()
		out.Employees[i] = e
	}
	return out
}

func (u UserSnapshot) normalize() UserSnapshot {
	u.ExternalID = strings.TrimSpace(u.ExternalID)
	u.Name = strings.TrimSpace(u.Name)
	return u
}

// NormalizeSpecialities de-duplicates, trims and sorts a specialities list.
// Empty entries are dropped. The result is never nil.
func NormalizeSpecialities(in []string) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			set.Add(s)
		}
	}
	out := set.ToSlice()
	slices.Sort(out)
	return out
}

// Validate reports every structural problem in the snapshot. The returned
// error wraps ErrValidation.
func (s Snapshot) Validate() error {
	var errs *multierror.Error

	p := s.Page
	if p.ExternalID == "" {
		errs = multierror.Append(errs, fmt.Errorf("page: external_id is required"))
	}
	if p.Name == "" {
		errs = multierror.Append(errs, fmt.Errorf("page: name is required"))
	}
	if p.URL == "" {
		errs = multierror.Append(errs, fmt.Errorf("page: url is required"))
	}
	if p.FollowerCount < 0 {
		errs = multierror.Append(errs, fmt.Errorf("page: follower_count must not be negative"))
	}
	if p.Headcount < 0 {
		errs = multierror.Append(errs, fmt.Errorf("page: headcount must not be negative"))
	}

	seenPosts := make(map[string]struct{}, len(s.Posts))
	for i, post := range s.Posts {
		if post.ExternalID == "" {
			errs = multierror.Append(errs, fmt.Errorf("posts[%d]: external_id is required", i))
		} else if _, dup := seenPosts[post.ExternalID]; dup {
			errs = multierror.Append(errs, fmt.Errorf("posts[%d]: duplicate external_id %q", i, post.ExternalID))
		} else {
			seenPosts[post.ExternalID] = struct{}{}
		}
		if post.LikeCount < 0 || post.CommentCount < 0 || post.ShareCount < 0 {
			errs = multierror.Append(errs, fmt.Errorf("posts[%d]: counts must not be negative", i))
		}
		for j, c := range post.Comments {
			if err := c.Author.validate(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("posts[%d].comments[%d].author: %w", i, j, err))
			}
		}
	}

	for i, u := range s.Followers {
		if err := u.validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("followers[%d]: %w", i, err))
		}
	}
	for i, e := range s.Employees {
		if err := e.User.validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("employees[%d].user: %w", i, err))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func (u UserSnapshot) validate() error {
	switch {
	case u.ExternalID == "":
		return fmt.Errorf("external_id is required")
	case u.Name == "":
		return fmt.Errorf("name is required")
	}
	return nil
}

// UniqueUsers merges the given lists, keeping the first occurrence of each
// external id, and returns them sorted by external id. Stores resolve users
// in this order so concurrent reconciliations lock user rows consistently.
func UniqueUsers(lists ...[]UserSnapshot) []UserSnapshot {
	seen := make(map[string]struct{})
	var out []UserSnapshot
	for _, list := range lists {
		for _, u := range list {
			if _, ok := seen[u.ExternalID]; ok {
				continue
			}
			seen[u.ExternalID] = struct{}{}
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b UserSnapshot) int {
		return strings.Compare(a.ExternalID, b.ExternalID)
	})
	return out
}

// CommentAuthors returns every comment author across posts, in post order.
func CommentAuthors(posts []PostSnapshot) []UserSnapshot {
	var out []UserSnapshot
	for _, p := range posts {
		for _, c := range p.Comments {
			out = append(out, c.Author)
		}
	}
	return out
}

// EmployeeUsers returns the user of every employee entry, in order.
func EmployeeUsers(employees []EmployeeSnapshot) []UserSnapshot {
	out := make([]UserSnapshot, len(employees))
	for i, e := range employees {
		out[i] = e.User
	}
	return out
}
