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
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// memStore is an in-memory Store. InTx works on a copy of the state and
// swaps it in on success, which gives the same all-or-nothing visibility as
// a database transaction.
type memStore struct {
	mu    sync.Mutex
	state memState

	findCalls      int
	conflictsLeft  int
	failListPosts  error
	failInTxAlways error
}

type memState struct {
	nextID    int64
	pages     map[string]*memPage
	users     map[string]User
	pageOrder []string
}

type memPage struct {
	page      Page
	posts     []Post
	followers []int64
	employees []Employment
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		pages: map[string]*memPage{},
		users: map[string]User{},
	}}
}

func (s memState) clone() memState {
	out := memState{
		nextID:    s.nextID,
		pages:     make(map[string]*memPage, len(s.pages)),
		users:     make(map[string]User, len(s.users)),
		pageOrder: slices.Clone(s.pageOrder),
	}
	for k, v := range s.pages {
		cp := *v
		cp.posts = slices.Clone(v.posts)
		cp.followers = slices.Clone(v.followers)
		cp.employees = slices.Clone(v.employees)
		out.pages[k] = &cp
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	return out
}

func (s *memStore) FindPage(_ context.Context, externalID string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	p, ok := s.state.pages[externalID]
	if !ok {
		return Page{}, ErrNotFound
	}
	return p.page, nil
}

func (s *memStore) InTx(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInTxAlways != nil {
		return s.failInTxAlways
	}
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return ErrConflict
	}
	staged := s.state.clone()
	if err := fn(&memTx{state: &staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *memStore) byID(pageID int64) *memPage {
	for _, p := range s.state.pages {
		if p.page.ID == pageID {
			return p
		}
	}
	return nil
}

func (s *memStore) SearchPages(_ context.Context, filter SearchFilter, offset int64, limit int) (int64, []PageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []PageSummary
	for _, id := range s.state.pageOrder {
		p := s.state.pages[id].page
		if filter.Industry != nil && p.Industry != *filter.Industry {
			continue
		}
		matched = append(matched, PageSummary{ID: p.ID, ExternalID: p.ExternalID, Name: p.Name, Industry: p.Industry, FollowerCount: p.FollowerCount})
	}
	start := int(min(offset, int64(len(matched))))
	end := min(start+limit, len(matched))
	return int64(len(matched)), matched[start:end], nil
}

func (s *memStore) ListPostsForPage(_ context.Context, pageID int64, limit int) ([]Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failListPosts != nil {
		return nil, s.failListPosts
	}
	p := s.byID(pageID)
	if p == nil {
		return nil, nil
	}
	posts := slices.Clone(p.posts)
	slices.SortStableFunc(posts, func(a, b Post) int {
		switch {
		case a.PostedAt == nil && b.PostedAt == nil:
			return 0
		case a.PostedAt == nil:
			return 1
		case b.PostedAt == nil:
			return -1
		}
		return b.PostedAt.Compare(*a.PostedAt)
	})
	for i := range posts {
		posts[i].Comments = nil
	}
	return posts[:min(limit, len(posts))], nil
}

func (s *memStore) ListCommentsForPosts(_ context.Context, postIDs []int64) (map[int64][]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64][]Comment{}
	for _, p := range s.state.pages {
		for _, post := range p.posts {
			if slices.Contains(postIDs, post.ID) && len(post.Comments) > 0 {
				out[post.ID] = slices.Clone(post.Comments)
			}
		}
	}
	return out, nil
}

func (s *memStore) ListFollowersForPage(_ context.Context, pageID int64, limit int) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byID(pageID)
	if p == nil {
		return nil, nil
	}
	var out []User
	for _, uid := range p.followers {
		for _, u := range s.state.users {
			if u.ID == uid {
				out = append(out, u)
			}
		}
	}
	return out[:min(limit, len(out))], nil
}

func (s *memStore) ListEmployeesForPage(_ context.Context, pageID int64, limit int) ([]Employment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byID(pageID)
	if p == nil {
		return nil, nil
	}
	return slices.Clone(p.employees[:min(limit, len(p.employees))]), nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

type memTx struct {
	state *memState
}

func (t *memTx) id() int64 {
	t.state.nextID++
	return t.state.nextID
}

func (t *memTx) UpsertPage(_ context.Context, snap PageSnapshot) (Page, error) {
	now := time.Now().UTC()
	existing, ok := t.state.pages[snap.ExternalID]
	page := Page{
		ExternalID:      snap.ExternalID,
		PlatformID:      snap.PlatformID,
		Name:            snap.Name,
		URL:             snap.URL,
		ProfileImageURL: snap.ProfileImageURL,
		Description:     snap.Description,
		Website:         snap.Website,
		Industry:        snap.Industry,
		FollowerCount:   snap.FollowerCount,
		Headcount:       snap.Headcount,
		Specialities:    NormalizeSpecialities(snap.Specialities),
		UpdatedAt:       now,
	}
	if ok {
		page.ID = existing.page.ID
		page.CreatedAt = existing.page.CreatedAt
		existing.page = page
		return page, nil
	}
	page.ID = t.id()
	page.CreatedAt = now
	t.state.pages[snap.ExternalID] = &memPage{page: page}
	t.state.pageOrder = append(t.state.pageOrder, snap.ExternalID)
	return page, nil
}

func (t *memTx) user(u UserSnapshot) User {
	existing, ok := t.state.users[u.ExternalID]
	id := existing.ID
	if !ok {
		id = t.id()
	}
	out := User{ID: id, ExternalID: u.ExternalID, Name: u.Name, Headline: u.Headline, ProfileURL: u.ProfileURL, ProfileImageURL: u.ProfileImageURL}
	t.state.users[u.ExternalID] = out
	return out
}

func (t *memTx) page(pageID int64) (*memPage, error) {
	for _, p := range t.state.pages {
		if p.page.ID == pageID {
			return p, nil
		}
	}
	return nil, errors.New("no such page id")
}

func (t *memTx) ReplacePosts(_ context.Context, pageID int64, posts []PostSnapshot) error {
	p, err := t.page(pageID)
	if err != nil {
		return err
	}
	p.posts = nil
	for _, ps := range posts {
		post := Post{
			ID: t.id(), PageID: pageID, ExternalID: ps.ExternalID, ContentText: ps.ContentText,
			MediaURL: ps.MediaURL, LikeCount: ps.LikeCount, CommentCount: ps.CommentCount,
			ShareCount: ps.ShareCount, PostedAt: ps.PostedAt,
		}
		for _, c := range ps.Comments {
			post.Comments = append(post.Comments, Comment{
				ID: t.id(), PostID: post.ID, Author: t.user(c.Author), ContentText: c.ContentText, LikeCount: c.LikeCount,
			})
		}
		p.posts = append(p.posts, post)
	}
	return nil
}

func (t *memTx) ReplaceFollowers(_ context.Context, pageID int64, followers []UserSnapshot) error {
	p, err := t.page(pageID)
	if err != nil {
		return err
	}
	p.followers = nil
	for _, f := range followers {
		u := t.user(f)
		if !slices.Contains(p.followers, u.ID) {
			p.followers = append(p.followers, u.ID)
		}
	}
	return nil
}

func (t *memTx) ReplaceEmployees(_ context.Context, pageID int64, employees []EmployeeSnapshot) error {
	p, err := t.page(pageID)
	if err != nil {
		return err
	}
	p.employees = nil
	for _, e := range employees {
		p.employees = append(p.employees, Employment{ID: t.id(), PageID: pageID, User: t.user(e.User), Title: e.Title, Location: e.Location})
	}
	return nil
}

// mapCache is a PayloadCache without expiry.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]PagePayload
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]PagePayload{}}
}

func (c *mapCache) Get(key string) (PagePayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[key]
	if !ok {
		return PagePayload{}, false
	}
	return p.Clone(), true
}

func (c *mapCache) Set(key string, payload PagePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = payload.Clone()
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}
