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
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cardinalhq/pagekeeper/internal/idgen"
)

const (
	DefaultPostEmbedLimit = 100

	DefaultSearchLimit = 10
	MaxSearchLimit     = 100

	DefaultPostsLimit = 10
	MaxPostsLimit     = 50

	DefaultFollowersLimit = 20
	MaxFollowersLimit     = 100

	DefaultEmployeesLimit = 20
	MaxEmployeesLimit     = 100

	DefaultLoadTimeout = 30 * time.Second
)

// Service answers page reads and syncs by composing the payload cache, the
// store and the fetch capability.
type Service struct {
	store      Store
	cache      PayloadCache
	fetcher    Fetcher
	reconciler *Reconciler
	locks      *KeyedMutex
	flight     singleflight.Group

	postEmbedLimit int
	loadTimeout    time.Duration
}

type Option func(*Service)

// WithPostEmbedLimit bounds how many posts are embedded in a page payload.
func WithPostEmbedLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.postEmbedLimit = n
		}
	}
}

// WithLoadTimeout bounds a shared cache-miss load, which does not inherit
// any caller's deadline.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

func NewService(store Store, cache PayloadCache, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		store:          store,
		cache:          cache,
		fetcher:        fetcher,
		reconciler:     NewReconciler(store),
		locks:          NewKeyedMutex(),
		postEmbedLimit: DefaultPostEmbedLimit,
		loadTimeout:    DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPage serves from cache, then storage, then the fetch capability. Any
// payload built on a miss is cached before it is returned.
//
// Concurrent misses for one page share a single load. The load is detached
// from every caller's cancellation; a caller whose ctx ends stops waiting
// without failing the others.
func (s *Service) GetPage(ctx context.Context, externalID string) (PagePayload, error) {
	id, err := requireID(externalID)
	if err != nil {
		return PagePayload{}, err
	}

	if payload, ok := s.cache.Get(id); ok {
		recordCacheLookup(ctx, true)
		return payload, nil
	}
	recordCacheLookup(ctx, false)

	ch := s.flight.DoChan(id, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.loadPage(loadCtx, id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return PagePayload{}, res.Err
		}
		return res.Val.(PagePayload).Clone(), nil
	case <-ctx.Done():
		return PagePayload{}, ctx.Err()
	}
}

func (s *Service) loadPage(ctx context.Context, id string) (PagePayload, error) {
	page, err := s.findPageLocked(ctx, id)
	switch {
	case err == nil:
		return page, nil
	case !errors.Is(err, ErrNotFound):
		return PagePayload{}, err
	}

	snap, err := s.fetch(ctx, id)
	if err != nil {
		return PagePayload{}, err
	}
	return s.refresh(ctx, id, snap)
}

// findPageLocked assembles a stored page under the key lock so a concurrent
// sync cannot be overwritten in the cache by this older read.
func (s *Service) findPageLocked(ctx context.Context, id string) (PagePayload, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return PagePayload{}, err
	}
	defer unlock()

	if payload, ok := s.cache.Get(id); ok {
		return payload, nil
	}

	page, err := s.store.FindPage(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PagePayload{}, err
		}
		return PagePayload{}, fmt.Errorf("find page %s: %w", id, err)
	}

	payload, err := s.assemble(ctx, page)
	if err != nil {
		return PagePayload{}, err
	}
	s.cache.Set(id, payload)
	return payload, nil
}

// SyncPage fetches and reconciles unconditionally, replacing any cached
// payload for the page.
func (s *Service) SyncPage(ctx context.Context, externalID string) (PagePayload, error) {
	id, err := requireID(externalID)
	if err != nil {
		return PagePayload{}, err
	}

	syncID := idgen.NewOperationID()
	slog.Info("Syncing page", slog.String("externalID", id), slog.String("syncID", syncID))

	snap, err := s.fetch(ctx, id)
	if err != nil {
		slog.Error("Page sync failed", slog.String("externalID", id), slog.String("syncID", syncID), slog.Any("error", err))
		return PagePayload{}, err
	}
	payload, err := s.refresh(ctx, id, snap)
	if err != nil {
		slog.Error("Page sync failed", slog.String("externalID", id), slog.String("syncID", syncID), slog.Any("error", err))
		return PagePayload{}, err
	}

	slog.Info("Synced page",
		slog.String("externalID", id),
		slog.String("syncID", syncID),
		slog.Int("posts", len(payload.Posts)))
	return payload, nil
}

// refresh reconciles snap, assembles the stored result and caches it, all
// while holding the key lock.
func (s *Service) refresh(ctx context.Context, id string, snap Snapshot) (PagePayload, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return PagePayload{}, err
	}
	defer unlock()

	page, err := s.reconciler.Reconcile(ctx, snap)
	if err != nil {
		return PagePayload{}, err
	}

	payload, err := s.assemble(ctx, page)
	if err != nil {
		// storage changed but we could not read it back; drop the stale entry
		s.cache.Delete(id)
		return PagePayload{}, err
	}
	s.cache.Set(id, payload)
	return payload, nil
}

func (s *Service) fetch(ctx context.Context, id string) (Snapshot, error) {
	snap, err := s.fetcher.FetchSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordFetch(ctx, "not_found")
			return Snapshot{}, fmt.Errorf("fetch page %s: %w", id, err)
		}
		recordFetch(ctx, "error")
		return Snapshot{}, fmt.Errorf("%w: page %s: %w", ErrFetchFailed, id, err)
	}
	recordFetch(ctx, "ok")

	switch got := strings.TrimSpace(snap.Page.ExternalID); {
	case got == "":
		return Snapshot{}, fmt.Errorf("%w: fetched snapshot for %s has no page", ErrValidation, id)
	case got != id:
		return Snapshot{}, fmt.Errorf("%w: fetched snapshot for %s describes page %s", ErrValidation, id, got)
	}
	return snap, nil
}

func (s *Service) assemble(ctx context.Context, page Page) (PagePayload, error) {
	posts, err := s.store.ListPostsForPage(ctx, page.ID, s.postEmbedLimit)
	if err != nil {
		return PagePayload{}, fmt.Errorf("list posts for page %s: %w", page.ExternalID, err)
	}
	if len(posts) > 0 {
		ids := make([]int64, len(posts))
		for i, p := range posts {
			ids[i] = p.ID
		}
		comments, err := s.store.ListCommentsForPosts(ctx, ids)
		if err != nil {
			return PagePayload{}, fmt.Errorf("list comments for page %s: %w", page.ExternalID, err)
		}
		for i := range posts {
			posts[i].Comments = comments[posts[i].ID]
		}
	}
	if posts == nil {
		posts = []Post{}
	}
	if page.Specialities == nil {
		page.Specialities = []string{}
	}
	return PagePayload{Page: page, Posts: posts}, nil
}

// SearchPages clamps the requested page and limit, then queries storage.
func (s *Service) SearchPages(ctx context.Context, q SearchQuery) (SearchResult, error) {
	q.Page = max(q.Page, 1)
	q.Limit = clampLimit(q.Limit, DefaultSearchLimit, MaxSearchLimit)

	total, items, err := s.store.SearchPages(ctx, q.SearchFilter, searchOffset(q.Page, q.Limit), q.Limit)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search pages: %w", err)
	}
	if items == nil {
		items = []PageSummary{}
	}
	return SearchResult{Total: total, Page: q.Page, Limit: q.Limit, Items: items}, nil
}

// ListPosts returns the stored posts of a known page, newest first. It never
// fetches.
func (s *Service) ListPosts(ctx context.Context, externalID string, limit int) ([]Post, error) {
	page, err := s.storedPage(ctx, externalID)
	if err != nil {
		return nil, err
	}
	posts, err := s.store.ListPostsForPage(ctx, page.ID, clampLimit(limit, DefaultPostsLimit, MaxPostsLimit))
	if err != nil {
		return nil, fmt.Errorf("list posts for page %s: %w", page.ExternalID, err)
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

func (s *Service) ListFollowers(ctx context.Context, externalID string, limit int) ([]User, error) {
	page, err := s.storedPage(ctx, externalID)
	if err != nil {
		return nil, err
	}
	users, err := s.store.ListFollowersForPage(ctx, page.ID, clampLimit(limit, DefaultFollowersLimit, MaxFollowersLimit))
	if err != nil {
		return nil, fmt.Errorf("list followers for page %s: %w", page.ExternalID, err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

func (s *Service) ListEmployees(ctx context.Context, externalID string, limit int) ([]Employment, error) {
	page, err := s.storedPage(ctx, externalID)
	if err != nil {
		return nil, err
	}
	employees, err := s.store.ListEmployeesForPage(ctx, page.ID, clampLimit(limit, DefaultEmployeesLimit, MaxEmployeesLimit))
	if err != nil {
		return nil, fmt.Errorf("list employees for page %s: %w", page.ExternalID, err)
	}
	if employees == nil {
		employees = []Employment{}
	}
	return employees, nil
}

func (s *Service) storedPage(ctx context.Context, externalID string) (Page, error) {
	id, err := requireID(externalID)
	if err != nil {
		return Page{}, err
	}
	page, err := s.store.FindPage(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Page{}, fmt.Errorf("page %s: %w", id, err)
		}
		return Page{}, fmt.Errorf("find page %s: %w", id, err)
	}
	return page, nil
}

func requireID(externalID string) (string, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return "", fmt.Errorf("%w: page id is required", ErrValidation)
	}
	return id, nil
}

// searchOffset returns the row offset of page, saturating at math.MaxInt64
// so a huge page number reads past the end instead of wrapping.
func searchOffset(page, limit int) int64 {
	skip := int64(page - 1)
	if skip <= 0 {
		return 0
	}
	if skip > math.MaxInt64/int64(limit) {
		return math.MaxInt64
	}
	return skip * int64(limit)
}

func clampLimit(limit, def, upper int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, upper)
}
