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
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchSnapshot(ctx context.Context, externalID string) (Snapshot, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(Snapshot), args.Error(1)
}

func ptrTo[T any](v T) *T { return &v }

func testSnapshot(id string) Snapshot {
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		Page: PageSnapshot{ExternalID: id, Name: "Page " + id, URL: "https://example.com/" + id, Industry: "Software"},
		Posts: []PostSnapshot{
			{ExternalID: "old", PostedAt: ptrTo(t0)},
			{ExternalID: "new", PostedAt: ptrTo(t0.Add(time.Hour)), Comments: []CommentSnapshot{
				{Author: UserSnapshot{ExternalID: "c1", Name: "Commenter"}, ContentText: "first"},
			}},
		},
		Followers: []UserSnapshot{{ExternalID: "f1", Name: "Fay"}, {ExternalID: "f2", Name: "Gus"}},
		Employees: []EmployeeSnapshot{{User: UserSnapshot{ExternalID: "e1", Name: "Eli"}, Title: "CEO"}},
	}
}

func newTestService(store Store, fetcher Fetcher) (*Service, *mapCache) {
	cache := newMapCache()
	return NewService(store, cache, fetcher), cache
}

func TestGetPageMissFetchesAndCaches(t *testing.T) {
	store := newMemStore()
	fetcher := &mockFetcher{}
	fetcher.On("FetchSnapshot", mock.Anything, "acme").Return(testSnapshot("acme"), nil).Once()
	svc, cache := newTestService(store, fetcher)
	ctx := context.Background()

	payload, err := svc.GetPage(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", payload.ExternalID)
	require.Len(t, payload.Posts, 2)
	assert.Equal(t, "new", payload.Posts[0].ExternalID)
	require.Len(t, payload.Posts[0].Comments, 1)
	assert.Equal(t, "Commenter", payload.Posts[0].Comments[0].Author.Name)
	assert.True(t, cache.has("acme"))

	again, err := svc.GetPage(ctx, "  acme ")
	require.NoError(t, err)
	assert.Equal(t, payload, again)
	fetcher.AssertExpectations(t)
	assert.Equal(t, 1, store.findCalls)
}

func TestGetPageStoreHitDoesNotFetch(t *testing.T) {
	store := newMemStore()
	_, err := NewReconciler(store).Reconcile(context.Background(), testSnapshot("acme"))
	require.NoError(t, err)

	fetcher := &mockFetcher{}
	svc, cache := newTestService(store, fetcher)

	payload, err := svc.GetPage(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "Page acme", payload.Name)
	assert.True(t, cache.has("acme"))
	fetcher.AssertNotCalled(t, "FetchSnapshot", mock.Anything, mock.Anything)
}

func TestGetPageUpstreamNotFound(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchSnapshot", mock.Anything, "ghost").Return(Snapshot{}, ErrNotFound)
	svc, cache := newTestService(newMemStore(), fetcher)

	_, err := svc.GetPage(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrFetchFailed)
	assert.False(t, cache.has("ghost"))
}

func TestGetPageFetchFailure(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchSnapshot", mock.Anything, "acme").Return(Snapshot{}, errors.New("connection refused"))
	store := newMemStore()
	svc, cache := newTestService(store, fetcher)

	_, err := svc.GetPage(context.Background(), "acme")
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.False(t, cache.has("acme"))
	assert.Empty(t, store.state.pages)
}

func TestFetchedSnapshotMustMatchID(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchSnapshot", mock.Anything, "acme").Return(testSnapshot("globex"), nil)
	fetcher.On("FetchSnapshot", mock.Anything, "blank").Return(Snapshot{}, nil)
	store := newMemStore()
	svc, _ := newTestService(store, fetcher)

	_, err := svc.SyncPage(context.Background(), "acme")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.SyncPage(context.Background(), "blank")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, store.state.pages)
}

func TestInvalidSnapshotLeavesStorageUntouched(t *testing.T) {
	store := newMemStore()
	_, err := NewReconciler(store).Reconcile(context.Background(), testSnapshot("acme"))
	require.NoError(t, err)

	bad := testSnapshot("acme")
	bad.Page.Name = ""
	bad.Posts = nil
	fetcher := &mockFetcher{}
	fetcher.On("FetchSnapshot", mock.Anything, "acme").Return(bad, nil)
	svc, _ := newTestService(store, fetcher)

	_, err = svc.SyncPage(context.Background(), "acme")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Page acme", store.state.pages["acme"].page.Name)
	assert.Len(t, store.state.pages["acme"].posts, 2)
}

func TestSyncPageReplacesCachedPayload(t *testing.T) {
	store := newMemStore()
	first := testSnapshot("acme")
	second := testSnapshot("acme")
	second.Page.Name = "Acme Renamed"
	second.Posts = second.Posts[:1]

	fetcher := &mockFetcher{}
	fetcher.On("FetchSnapshot", mock.Anything, "acme").Return(first, nil).Once()
	fetcher.On("FetchSnapshot", mock.Anything, "acme").Return(second, nil).Once()
	svc, _ := newTestService(store, fetcher)
	ctx := context.Background()

	_, err := svc.GetPage(ctx, "acme")
	require.NoError(t, err)

	synced, err := svc.SyncPage(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", synced.Name)
	assert.Len(t, synced.Posts, 1)

	cached, err := svc.GetPage(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, synced, cached)
	fetcher.AssertExpectations(t)
}

func TestReconcileRetriesConflictOnce(t *testing.T) {
	store := newMemStore()
	store.conflictsLeft = 1
	page, err := NewReconciler(store).Reconcile(context.Background(), testSnapshot("acme"))
	require.NoError(t, err)
	assert.Equal(t, "acme", page.ExternalID)

	store.conflictsLeft = 2
	_, err = NewReconciler(store).Reconcile(context.Background(), testSnapshot("acme"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store)
	first, err := r.Reconcile(context.Background(), testSnapshot("acme"))
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), testSnapshot("acme"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Len(t, store.state.pages, 1)
	assert.Len(t, store.state.pages["acme"].posts, 2)
	assert.Len(t, store.state.pages["acme"].followers, 2)
	assert.Len(t, store.state.users, 4)
}

func TestReconcileStoreErrorIsWrapped(t *testing.T) {
	store := newMemStore()
	store.failInTxAlways = errors.New("disk full")
	_, err := NewReconciler(store).Reconcile(context.Background(), testSnapshot("acme"))
	assert.ErrorContains(t, err, "reconcile page acme")
	assert.ErrorIs(t, err, store.failInTxAlways)
}

func TestAssemblyFailureDropsCacheEntry(t *testing.T) {
	store := newMemStore()
	fetcher := &mockFetcher{}
	fetcher.On("FetchSnapshot", mock.Anything, "acme").Return(testSnapshot("acme"), nil)
	svc, cache := newTestService(store, fetcher)
	ctx := context.Background()

	_, err := svc.GetPage(ctx, "acme")
	require.NoError(t, err)
	require.True(t, cache.has("acme"))

	store.failListPosts = errors.New("read failed")
	_, err = svc.SyncPage(ctx, "acme")
	assert.Error(t, err)
	assert.False(t, cache.has("acme"))
}

type blockingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
}

func (f *blockingFetcher) FetchSnapshot(ctx context.Context, id string) (Snapshot, error) {
	f.calls.Add(1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	return testSnapshot(id), nil
}

func TestConcurrentMissesFetchOnce(t *testing.T) {
	fetcher := &blockingFetcher{release: make(chan struct{})}
	svc, _ := newTestService(newMemStore(), fetcher)

	const n = 10
	var wg sync.WaitGroup
	results := make([]PagePayload, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GetPage(context.Background(), "acme")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), fetcher.calls.Load())

	// results must not share mutable state
	results[0].Posts[0].ExternalID = "mutated"
	assert.NotEqual(t, "mutated", results[1].Posts[0].ExternalID)
}

func TestCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	fetcher := &blockingFetcher{release: make(chan struct{})}
	svc, cache := newTestService(newMemStore(), fetcher)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.GetPage(leaderCtx, "acme")
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		payload PagePayload
		err     error
	}
	follower := make(chan result, 1)
	go func() {
		p, err := svc.GetPage(context.Background(), "acme")
		follower <- result{p, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(fetcher.release)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, "acme", got.payload.ExternalID)
	assert.True(t, cache.has("acme"))
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestSharedLoadHasItsOwnTimeout(t *testing.T) {
	fetcher := &blockingFetcher{release: make(chan struct{})}
	defer close(fetcher.release)
	svc := NewService(newMemStore(), newMapCache(), fetcher, WithLoadTimeout(20*time.Millisecond))

	_, err := svc.GetPage(context.Background(), "acme")
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBlankIDIsValidationError(t *testing.T) {
	svc, _ := newTestService(newMemStore(), &mockFetcher{})
	ctx := context.Background()

	_, err := svc.GetPage(ctx, "  ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.SyncPage(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.ListPosts(ctx, "", 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSearchPagesClamps(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store)
	for _, id := range []string{"a", "b", "c"} {
		_, err := r.Reconcile(context.Background(), testSnapshot(id))
		require.NoError(t, err)
	}
	svc, _ := newTestService(store, &mockFetcher{})
	ctx := context.Background()

	res, err := svc.SearchPages(ctx, SearchQuery{Page: -3, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultSearchLimit, res.Limit)
	assert.Equal(t, int64(3), res.Total)
	assert.Len(t, res.Items, 3)

	res, err = svc.SearchPages(ctx, SearchQuery{Page: 2, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxSearchLimit, res.Limit)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)

	res, err = svc.SearchPages(ctx, SearchQuery{SearchFilter: SearchFilter{Industry: ptrTo("Mining")}})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.NotNil(t, res.Items)
}

func TestSearchPagesHugePageIsEmpty(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store)
	for _, id := range []string{"a", "b", "c"} {
		_, err := r.Reconcile(context.Background(), testSnapshot(id))
		require.NoError(t, err)
	}
	svc, _ := newTestService(store, &mockFetcher{})

	for _, page := range []int{math.MaxInt64/10 + 2, math.MaxInt64} {
		res, err := svc.SearchPages(context.Background(), SearchQuery{Page: page, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(3), res.Total)
		assert.Equal(t, page, res.Page)
		assert.Empty(t, res.Items)
	}
}

func TestSearchOffset(t *testing.T) {
	assert.Equal(t, int64(0), searchOffset(1, 10))
	assert.Equal(t, int64(0), searchOffset(0, 10))
	assert.Equal(t, int64(20), searchOffset(3, 10))
	assert.Equal(t, int64(math.MaxInt32+1)*10, searchOffset(math.MaxInt32+2, 10))
	assert.Equal(t, int64(math.MaxInt64), searchOffset(math.MaxInt64/10+2, 10))
	assert.Equal(t, int64(math.MaxInt64), searchOffset(math.MaxInt64, 100))
}

func TestListOperations(t *testing.T) {
	store := newMemStore()
	_, err := NewReconciler(store).Reconcile(context.Background(), testSnapshot("acme"))
	require.NoError(t, err)
	fetcher := &mockFetcher{}
	svc, _ := newTestService(store, fetcher)
	ctx := context.Background()

	posts, err := svc.ListPosts(ctx, "acme", 1)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "new", posts[0].ExternalID)

	followers, err := svc.ListFollowers(ctx, "acme", 0)
	require.NoError(t, err)
	assert.Len(t, followers, 2)
	assert.Equal(t, "f1", followers[0].ExternalID)

	employees, err := svc.ListEmployees(ctx, "acme", 500)
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "CEO", employees[0].Title)

	_, err = svc.ListPosts(ctx, "ghost", 0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.ListFollowers(ctx, "ghost", 0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.ListEmployees(ctx, "ghost", 0)
	assert.ErrorIs(t, err, ErrNotFound)
	fetcher.AssertNotCalled(t, "FetchSnapshot", mock.Anything, mock.Anything)
}

func TestWithPostEmbedLimit(t *testing.T) {
	store := newMemStore()
	_, err := NewReconciler(store).Reconcile(context.Background(), testSnapshot("acme"))
	require.NoError(t, err)

	svc := NewService(store, newMapCache(), &mockFetcher{}, WithPostEmbedLimit(1))
	payload, err := svc.GetPage(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, payload.Posts, 1)
	assert.Equal(t, "new", payload.Posts[0].ExternalID)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 50))
	assert.Equal(t, 10, clampLimit(-1, 10, 50))
	assert.Equal(t, 7, clampLimit(7, 10, 50))
	assert.Equal(t, 50, clampLimit(51, 10, 50))
}
