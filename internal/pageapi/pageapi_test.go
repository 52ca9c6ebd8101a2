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

package pageapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) GetPage(ctx context.Context, id string) (pages.PagePayload, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(pages.PagePayload), args.Error(1)
}

func (m *mockService) SyncPage(ctx context.Context, id string) (pages.PagePayload, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(pages.PagePayload), args.Error(1)
}

func (m *mockService) SearchPages(ctx context.Context, q pages.SearchQuery) (pages.SearchResult, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(pages.SearchResult), args.Error(1)
}

func (m *mockService) ListPosts(ctx context.Context, id string, limit int) ([]pages.Post, error) {
	args := m.Called(ctx, id, limit)
	return args.Get(0).([]pages.Post), args.Error(1)
}

func (m *mockService) ListFollowers(ctx context.Context, id string, limit int) ([]pages.User, error) {
	args := m.Called(ctx, id, limit)
	return args.Get(0).([]pages.User), args.Error(1)
}

func (m *mockService) ListEmployees(ctx context.Context, id string, limit int) ([]pages.Employment, error) {
	args := m.Called(ctx, id, limit)
	return args.Get(0).([]pages.Employment), args.Error(1)
}

func serve(t *testing.T, svc PageService, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	New(svc, time.Second).Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetPage(t *testing.T) {
	svc := &mockService{}
	payload := pages.PagePayload{
		Page:  pages.Page{ID: 7, ExternalID: "acme", Name: "Acme", Specialities: []string{}},
		Posts: []pages.Post{{ID: 1, ExternalID: "p1"}},
	}
	svc.On("GetPage", mock.Anything, "acme").Return(payload, nil)

	rec := serve(t, svc, http.MethodGet, "/pages/acme")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "acme", got["external_id"])
	assert.Len(t, got["posts"], 1)
	svc.AssertExpectations(t)
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	New(&mockService{}, time.Second).Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("fetch page x: %w", pages.ErrNotFound), http.StatusNotFound},
		{"fetch failed", fmt.Errorf("%w: boom", pages.ErrFetchFailed), http.StatusBadGateway},
		{"bad snapshot", fmt.Errorf("%w: no name", pages.ErrValidation), http.StatusBadGateway},
		{"conflict", fmt.Errorf("reconcile: %w", pages.ErrConflict), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("SyncPage", mock.Anything, "acme").Return(pages.PagePayload{}, tt.err)

			rec := serve(t, svc, http.MethodPost, "/pages/acme/sync")
			assert.Equal(t, tt.want, rec.Code)
			body := decodeError(t, rec)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, rec.Header().Get(RequestIDHeader), body.RequestID)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	svc := &mockService{}
	svc.On("GetPage", mock.Anything, "acme").Return(pages.PagePayload{}, fmt.Errorf("password=hunter2"))

	rec := serve(t, svc, http.MethodGet, "/pages/acme")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", decodeError(t, rec).Error)
}

func TestBlankPageIDIsBadRequest(t *testing.T) {
	svc := &mockService{}
	rec := serve(t, svc, http.MethodGet, "/pages/%20")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "GetPage", mock.Anything, mock.Anything)
}

func TestSearchPages(t *testing.T) {
	svc := &mockService{}
	result := pages.SearchResult{Total: 1, Page: 2, Limit: 5, Items: []pages.PageSummary{{ID: 1, ExternalID: "acme"}}}
	svc.On("SearchPages", mock.Anything, mock.MatchedBy(func(q pages.SearchQuery) bool {
		return q.Name != nil && *q.Name == "acme" &&
			q.Industry != nil && *q.Industry == "Software" &&
			q.FollowersMin != nil && *q.FollowersMin == 10 &&
			q.FollowersMax != nil && *q.FollowersMax == 100 &&
			q.Page == 2 && q.Limit == 5
	})).Return(result, nil)

	rec := serve(t, svc, http.MethodGet, "/pages?name=acme&industry=Software&followersMin=10&followersMax=100&page=2&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var got pages.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, result, got)
	svc.AssertExpectations(t)
}

func TestSearchPagesEmptyFilters(t *testing.T) {
	svc := &mockService{}
	svc.On("SearchPages", mock.Anything, pages.SearchQuery{}).Return(pages.SearchResult{Page: 1, Limit: 10, Items: []pages.PageSummary{}}, nil)

	rec := serve(t, svc, http.MethodGet, "/pages?name=&industry=")
	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestSearchPagesBadParams(t *testing.T) {
	for _, target := range []string{
		"/pages?page=two",
		"/pages?limit=1.5",
		"/pages?followersMin=-1",
		"/pages?followersMax=lots",
		"/pages?followersMin=10&followersMax=5",
	} {
		t.Run(target, func(t *testing.T) {
			svc := &mockService{}
			rec := serve(t, svc, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			svc.AssertNotCalled(t, "SearchPages", mock.Anything, mock.Anything)
		})
	}
}

func TestListEndpoints(t *testing.T) {
	svc := &mockService{}
	svc.On("ListPosts", mock.Anything, "acme", 5).Return([]pages.Post{{ID: 1}}, nil)
	svc.On("ListFollowers", mock.Anything, "acme", 0).Return([]pages.User{{ID: 2}, {ID: 3}}, nil)
	svc.On("ListEmployees", mock.Anything, "acme", 0).Return([]pages.Employment{}, nil)
	svc.On("ListPosts", mock.Anything, "ghost", 0).Return([]pages.Post(nil), fmt.Errorf("page ghost: %w", pages.ErrNotFound))

	rec := serve(t, svc, http.MethodGet, "/pages/acme/posts?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var posts []pages.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posts))
	assert.Len(t, posts, 1)

	rec = serve(t, svc, http.MethodGet, "/pages/acme/followers")
	require.Equal(t, http.StatusOK, rec.Code)
	var users []pages.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)

	rec = serve(t, svc, http.MethodGet, "/pages/acme/employees")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(t, svc, http.MethodGet, "/pages/ghost/posts")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, svc, http.MethodGet, "/pages/acme/posts?limit=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertExpectations(t)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(t, &mockService{}, http.MethodDelete, "/pages/acme")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerAppliesTimeout(t *testing.T) {
	svc := &mockService{}
	svc.On("GetPage", mock.Anything, "slow").Return(pages.PagePayload{}, nil).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})
	rec := serve(t, svc, http.MethodGet, "/pages/slow")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(&mockService{}, time.Second).ListenAndServe(ctx, "127.0.0.1:0")
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
