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

package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

func snapshotHandler(t *testing.T, snap pages.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(snap))
	}
}

func TestHTTPFetcherOK(t *testing.T) {
	var gotPath string
	want := pages.Snapshot{
		Page:  pages.PageSnapshot{ExternalID: "acme corp", Name: "Acme", URL: "https://example.com"},
		Posts: []pages.PostSnapshot{{ExternalID: "p1", LikeCount: 4}},
	}
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		snapshotHandler(t, want)(w, r)
	}))
	defer s.Close()

	f := NewHTTPFetcher(s.URL+"/", 2*time.Second, 1)
	snap, err := f.FetchSnapshot(context.Background(), "acme corp")
	require.NoError(t, err)
	assert.Equal(t, "/pages/acme%20corp", gotPath)
	assert.Equal(t, want.Page, snap.Page)
	require.Len(t, snap.Posts, 1)
	assert.Equal(t, int64(4), snap.Posts[0].LikeCount)
}

func TestHTTPFetcherNotFound(t *testing.T) {
	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))
	defer s.Close()

	f := NewHTTPFetcher(s.URL, 2*time.Second, 3)
	_, err := f.FetchSnapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, pages.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	want := pages.Snapshot{Page: pages.PageSnapshot{ExternalID: "acme", Name: "Acme", URL: "u"}}
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		snapshotHandler(t, want)(w, r)
	}))
	defer s.Close()

	f := NewHTTPFetcher(s.URL, 2*time.Second, 3)
	snap, err := f.FetchSnapshot(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", snap.Page.ExternalID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPFetcherGivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer s.Close()

	f := NewHTTPFetcher(s.URL, 2*time.Second, 2)
	_, err := f.FetchSnapshot(context.Background(), "acme")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "down", statusErr.Body)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPFetcherClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer s.Close()

	f := NewHTTPFetcher(s.URL, 2*time.Second, 3)
	_, err := f.FetchSnapshot(context.Background(), "acme")
	require.Error(t, err)
	assert.NotErrorIs(t, err, pages.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherInvalidJSON(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"page": [1, 2]}`))
	}))
	defer s.Close()

	f := NewHTTPFetcher(s.URL, 2*time.Second, 3)
	_, err := f.FetchSnapshot(context.Background(), "acme")
	assert.ErrorContains(t, err, "decode snapshot")
}

func TestHTTPFetcherTimeout(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer s.Close()

	f := NewHTTPFetcher(s.URL, 100*time.Millisecond, 1)
	_, err := f.FetchSnapshot(context.Background(), "acme")
	assert.Error(t, err)
}

func TestDemoFetcher(t *testing.T) {
	f := NewDemoFetcher("gone")
	f.now = func() time.Time { return time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC) }

	snap, err := f.FetchSnapshot(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", snap.Page.ExternalID)
	assert.Len(t, snap.Posts, demoPosts)
	assert.Len(t, snap.Followers, demoFollowers)
	assert.Len(t, snap.Employees, 2)
	require.NotNil(t, snap.Posts[0].PostedAt)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), *snap.Posts[0].PostedAt)
	assert.NoError(t, snap.Normalize().Validate())

	again, err := f.FetchSnapshot(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, snap, again)

	_, err = f.FetchSnapshot(context.Background(), "gone")
	assert.ErrorIs(t, err, pages.ErrNotFound)
}

func TestNew(t *testing.T) {
	f, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &DemoFetcher{}, f)

	_, err = New(Config{Mode: ModeHTTP})
	assert.Error(t, err)

	f, err = New(Config{Mode: "HTTP", BaseURL: "http://scraper:8080"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPFetcher{}, f)

	_, err = New(Config{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}
