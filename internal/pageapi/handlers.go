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
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

// badRequest marks errors caused by the caller's parameters.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func pageID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", badRequestf("page id is required")
	}
	return id, nil
}

func (s *Server) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.requestTimeout)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	id, err := pageID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()

	payload, err := s.svc.GetPage(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSyncPage(w http.ResponseWriter, r *http.Request) {
	id, err := pageID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()

	payload, err := s.svc.SyncPage(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSearchPages(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()

	result, err := s.svc.SearchPages(ctx, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	handleList(s, w, r, s.svc.ListPosts)
}

func (s *Server) handleListFollowers(w http.ResponseWriter, r *http.Request) {
	handleList(s, w, r, s.svc.ListFollowers)
}

func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	handleList(s, w, r, s.svc.ListEmployees)
}

func handleList[T any](s *Server, w http.ResponseWriter, r *http.Request, list func(context.Context, string, int) ([]T, error)) {
	id, err := pageID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()

	items, err := list(ctx, id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func parseSearchQuery(v url.Values) (pages.SearchQuery, error) {
	var q pages.SearchQuery
	var err error

	if name := strings.TrimSpace(v.Get("name")); name != "" {
		q.Name = &name
	}
	if industry := strings.TrimSpace(v.Get("industry")); industry != "" {
		q.Industry = &industry
	}
	if q.FollowersMin, err = int64Param(v, "followersMin"); err != nil {
		return q, err
	}
	if q.FollowersMax, err = int64Param(v, "followersMax"); err != nil {
		return q, err
	}
	if q.FollowersMin != nil && q.FollowersMax != nil && *q.FollowersMin > *q.FollowersMax {
		return q, badRequestf("followersMin must not exceed followersMax")
	}
	if q.Page, err = intParam(v, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(v, "limit"); err != nil {
		return q, err
	}
	return q, nil
}

// intParam returns 0 when the parameter is absent; the service applies its
// defaults and bounds.
func intParam(v url.Values, key string) (int, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequestf("%s must be an integer", key)
	}
	return n, nil
}

func int64Param(v url.Values, key string) (*int64, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, badRequestf("%s must be an integer", key)
	}
	if n < 0 {
		return nil, badRequestf("%s must not be negative", key)
	}
	return &n, nil
}
