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

import "net/http"

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.mux.HandleFunc("GET /pages", s.handleSearchPages)
	s.mux.HandleFunc("GET /pages/{id}", s.handleGetPage)
	s.mux.HandleFunc("POST /pages/{id}/sync", s.handleSyncPage)
	s.mux.HandleFunc("GET /pages/{id}/posts", s.handleListPosts)
	s.mux.HandleFunc("GET /pages/{id}/followers", s.handleListFollowers)
	s.mux.HandleFunc("GET /pages/{id}/employees", s.handleListEmployees)
}
