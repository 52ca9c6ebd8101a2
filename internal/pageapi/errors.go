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
	"errors"
	"log/slog"
	"net/http"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}

// statusFor maps service errors to HTTP statuses. A validation failure
// that reaches this point came from an upstream snapshot, since request
// parameters are checked before the service is called.
func statusFor(err error) int {
	var br *badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, pages.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pages.ErrFetchFailed), errors.Is(err, pages.ErrValidation):
		return http.StatusBadGateway
	case errors.Is(err, pages.ErrConflict):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	requestID := RequestIDFromContext(r.Context())

	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed",
			slog.String("requestID", requestID),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		msg = http.StatusText(status)
	} else {
		slog.Debug("Request rejected",
			slog.String("requestID", requestID),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err))
	}
	writeJSON(w, status, errorBody{Error: msg, RequestID: requestID})
}
