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

// Package pageapi exposes the page service over HTTP.
package pageapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

// PageService is the subset of pages.Service the handlers call.
type PageService interface {
	GetPage(ctx context.Context, externalID string) (pages.PagePayload, error)
	SyncPage(ctx context.Context, externalID string) (pages.PagePayload, error)
	SearchPages(ctx context.Context, q pages.SearchQuery) (pages.SearchResult, error)
	ListPosts(ctx context.Context, externalID string, limit int) ([]pages.Post, error)
	ListFollowers(ctx context.Context, externalID string, limit int) ([]pages.User, error)
	ListEmployees(ctx context.Context, externalID string, limit int) ([]pages.Employment, error)
}

const DefaultRequestTimeout = 30 * time.Second

type Server struct {
	svc            PageService
	mux            *http.ServeMux
	requestTimeout time.Duration
}

func New(svc PageService, requestTimeout time.Duration) *Server {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		svc:            svc,
		mux:            http.NewServeMux(),
		requestTimeout: requestTimeout,
	}
	s.routes()
	return s
}

// Handler returns the mux wrapped with request ids, access logging and
// OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(withRequestID(s.mux), "pagekeeper-api")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting page API server", slog.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Shutting down page API server")
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
