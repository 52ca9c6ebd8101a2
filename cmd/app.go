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

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardinalhq/pagekeeper/config"
	"github.com/cardinalhq/pagekeeper/internal/fetcher"
	"github.com/cardinalhq/pagekeeper/internal/pagecache"
	"github.com/cardinalhq/pagekeeper/internal/pages"
	"github.com/cardinalhq/pagekeeper/internal/sqlitestore"
	"github.com/cardinalhq/pagekeeper/pagedb"
)

// openStore opens the store selected by cfg.Storage.Driver.
func openStore(ctx context.Context, cfg *config.Config) (pages.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		slog.Info("Connecting to pagedb")
		store, err := pagedb.PageDBStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to pagedb: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		slog.Info("Opening sqlite store", slog.String("path", cfg.Storage.SQLitePath))
		store, err := sqlitestore.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// app is the wired service graph shared by the serve and sync commands.
type app struct {
	store   pages.Store
	cache   *pagecache.Cache
	service *pages.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	f, err := fetcher.New(cfg.Fetcher)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cache := pagecache.New(cfg.Cache)
	svc := pages.NewService(store, cache, f,
		pages.WithPostEmbedLimit(cfg.Pages.PostEmbedLimit),
		pages.WithLoadTimeout(cfg.Server.RequestTimeout))
	return &app{store: store, cache: cache, service: svc}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("Failed to close store", slog.Any("error", err))
	}
}
