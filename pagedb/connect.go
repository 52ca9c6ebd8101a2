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

package pagedb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"

	"github.com/cardinalhq/pagekeeper/internal/dbopen"
	"github.com/cardinalhq/pagekeeper/pagedb/migrations"
)

// NewConnectionPool creates a pgx pool for url with OpenTelemetry query
// tracing attached.
func NewConnectionPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{
		Name: "pagedb",
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// ConnectToPageDB opens a pool from the PAGEDB_* environment and verifies
// the schema version.
func ConnectToPageDB(ctx context.Context, opts ...migrations.CheckOption) (*pgxpool.Pool, error) {
	connectionString, err := dbopen.GetDatabaseURLFromEnv("PAGEDB")
	if err != nil {
		return nil, errors.Join(dbopen.ErrDatabaseNotConfigured, fmt.Errorf("failed to get PAGEDB connection string: %w", err))
	}

	pool, err := NewConnectionPool(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	if err := migrations.CheckVersion(ctx, pool, opts...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PAGEDB migration version check failed: %w", err)
	}
	return pool, nil
}

// PageDBStore connects and wraps the pool in a Store.
func PageDBStore(ctx context.Context, opts ...migrations.CheckOption) (*Store, error) {
	pool, err := ConnectToPageDB(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}
