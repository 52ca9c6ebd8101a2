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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/postgres"

	"github.com/cardinalhq/pagekeeper/pagedb"
	pagedbmigrations "github.com/cardinalhq/pagekeeper/pagedb/migrations"
)

const (
	gnomockUser     = "pagekeeper"
	gnomockPassword = "pagekeeper"
	gnomockDB       = "testing_pagedb"
)

// SetupTestPageDB creates a clean pagedb database with migrations applied.
// It uses the server named by PAGEDB_HOST when set and otherwise starts a
// throwaway Postgres container with gnomock. Cleanup is registered with
// t.Cleanup.
func SetupTestPageDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	base := baseConnParams(t)

	basePool, err := pgxpool.New(ctx, base.forDB(base.dbName))
	if err != nil {
		t.Fatalf("Failed to connect to base database: %v", err)
	}

	dbName := fmt.Sprintf("test_pagedb_%d_%d", time.Now().Unix(), rand.Intn(10000))
	if _, err := basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}

	testPool, err := pagedb.NewConnectionPool(ctx, base.forDB(dbName))
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := pagedbmigrations.RunMigrationsUp(ctx, testPool); err != nil {
		testPool.Close()
		basePool.Close()
		t.Fatalf("Failed to run pagedb migrations: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()

		_, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
		if err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	return testPool
}

// NewTestPageDBStore creates a pagedb store connected to a fresh test database.
func NewTestPageDBStore(t *testing.T) *pagedb.Store {
	return pagedb.NewStore(SetupTestPageDB(t))
}

type connParams struct {
	host     string
	port     string
	user     string
	password string
	dbName   string
}

func (p connParams) forDB(dbName string) string {
	if p.password != "" {
		return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", p.user, p.password, p.host, p.port, dbName)
	}
	return fmt.Sprintf("postgresql://%s@%s:%s/%s?sslmode=disable", p.user, p.host, p.port, dbName)
}

func baseConnParams(t *testing.T) connParams {
	t.Helper()

	if host := os.Getenv("PAGEDB_HOST"); host != "" {
		return connParams{
			host:     host,
			port:     getEnvOrDefault("PAGEDB_PORT", "5432"),
			user:     getEnvOrDefault("PAGEDB_USER", os.Getenv("USER")),
			password: os.Getenv("PAGEDB_PASSWORD"),
			dbName:   getEnvOrDefault("PAGEDB_DBNAME", gnomockDB),
		}
	}

	container, err := gnomock.Start(postgres.Preset(
		postgres.WithUser(gnomockUser, gnomockPassword),
		postgres.WithDatabase(gnomockDB),
		postgres.WithVersion("16"),
	))
	if err != nil {
		t.Skipf("Postgres unavailable (set PAGEDB_HOST or run docker): %v", err)
	}
	t.Cleanup(func() {
		if err := gnomock.Stop(container); err != nil {
			slog.Error("Failed to stop postgres container", slog.Any("error", err))
		}
	})

	return connParams{
		host:     container.Host,
		port:     fmt.Sprint(container.DefaultPort()),
		user:     gnomockUser,
		password: gnomockPassword,
		dbName:   gnomockDB,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
