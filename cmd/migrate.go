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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/pagekeeper/config"
	"github.com/cardinalhq/pagekeeper/internal/dbopen"
	"github.com/cardinalhq/pagekeeper/internal/sqlitestore"
	"github.com/cardinalhq/pagekeeper/pagedb"
	"github.com/cardinalhq/pagekeeper/pagedb/migrations"
)

var migrateDown bool

func init() {
	MigrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll back every pagedb migration instead of applying them")
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  "Apply the embedded schema migrations to the configured store",
	RunE:  migrate,
}

func migrate(_ *cobra.Command, _ []string) error {
	doneCtx, doneFx, err := setupTelemetry(config.ServiceTypeMigrate)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := doneFx(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(doneCtx, 5*time.Minute)
	defer cancel()

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		if migrateDown {
			return errors.New("--down is only supported for the postgres driver")
		}
		// Open applies pending migrations.
		store, err := sqlitestore.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to migrate sqlite store: %w", err)
		}
		slog.Info("sqlite migrations completed successfully", slog.String("path", cfg.Storage.SQLitePath))
		return store.Close()
	default:
		return migratePageDB(ctx)
	}
}

func migratePageDB(ctx context.Context) error {
	url, err := dbopen.GetDatabaseURLFromEnv("PAGEDB")
	if err != nil {
		return errors.Join(dbopen.ErrDatabaseNotConfigured, err)
	}
	pool, err := pagedb.NewConnectionPool(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrateDown {
		slog.Info("Rolling back pagedb migrations")
		return migrations.RunMigrationsDown(ctx, pool)
	}
	slog.Info("Running pagedb migrations")
	if err := migrations.RunMigrationsUp(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate pagedb: %w", err)
	}
	slog.Info("pagedb migrations completed successfully")
	return nil
}
