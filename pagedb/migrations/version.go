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

package migrations

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckMode controls what CheckVersion does when the schema is behind.
type CheckMode int

const (
	// CheckModeWait polls until the schema catches up or the timeout passes.
	CheckModeWait CheckMode = iota
	// CheckModeWarn logs the mismatch and continues.
	CheckModeWarn
	// CheckModeSkip does not look at the schema at all.
	CheckModeSkip
)

type CheckOptions struct {
	Mode          CheckMode
	Timeout       time.Duration
	RetryInterval time.Duration
	AllowDirty    bool
}

type CheckOption func(*CheckOptions)

func WithCheckMode(mode CheckMode) CheckOption {
	return func(opts *CheckOptions) { opts.Mode = mode }
}

func WithTimeout(timeout time.Duration) CheckOption {
	return func(opts *CheckOptions) { opts.Timeout = timeout }
}

func WithRetryInterval(interval time.Duration) CheckOption {
	return func(opts *CheckOptions) { opts.RetryInterval = interval }
}

func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Mode:          CheckModeWait,
		Timeout:       120 * time.Second,
		RetryInterval: 5 * time.Second,
	}
}

// CheckVersion verifies that pagedb is at the newest embedded migration.
// PAGEDB_MIGRATION_CHECK_ENABLED=false disables the check; the
// MIGRATION_CHECK_* variables override timeout, retry interval and dirty
// handling.
func CheckVersion(ctx context.Context, pool *pgxpool.Pool, options ...CheckOption) error {
	opts := DefaultCheckOptions()
	for _, option := range options {
		option(&opts)
	}
	applyEnvironmentOverrides(&opts)

	if opts.Mode == CheckModeSkip {
		slog.Debug("Migration version checking skipped for pagedb")
		return nil
	}

	expected, err := latestMigrationVersion(migrationFiles)
	if err != nil {
		return fmt.Errorf("failed to extract expected migration version: %w", err)
	}

	current, dirty, err := currentVersion(pool)
	if err != nil {
		return err
	}
	if dirty && !opts.AllowDirty {
		if opts.Mode != CheckModeWarn {
			return fmt.Errorf("pagedb migration is in dirty state, please fix before proceeding")
		}
		slog.Warn("PageDB migration is in dirty state, continuing anyway")
	}
	if current == expected {
		return nil
	}
	if current > expected {
		if opts.Mode == CheckModeWarn {
			slog.Warn("PageDB version is newer than expected, continuing anyway",
				slog.Uint64("current_version", uint64(current)),
				slog.Uint64("expected_version", uint64(expected)))
			return nil
		}
		return fmt.Errorf("pagedb version %d is newer than expected version %d - you may need to update the application",
			current, expected)
	}
	if opts.Mode == CheckModeWarn {
		slog.Warn("PageDB version is older than expected, continuing anyway",
			slog.Uint64("current_version", uint64(current)),
			slog.Uint64("expected_version", uint64(expected)))
		return nil
	}

	deadline := time.Now().Add(opts.Timeout)
	ticker := time.NewTicker(opts.RetryInterval)
	defer ticker.Stop()
	for {
		slog.Info("Waiting for pagedb migrations",
			slog.Uint64("current_version", uint64(current)),
			slog.Uint64("expected_version", uint64(expected)),
			slog.Duration("remaining_timeout", time.Until(deadline)))

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for pagedb migrations: %w", ctx.Err())
		case <-ticker.C:
		}

		current, _, err = currentVersion(pool)
		if err != nil {
			return err
		}
		if current == expected {
			slog.Info("Migration version check passed", slog.Uint64("version", uint64(current)))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for pagedb migrations: at version %d, want %d", current, expected)
		}
	}
}

func applyEnvironmentOverrides(opts *CheckOptions) {
	if val := os.Getenv("PAGEDB_MIGRATION_CHECK_ENABLED"); val != "" && !strings.EqualFold(val, "true") {
		opts.Mode = CheckModeSkip
	}
	if val := os.Getenv("MIGRATION_CHECK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			opts.Timeout = d
		}
	}
	if val := os.Getenv("MIGRATION_CHECK_RETRY_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			opts.RetryInterval = d
		}
	}
	if val := os.Getenv("MIGRATION_CHECK_ALLOW_DIRTY"); val != "" {
		opts.AllowDirty = strings.EqualFold(val, "true")
	}
}

// latestMigrationVersion returns the highest version prefix among the
// embedded "<version>_<name>.up.sql" files.
func latestMigrationVersion(files embed.FS) (uint, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		maxVersion = max(maxVersion, uint(version))
	}
	if maxVersion == 0 {
		return 0, fmt.Errorf("no valid migration files found")
	}
	return maxVersion, nil
}
