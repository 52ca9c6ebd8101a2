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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/pagekeeper/config"
	"github.com/cardinalhq/pagekeeper/internal/healthcheck"
	"github.com/cardinalhq/pagekeeper/internal/pageapi"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the page API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			doneCtx, doneFx, err := setupTelemetry(config.ServiceTypeAPI)
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

			healthServer := healthcheck.NewServer(healthcheck.GetConfigFromEnv())

			a, err := newApp(doneCtx, cfg)
			if err != nil {
				slog.Error("Failed to start", slog.Any("error", err))
				return err
			}
			defer a.Close()

			go a.cache.Start()
			defer a.cache.Stop()

			healthServer.AddCheck("store", a.store)
			api := pageapi.New(a.service, cfg.Server.RequestTimeout)

			g, ctx := errgroup.WithContext(doneCtx)
			g.Go(func() error {
				return healthServer.Start(ctx)
			})
			g.Go(func() error {
				return api.ListenAndServe(ctx, cfg.Server.Addr)
			})

			healthServer.SetStatus(healthcheck.StatusHealthy)
			return g.Wait()
		},
	}

	rootCmd.AddCommand(cmd)
}
