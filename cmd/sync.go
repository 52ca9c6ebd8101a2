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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/pagekeeper/config"
)

type syncSummary struct {
	ExternalID string `json:"external_id"`
	ID         int64  `json:"id,omitempty"`
	Posts      int    `json:"posts"`
	Error      string `json:"error,omitempty"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "sync <page-id>...",
		Short: "Fetch and reconcile pages now",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			doneCtx, doneFx, err := setupTelemetry(config.ServiceTypeSync)
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
			a, err := newApp(doneCtx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var errs *multierror.Error
			enc := json.NewEncoder(os.Stdout)
			for _, id := range args {
				if doneCtx.Err() != nil {
					errs = multierror.Append(errs, doneCtx.Err())
					break
				}
				summary := syncSummary{ExternalID: id}
				payload, err := a.service.SyncPage(doneCtx, id)
				if err != nil {
					summary.Error = err.Error()
					errs = multierror.Append(errs, fmt.Errorf("sync %s: %w", id, err))
				} else {
					summary.ID = payload.ID
					summary.Posts = len(payload.Posts)
				}
				if err := enc.Encode(summary); err != nil {
					return err
				}
			}
			return errs.ErrorOrNil()
		},
	}

	rootCmd.AddCommand(cmd)
}
