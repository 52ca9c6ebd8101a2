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

package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Reconciler makes storage match a freshly fetched snapshot: the page is
// upserted by external id and every child collection is replaced wholesale,
// all inside one transaction.
//
// Reconciler does not serialize callers; Service holds a per-key lock around
// it so that reconciliation and cache population for one page are ordered.
type Reconciler struct {
	store Store
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile validates the snapshot and applies it. A natural-key conflict is
// retried once; a second conflict is returned wrapped in ErrConflict.
func (r *Reconciler) Reconcile(ctx context.Context, snap Snapshot) (Page, error) {
	snap = snap.Normalize()
	if err := snap.Validate(); err != nil {
		return Page{}, err
	}

	start := time.Now()
	page, err := r.apply(ctx, snap)
	if errors.Is(err, ErrConflict) {
		reconcileConflict.Add(ctx, 1)
		slog.Warn("Conflict reconciling page, retrying",
			slog.String("externalID", snap.Page.ExternalID),
			slog.Any("error", err))
		page, err = r.apply(ctx, snap)
	}
	recordReconcile(ctx, time.Since(start), err)
	if err != nil {
		return Page{}, fmt.Errorf("reconcile page %s: %w", snap.Page.ExternalID, err)
	}

	slog.Debug("Reconciled page",
		slog.String("externalID", page.ExternalID),
		slog.Int64("pageID", page.ID),
		slog.Int("posts", len(snap.Posts)),
		slog.Int("followers", len(snap.Followers)),
		slog.Int("employees", len(snap.Employees)))
	return page, nil
}

func (r *Reconciler) apply(ctx context.Context, snap Snapshot) (Page, error) {
	var page Page
	err := r.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.UpsertPage(ctx, snap.Page)
		if err != nil {
			return fmt.Errorf("upsert page: %w", err)
		}
		if err := tx.ReplacePosts(ctx, p.ID, snap.Posts); err != nil {
			return fmt.Errorf("replace posts: %w", err)
		}
		if err := tx.ReplaceFollowers(ctx, p.ID, snap.Followers); err != nil {
			return fmt.Errorf("replace followers: %w", err)
		}
		if err := tx.ReplaceEmployees(ctx, p.ID, snap.Employees); err != nil {
			return fmt.Errorf("replace employees: %w", err)
		}
		page = p
		return nil
	})
	return page, err
}
