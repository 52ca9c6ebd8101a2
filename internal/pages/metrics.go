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
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	cacheLookups      metric.Int64Counter
	fetchCounter      metric.Int64Counter
	reconcileConflict metric.Int64Counter
	reconcileDuration metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/pagekeeper/internal/pages")

	var err error

	cacheLookups, err = meter.Int64Counter(
		"pagekeeper.cache.lookups",
		metric.WithDescription("Page payload cache lookups, by result"),
	)
	if err != nil {
		log.Fatalf("failed to create cache.lookups counter: %v", err)
	}

	fetchCounter, err = meter.Int64Counter(
		"pagekeeper.fetch.requests",
		metric.WithDescription("Snapshot fetches from the external source, by result"),
	)
	if err != nil {
		log.Fatalf("failed to create fetch.requests counter: %v", err)
	}

	reconcileConflict, err = meter.Int64Counter(
		"pagekeeper.reconcile.conflicts",
		metric.WithDescription("Reconciliations that hit a natural-key conflict"),
	)
	if err != nil {
		log.Fatalf("failed to create reconcile.conflicts counter: %v", err)
	}

	reconcileDuration, err = meter.Float64Histogram(
		"pagekeeper.reconcile.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of snapshot reconciliation transactions"),
	)
	if err != nil {
		log.Fatalf("failed to create reconcile.duration histogram: %v", err)
	}
}

func recordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func recordFetch(ctx context.Context, result string) {
	fetchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func recordReconcile(ctx context.Context, d time.Duration, err error) {
	reconcileDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("success", err == nil)))
}
