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

// Package pagecache holds assembled page payloads in process memory, keyed
// by page external id.
package pagecache

import (
	"context"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

// Config controls expiry and size. Zero values disable the respective limit,
// which gives an unbounded cache whose entries live until overwritten.
type Config struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries uint64        `mapstructure:"max_entries"`
}

func DefaultConfig() Config {
	return Config{
		TTL: 5 * time.Minute,
	}
}

// Cache is safe for concurrent use. Values are copied in and out so no two
// callers share slices.
type Cache struct {
	items *ttlcache.Cache[string, pages.PagePayload]
}

var _ pages.PayloadCache = (*Cache)(nil)

func New(cfg Config) *Cache {
	opts := []ttlcache.Option[string, pages.PagePayload]{
		ttlcache.WithDisableTouchOnHit[string, pages.PagePayload](),
	}
	if cfg.TTL > 0 {
		opts = append(opts, ttlcache.WithTTL[string, pages.PagePayload](cfg.TTL))
	}
	if cfg.MaxEntries > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, pages.PagePayload](cfg.MaxEntries))
	}

	c := &Cache{items: ttlcache.New(opts...)}
	c.items.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, pages.PagePayload]) {
		slog.Debug("Evicted cached page",
			slog.String("externalID", item.Key()),
			slog.Int("reason", int(reason)))
	})
	return c
}

// Start runs the expiry loop until Stop is called. Expired entries are
// never returned by Get even when the loop is not running.
func (c *Cache) Start() {
	c.items.Start()
}

func (c *Cache) Stop() {
	c.items.Stop()
}

func (c *Cache) Get(key string) (pages.PagePayload, bool) {
	item := c.items.Get(key)
	if item == nil {
		return pages.PagePayload{}, false
	}
	return item.Value().Clone(), true
}

func (c *Cache) Set(key string, payload pages.PagePayload) {
	c.items.Set(key, payload.Clone(), ttlcache.DefaultTTL)
}

func (c *Cache) Delete(key string) {
	c.items.Delete(key)
}

func (c *Cache) Len() int {
	return c.items.Len()
}
