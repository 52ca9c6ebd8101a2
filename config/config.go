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

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/cardinalhq/pagekeeper/internal/fetcher"
	"github.com/cardinalhq/pagekeeper/internal/pagecache"
	"github.com/cardinalhq/pagekeeper/internal/pageapi"
	"github.com/cardinalhq/pagekeeper/internal/pages"
)

// Config aggregates configuration for the application.
// Each section is owned by the package it configures.
type Config struct {
	Server  ServerConfig     `mapstructure:"server"`
	Storage StorageConfig    `mapstructure:"storage"`
	Cache   pagecache.Config `mapstructure:"cache"`
	Fetcher fetcher.Config   `mapstructure:"fetcher"`
	Pages   PagesConfig      `mapstructure:"pages"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StorageConfig selects the store. The Postgres connection itself comes
// from the PAGEDB_* variables.
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type PagesConfig struct {
	PostEmbedLimit int `mapstructure:"post_embed_limit"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: pageapi.DefaultRequestTimeout,
		},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "pagekeeper.db",
		},
		Cache:   pagecache.DefaultConfig(),
		Fetcher: fetcher.DefaultConfig(),
		Pages:   PagesConfig{PostEmbedLimit: pages.DefaultPostEmbedLimit},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "PAGEKEEPER" and the dot character
// in keys is replaced by an underscore. For example, "cache.ttl" becomes
// "PAGEKEEPER_CACHE_TTL".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("pagekeeper")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PAGEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if m := v.GetString("fetcher.missing"); m != "" {
		cfg.Fetcher.Missing = splitList(m)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if c.Server.Addr == "" {
		errs = multierror.Append(errs, fmt.Errorf("server.addr is required"))
	}
	switch c.Storage.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = multierror.Append(errs, fmt.Errorf("storage.sqlite_path is required for the %s driver", DriverSQLite))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Storage.Driver))
	}
	if c.Pages.PostEmbedLimit < 0 {
		errs = multierror.Append(errs, fmt.Errorf("pages.post_embed_limit must not be negative"))
	}
	if c.Cache.TTL < 0 {
		errs = multierror.Append(errs, fmt.Errorf("cache.ttl must not be negative"))
	}
	return errs.ErrorOrNil()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
