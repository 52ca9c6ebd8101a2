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

// Package fetcher provides the snapshot sources the page service pulls from.
package fetcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

const (
	ModeHTTP = "http"
	ModeDemo = "demo"
)

type Config struct {
	// Mode selects the source: "http" talks to a scraper service, "demo"
	// synthesizes snapshots locally.
	Mode     string        `mapstructure:"mode"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxTries uint          `mapstructure:"max_tries"`
	// Missing lists page ids the demo source reports as absent upstream.
	Missing []string `mapstructure:"missing"`
}

func DefaultConfig() Config {
	return Config{
		Mode:     ModeDemo,
		Timeout:  10 * time.Second,
		MaxTries: 3,
	}
}

// New builds the fetcher selected by cfg.Mode.
func New(cfg Config) (pages.Fetcher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case ModeHTTP:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("fetcher.base_url is required in %s mode", ModeHTTP)
		}
		return NewHTTPFetcher(cfg.BaseURL, cfg.Timeout, cfg.MaxTries), nil
	case ModeDemo, "":
		return NewDemoFetcher(cfg.Missing...), nil
	default:
		return nil, fmt.Errorf("unknown fetcher mode %q", cfg.Mode)
	}
}
