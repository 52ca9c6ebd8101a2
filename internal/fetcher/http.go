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

package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

// maxSnapshotBytes bounds how much of an upstream response is decoded.
const maxSnapshotBytes = 32 << 20

// StatusError is returned for non-2xx upstream responses other than 404.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// HTTPFetcher reads snapshots from GET {baseURL}/pages/{id}. Transport
// errors, 429 and 5xx responses are retried with exponential backoff.
type HTTPFetcher struct {
	Client   *http.Client
	BaseURL  string
	MaxTries uint
}

var _ pages.Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(baseURL string, timeout time.Duration, maxTries uint) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		MaxTries: max(maxTries, 1),
		Client: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(&http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
			}),
		},
	}
}

func (f *HTTPFetcher) FetchSnapshot(ctx context.Context, externalID string) (pages.Snapshot, error) {
	target := f.BaseURL + "/pages/" + url.PathEscape(externalID)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, func() (pages.Snapshot, error) {
		return f.fetchOnce(ctx, target)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Snapshot fetch failed, retrying",
				slog.String("externalID", externalID),
				slog.Duration("backoff", next),
				slog.Any("error", err))
		}),
	)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, target string) (pages.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return pages.Snapshot{}, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pagekeeper")

	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return pages.Snapshot{}, backoff.Permanent(err)
		}
		return pages.Snapshot{}, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return pages.Snapshot{}, backoff.Permanent(pages.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		statusErr := readStatusError(resp)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return pages.Snapshot{}, errors.Join(statusErr, backoff.RetryAfter(secs))
		}
		return pages.Snapshot{}, statusErr
	case resp.StatusCode >= 500:
		return pages.Snapshot{}, readStatusError(resp)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return pages.Snapshot{}, backoff.Permanent(readStatusError(resp))
	}

	var snap pages.Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSnapshotBytes)).Decode(&snap); err != nil {
		return pages.Snapshot{}, backoff.Permanent(fmt.Errorf("decode snapshot: %w", err))
	}
	return snap, nil
}

func readStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
