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

import "errors"

var (
	// ErrNotFound means no page (or user) exists for the given natural key,
	// in storage and, where a fetch was attempted, upstream.
	ErrNotFound = errors.New("page not found")

	// ErrFetchFailed means the fetch capability errored or timed out. It is
	// distinct from ErrNotFound so callers can retry.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrConflict means a natural-key race could not be resolved by a retry.
	// It is transient.
	ErrConflict = errors.New("conflict on upsert")

	// ErrValidation means a snapshot or request was malformed. Nothing was
	// written.
	ErrValidation = errors.New("validation failed")
)
