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

import "context"

// Store is durable storage keyed by natural identifiers. Read methods never
// traverse relationships implicitly; every child collection has its own call.
type Store interface {
	// FindPage returns ErrNotFound when no page has the external id.
	FindPage(ctx context.Context, externalID string) (Page, error)

	// InTx runs fn inside one transaction. If fn returns an error the
	// transaction is rolled back and nothing fn wrote is visible.
	InTx(ctx context.Context, fn func(Tx) error) error

	// SearchPages returns the total match count and up to limit summaries
	// starting at offset, ordered by id.
	SearchPages(ctx context.Context, filter SearchFilter, offset int64, limit int) (int64, []PageSummary, error)
	ListPostsForPage(ctx context.Context, pageID int64, limit int) ([]Post, error)
	ListCommentsForPosts(ctx context.Context, postIDs []int64) (map[int64][]Comment, error)
	ListFollowersForPage(ctx context.Context, pageID int64, limit int) ([]User, error)
	ListEmployeesForPage(ctx context.Context, pageID int64, limit int) ([]Employment, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the write side of Store, only reachable inside InTx.
type Tx interface {
	// UpsertPage inserts the page or overwrites its scalar fields in place,
	// keeping id and created_at.
	UpsertPage(ctx context.Context, page PageSnapshot) (Page, error)

	// ReplacePosts deletes every post of the page (and their comments) and
	// inserts posts in the given order.
	ReplacePosts(ctx context.Context, pageID int64, posts []PostSnapshot) error

	// ReplaceFollowers resolves each user by external id, creating it when
	// missing, then replaces the page's follower links.
	ReplaceFollowers(ctx context.Context, pageID int64, followers []UserSnapshot) error

	// ReplaceEmployees follows the same pattern for employment rows.
	ReplaceEmployees(ctx context.Context, pageID int64, employees []EmployeeSnapshot) error
}

// Fetcher obtains a fresh snapshot from the external source. It returns
// ErrNotFound when the source positively reports that the page does not
// exist; any other error is treated as a fetch failure.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, externalID string) (Snapshot, error)
}

// PayloadCache maps page external ids to assembled payloads. Entries are an
// optimization only; storage stays authoritative.
type PayloadCache interface {
	Get(key string) (PagePayload, bool)
	Set(key string, payload PagePayload)
	Delete(key string)
}
