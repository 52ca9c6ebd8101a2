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
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/pagekeeper/internal/pages"
)

const (
	demoPosts     = 5
	demoFollowers = 5
)

// DemoFetcher synthesizes a deterministic snapshot for any page id, so the
// service can run without a scraper. Post timestamps count back from the
// start of the current UTC day.
type DemoFetcher struct {
	missing mapset.Set[string]
	now     func() time.Time
}

var _ pages.Fetcher = (*DemoFetcher)(nil)

// NewDemoFetcher returns a DemoFetcher that reports the given ids as not
// found upstream.
func NewDemoFetcher(missing ...string) *DemoFetcher {
	return &DemoFetcher{
		missing: mapset.NewSet(missing...),
		now:     time.Now,
	}
}

func (f *DemoFetcher) FetchSnapshot(ctx context.Context, externalID string) (pages.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return pages.Snapshot{}, err
	}
	if f.missing.Contains(externalID) {
		return pages.Snapshot{}, pages.ErrNotFound
	}

	day := f.now().UTC().Truncate(24 * time.Hour)
	platformID := "1234567890"

	snap := pages.Snapshot{
		Page: pages.PageSnapshot{
			ExternalID:      externalID,
			PlatformID:      &platformID,
			Name:            "Demo Company " + externalID,
			URL:             "https://www.linkedin.com/company/" + externalID,
			ProfileImageURL: "https://example.com/profile.png",
			Description:     "Demo company description for testing.",
			Website:         "https://example.com",
			Industry:        "Software",
			FollowerCount:   25000,
			Headcount:       120,
			Specialities:    []string{"SaaS", "Cloud", "AI"},
		},
	}

	for i := 1; i <= demoPosts; i++ {
		postedAt := day.AddDate(0, 0, -i)
		snap.Posts = append(snap.Posts, pages.PostSnapshot{
			ExternalID:   fmt.Sprintf("%s-post-%d", externalID, i),
			ContentText:  fmt.Sprintf("Demo post %d for %s", i, externalID),
			LikeCount:    int64(10 * i),
			CommentCount: 1,
			ShareCount:   int64(i),
			PostedAt:     &postedAt,
			Comments: []pages.CommentSnapshot{{
				Author:      pages.UserSnapshot{ExternalID: "user-1", Name: "Follower User 1", Headline: "Software Engineer"},
				ContentText: "Nice post",
			}},
		})
	}

	for i := 1; i <= demoFollowers; i++ {
		snap.Followers = append(snap.Followers, pages.UserSnapshot{
			ExternalID: fmt.Sprintf("user-%d", i),
			Name:       fmt.Sprintf("Follower User %d", i),
			Headline:   "Software Engineer",
		})
	}

	snap.Employees = []pages.EmployeeSnapshot{
		{User: pages.UserSnapshot{ExternalID: "employee-1", Name: "John Doe"}, Title: "Software Engineer"},
		{User: pages.UserSnapshot{ExternalID: "employee-2", Name: "Jane Smith"}, Title: "Product Manager"},
	}
	return snap, nil
}
