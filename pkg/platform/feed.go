package platform

import (
	"context"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// FeedInfo describes threat intelligence feeds. A single feed response wraps
// the document in "feedinfo".
var FeedInfo = &cbc.ResourceInfo{
	Name:        "feed",
	URLTemplate: "/threathunter/feedmgr/v2/orgs/{org_key}/feeds/{id}",
	ListURL:     "/threathunter/feedmgr/v2/orgs/{org_key}/feeds",
	DocumentKey: "feedinfo",
}

// Feed is a threat intelligence feed.
type Feed struct {
	*cbc.Model
}

func newFeed(m *cbc.Model) *Feed {
	return &Feed{Model: m}
}

// Name returns the feed name.
func (f *Feed) Name() string { return f.Peek("name").String() }

// Owner returns the owning org key.
func (f *Feed) Owner() string { return f.Peek("owner").String() }

// Provider returns the provider URL.
func (f *Feed) Provider() string { return f.Peek("provider_url").String() }

// Public reports whether the feed is public.
func (f *Feed) Public() bool { return f.Peek("access").String() == "public" }

// GetFeed fetches one feed.
func (a *API) GetFeed(ctx context.Context, id string) (*Feed, error) {
	return cbc.Get(ctx, a.transport, FeedInfo, newFeed, id)
}

// Feeds lists the feeds visible to the organization.
func (a *API) Feeds(ctx context.Context) ([]*Feed, error) {
	return cbc.List(ctx, a.transport, FeedInfo, newFeed, nil)
}
