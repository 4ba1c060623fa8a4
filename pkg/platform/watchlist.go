package platform

import (
	"context"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// WatchlistInfo describes watchlists. Watchlists are saved as whole documents.
var WatchlistInfo = &cbc.ResourceInfo{
	Name:             "watchlist",
	URLTemplate:      "/threathunter/watchlistmgr/v3/orgs/{org_key}/watchlists/{id}",
	CreateURL:        "/threathunter/watchlistmgr/v3/orgs/{org_key}/watchlists",
	ListURL:          "/threathunter/watchlistmgr/v3/orgs/{org_key}/watchlists",
	SaveFullDocument: true,
	Validate:         validateWatchlist,
}

// validateWatchlist requires a name and exactly one source: report ids or a
// feed classifier.
func validateWatchlist(fields cbc.Fields) error {
	if fields.Get("name").String() == "" {
		return &cbc.InvalidQueryError{Message: "watchlist name is required"}
	}

	hasReports := len(fields.Get("report_ids").Strings()) > 0
	hasClassifier := !fields.Get("classifier").IsMissing() && !fields.Get("classifier").IsNull()

	if hasReports && hasClassifier {
		return &cbc.InvalidQueryError{Message: "watchlist cannot have both report_ids and a classifier"}
	}

	return nil
}

// Watchlist is a set of reports whose hits raise alerts.
type Watchlist struct {
	*cbc.MutableModel
}

func newWatchlist(m *cbc.Model) *Watchlist {
	return &Watchlist{MutableModel: cbc.AsMutable(m)}
}

// Name returns the watchlist name.
func (w *Watchlist) Name() string { return w.Peek("name").String() }

// Description returns the description.
func (w *Watchlist) Description() string { return w.Peek("description").String() }

// AlertsEnabled reports whether hits raise alerts.
func (w *Watchlist) AlertsEnabled() bool { return w.Peek("alerts_enabled").Bool() }

// ReportIDs returns the attached report ids.
func (w *Watchlist) ReportIDs() []string { return w.Peek("report_ids").Strings() }

// SetAlertsEnabled toggles alerting.
func (w *Watchlist) SetAlertsEnabled(enabled bool) { w.Set("alerts_enabled", enabled) }

// SetDescription changes the description.
func (w *Watchlist) SetDescription(description string) { w.Set("description", description) }

// GetWatchlist fetches one watchlist.
func (a *API) GetWatchlist(ctx context.Context, id string) (*Watchlist, error) {
	return cbc.Get(ctx, a.transport, WatchlistInfo, newWatchlist, id)
}

// NewWatchlist creates an unsaved watchlist over reportIDs; Save POSTs it.
func (a *API) NewWatchlist(name string, reportIDs ...string) *Watchlist {
	watchlist := &Watchlist{MutableModel: cbc.NewMutableModel(a.transport, WatchlistInfo, "")}
	watchlist.Set("name", name)
	watchlist.Set("report_ids", reportIDs)
	watchlist.Set("alerts_enabled", false)

	return watchlist
}

// Watchlists lists the organization's watchlists.
func (a *API) Watchlists(ctx context.Context) ([]*Watchlist, error) {
	return cbc.List(ctx, a.transport, WatchlistInfo, newWatchlist, nil)
}
