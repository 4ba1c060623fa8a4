package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/cbc-client/pkg/platform"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewWatchlistsCommand creates the watchlists command group.
func NewWatchlistsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watchlists",
		Aliases: []string{"watchlist", "wl"},
		Short:   "Manage watchlists",
		Long:    "List watchlists and toggle their alerting",
	}

	cmd.AddCommand(newWatchlistsListCommand())
	cmd.AddCommand(newWatchlistsAlertsCommand("enable-alerts", true))
	cmd.AddCommand(newWatchlistsAlertsCommand("disable-alerts", false))

	return cmd
}

func newWatchlistsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List watchlists",
		Long:  "List the watchlists of the organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				watchlists, err := api.Watchlists(ctx)
				if err != nil {
					return fmt.Errorf("failed to list watchlists: %w", err)
				}

				return render(cmd.OutOrStdout(), documents(watchlists), func(table *tablewriter.Table) {
					table.Header("ID", "Name", "Alerts", "Reports")

					for _, watchlist := range watchlists {
						_ = table.Append(watchlist.ID(), orNA(watchlist.Name()), yesNo(watchlist.AlertsEnabled()),
							strconv.Itoa(len(watchlist.ReportIDs())))
					}
				})
			})
		},
	}
}

func newWatchlistsAlertsCommand(use string, enable bool) *cobra.Command {
	verb := "Disable"
	if enable {
		verb = "Enable"
	}

	return &cobra.Command{
		Use:   use + " WATCHLIST_ID",
		Short: verb + " alerts for a watchlist",
		Long:  verb + " alert generation for hits on a watchlist's reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				watchlist, err := api.GetWatchlist(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get watchlist: %w", err)
				}

				watchlist.SetAlertsEnabled(enable)

				err = watchlist.Save(ctx)
				if err != nil {
					return fmt.Errorf("failed to update watchlist: %w", err)
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Alerts %sd for watchlist %s\n", strings.ToLower(verb), watchlist.Name())

				return nil
			})
		},
	}
}
