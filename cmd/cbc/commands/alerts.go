package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/fivetwenty-io/cbc-client/pkg/platform"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewAlertsCommand creates the alerts command group.
func NewAlertsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alerts",
		Aliases: []string{"alert"},
		Short:   "Manage alerts",
		Long:    "Search, facet and dismiss alerts",
	}

	cmd.AddCommand(newAlertsListCommand())
	cmd.AddCommand(newAlertsGetCommand())
	cmd.AddCommand(newAlertsFacetCommand())
	cmd.AddCommand(newAlertsDismissCommand())

	return cmd
}

func newAlertsListCommand() *cobra.Command {
	flags := &searchFlags{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"search"},
		Short:   "Search alerts",
		Long:    "List the alerts matching a query and criteria",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				query, err := applySearchFlags(api.Alerts(), flags)
				if err != nil {
					return err
				}

				alerts, err := query.Execute(ctx)
				if err != nil {
					return fmt.Errorf("failed to search alerts: %w", err)
				}

				return outputAlerts(cmd.OutOrStdout(), alerts)
			})
		},
	}

	flags.register(cmd)

	return cmd
}

func outputAlerts(w io.Writer, alerts []*platform.Alert) error {
	if len(alerts) == 0 {
		if format, _ := outputFormat(); format == OutputFormatTable {
			_, _ = io.WriteString(w, "No alerts found\n")

			return nil
		}
	}

	return render(w, documents(alerts), func(table *tablewriter.Table) {
		table.Header("ID", "Type", "Severity", "Device", "Status", "Reason", "Recorded")

		for _, alert := range alerts {
			_ = table.Append(alert.ID(), orNA(alert.Type()), strconv.Itoa(alert.Severity()), orNA(alert.DeviceName()),
				orNA(alert.WorkflowStatus()), orNA(alert.Reason()), formatTime(alert.BackendTimestamp()))
		}
	})
}

func newAlertsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ALERT_ID",
		Short: "Get alert details",
		Long:  "Display detailed information about a specific alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				alert, err := api.GetAlert(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get alert: %w", err)
				}

				return render(cmd.OutOrStdout(), alert.Fields(), func(table *tablewriter.Table) {
					table.Header("Property", "Value")
					_ = table.Append("ID", alert.ID())
					_ = table.Append("Type", orNA(alert.Type()))
					_ = table.Append("Severity", strconv.Itoa(alert.Severity()))
					_ = table.Append("Reason", orNA(alert.Reason()))
					_ = table.Append("Device", fmt.Sprintf("%s (%s)", orNA(alert.DeviceName()), orNA(alert.DeviceID())))
					_ = table.Append("Workflow", orNA(alert.WorkflowStatus()))
					_ = table.Append("Recorded", formatTime(alert.BackendTimestamp()))
				})
			})
		},
	}
}

func newAlertsFacetCommand() *cobra.Command {
	var (
		flags = &searchFlags{}
		rows  int
	)

	cmd := &cobra.Command{
		Use:   "facet FIELD...",
		Short: "Count alerts by field",
		Long:  "Group the alerts matching a query by the values of one or more fields",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				query, err := applySearchFlags(api.Alerts(), flags)
				if err != nil {
					return err
				}

				terms, err := query.Facet(ctx, rows, args...)
				if err != nil {
					return fmt.Errorf("failed to facet alerts: %w", err)
				}

				return renderFacetTerms(cmd.OutOrStdout(), terms)
			})
		},
	}

	flags.registerFilters(cmd)
	cmd.Flags().IntVar(&rows, "facet-rows", constants.DefaultFacetRows, "buckets per field")

	return cmd
}

func newAlertsDismissCommand() *cobra.Command {
	var (
		flags  = &searchFlags{}
		reason string
		note   string
	)

	cmd := &cobra.Command{
		Use:   "dismiss [ALERT_ID...]",
		Short: "Dismiss alerts",
		Long:  "Close the listed alerts or every alert matching a query, and wait for the workflow job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return constants.ErrReasonRequired
			}

			if len(args) == 0 && !flags.selective() {
				return ErrMissingSelection
			}

			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				query, err := applySearchFlags(api.Alerts(), flags)
				if err != nil {
					return err
				}

				if len(args) > 0 {
					ids := make([]any, 0, len(args))
					for _, id := range args {
						ids = append(ids, id)
					}

					query = query.AddCriteria("id", ids...)
				}

				job, err := api.DismissAlerts(ctx, query, reason, note)
				if err != nil {
					return fmt.Errorf("failed to dismiss alerts: %w", err)
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Alerts dismissed (job %s)\n", job.ID())

				return nil
			})
		},
	}

	flags.registerFilters(cmd)
	cmd.Flags().StringVar(&reason, "reason", "", "closure reason, e.g. NO_REASON or RESOLVED (required)")
	cmd.Flags().StringVar(&note, "note", "", "note recorded with the dismissal")

	return cmd
}
