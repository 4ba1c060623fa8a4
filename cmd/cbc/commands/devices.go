package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
	"github.com/fivetwenty-io/cbc-client/pkg/platform"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewDevicesCommand creates the devices command group.
func NewDevicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"device", "dev"},
		Short:   "Manage devices",
		Long:    "Search, inspect and act on endpoints with a sensor installed",
	}

	cmd.AddCommand(newDevicesListCommand())
	cmd.AddCommand(newDevicesGetCommand())
	cmd.AddCommand(newDevicesFacetCommand())
	cmd.AddCommand(newDevicesQuarantineCommand())

	return cmd
}

func newDevicesListCommand() *cobra.Command {
	flags := &searchFlags{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"search"},
		Short:   "Search devices",
		Long:    "List the devices matching a query and criteria",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				query, err := applySearchFlags(api.Devices(), flags)
				if err != nil {
					return err
				}

				devices, err := query.Execute(ctx)
				if err != nil {
					return fmt.Errorf("failed to search devices: %w", err)
				}

				return outputDevices(cmd.OutOrStdout(), devices)
			})
		},
	}

	flags.register(cmd)

	return cmd
}

func outputDevices(w io.Writer, devices []*platform.Device) error {
	if len(devices) == 0 {
		if format, _ := outputFormat(); format == OutputFormatTable {
			_, _ = io.WriteString(w, "No devices found\n")

			return nil
		}
	}

	return render(w, documents(devices), func(table *tablewriter.Table) {
		table.Header("ID", "Name", "OS", "Status", "Policy", "Quarantined", "Last Contact")

		for _, device := range devices {
			_ = table.Append(device.ID(), orNA(device.Name()), orNA(device.OS()), orNA(device.Status()),
				orNA(device.PolicyName()), yesNo(device.Quarantined()), formatTime(device.LastContactTime()))
		}
	})
}

func newDevicesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get DEVICE_ID",
		Short: "Get device details",
		Long:  "Display detailed information about a specific device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				device, err := api.GetDevice(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get device: %w", err)
				}

				return render(cmd.OutOrStdout(), device.Fields(), func(table *tablewriter.Table) {
					table.Header("Property", "Value")
					_ = table.Append("ID", device.ID())
					_ = table.Append("Name", orNA(device.Name()))
					_ = table.Append("OS", orNA(device.OS()))
					_ = table.Append("Status", orNA(device.Status()))
					_ = table.Append("Policy", fmt.Sprintf("%s (%d)", orNA(device.PolicyName()), device.PolicyID()))
					_ = table.Append("Quarantined", yesNo(device.Quarantined()))
					_ = table.Append("Last Contact", formatTime(device.LastContactTime()))
				})
			})
		},
	}
}

func newDevicesFacetCommand() *cobra.Command {
	var (
		flags = &searchFlags{}
		rows  int
	)

	cmd := &cobra.Command{
		Use:   "facet FIELD...",
		Short: "Count devices by field",
		Long:  "Group the devices matching a query by the values of one or more fields",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				query, err := applySearchFlags(api.Devices(), flags)
				if err != nil {
					return err
				}

				terms, err := query.Facet(ctx, rows, args...)
				if err != nil {
					return fmt.Errorf("failed to facet devices: %w", err)
				}

				return renderFacetTerms(cmd.OutOrStdout(), terms)
			})
		},
	}

	flags.registerFilters(cmd)
	cmd.Flags().IntVar(&rows, "facet-rows", constants.DefaultFacetRows, "buckets per field")

	return cmd
}

func newDevicesQuarantineCommand() *cobra.Command {
	var (
		flags   = &searchFlags{}
		disable bool
	)

	cmd := &cobra.Command{
		Use:   "quarantine [DEVICE_ID...]",
		Short: "Quarantine devices",
		Long:  "Toggle network quarantine for the listed devices or every device matching a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !flags.selective() {
				return ErrMissingSelection
			}

			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				return runDevicesQuarantine(ctx, cmd.OutOrStdout(), api, args, flags, !disable)
			})
		},
	}

	flags.registerFilters(cmd)
	cmd.Flags().BoolVar(&disable, "off", false, "lift quarantine instead of applying it")

	return cmd
}

func runDevicesQuarantine(ctx context.Context, w io.Writer, api *platform.API, ids []string, flags *searchFlags, enable bool) error {
	action := "Quarantine enabled"
	if !enable {
		action = "Quarantine lifted"
	}

	if len(ids) > 0 {
		err := api.QuarantineDeviceIDs(ctx, ids, enable)
		if err != nil {
			return fmt.Errorf("failed to quarantine devices: %w", err)
		}

		_, _ = fmt.Fprintf(w, "%s for %d device(s)\n", action, len(ids))

		return nil
	}

	query, err := applySearchFlags(api.Devices(), flags)
	if err != nil {
		return err
	}

	err = api.QuarantineDevices(ctx, query, enable)
	if err != nil {
		return fmt.Errorf("failed to quarantine devices: %w", err)
	}

	_, _ = fmt.Fprintf(w, "%s for devices matching %s\n", action, describeSelection(query.FilterBody()))

	return nil
}

func describeSelection(body map[string]any) string {
	if query, ok := body["query"].(string); ok && query != "" {
		return fmt.Sprintf("%q", query)
	}

	return fmt.Sprintf("%v", cbc.Fields(body).Get("criteria").Map())
}
