package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fivetwenty-io/cbc-client/pkg/platform"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewPoliciesCommand creates the policies command group.
func NewPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "policies",
		Aliases: []string{"policy"},
		Short:   "Manage sensor policies",
		Long:    "List, inspect and update sensor policies",
	}

	cmd.AddCommand(newPoliciesListCommand())
	cmd.AddCommand(newPoliciesGetCommand())
	cmd.AddCommand(newPoliciesUpdateCommand())

	return cmd
}

func newPoliciesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List policies",
		Long:  "List the sensor policies of the organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				policies, err := api.Policies(ctx)
				if err != nil {
					return fmt.Errorf("failed to list policies: %w", err)
				}

				return render(cmd.OutOrStdout(), documents(policies), func(table *tablewriter.Table) {
					table.Header("ID", "Name", "Priority", "Devices")

					for _, policy := range policies {
						_ = table.Append(policy.ID(), orNA(policy.Name()), orNA(policy.Priority()), strconv.Itoa(policy.NumDevices()))
					}
				})
			})
		},
	}
}

func newPoliciesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get POLICY_ID",
		Short: "Get policy details",
		Long:  "Display detailed information about a specific policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				policy, err := api.GetPolicy(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get policy: %w", err)
				}

				return outputPolicy(cmd, policy)
			})
		},
	}
}

func outputPolicy(cmd *cobra.Command, policy *platform.Policy) error {
	return render(cmd.OutOrStdout(), policy.Fields(), func(table *tablewriter.Table) {
		table.Header("Property", "Value")
		_ = table.Append("ID", policy.ID())
		_ = table.Append("Name", orNA(policy.Name()))
		_ = table.Append("Description", orNA(policy.Description()))
		_ = table.Append("Priority", orNA(policy.Priority()))
		_ = table.Append("Devices", strconv.Itoa(policy.NumDevices()))
	})
}

func newPoliciesUpdateCommand() *cobra.Command {
	var (
		name        string
		description string
		priority    string
	)

	cmd := &cobra.Command{
		Use:   "update POLICY_ID",
		Short: "Update a policy",
		Long:  "Change the name, description or priority of a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				policy, err := api.GetPolicy(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get policy: %w", err)
				}

				if cmd.Flags().Changed("name") {
					policy.SetName(name)
				}

				if cmd.Flags().Changed("description") {
					policy.SetDescription(description)
				}

				if cmd.Flags().Changed("priority") {
					policy.SetPriority(priority)
				}

				if !policy.IsDirty() {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing to update")

					return nil
				}

				err = policy.Save(ctx)
				if err != nil {
					return fmt.Errorf("failed to update policy: %w", err)
				}

				return outputPolicy(cmd, policy)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new policy name")
	cmd.Flags().StringVar(&description, "description", "", "new policy description")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority level (LOW, MEDIUM, HIGH, MISSION_CRITICAL)")

	return cmd
}
