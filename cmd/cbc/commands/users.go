package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/cbc-client/pkg/platform"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewUsersCommand creates the users command group.
func NewUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage console users",
		Long:    "List and create console users",
	}

	cmd.AddCommand(newUsersListCommand())
	cmd.AddCommand(newUsersCreateCommand())

	return cmd
}

func newUsersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Long:  "List the console users of the organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				users, err := api.Users(ctx)
				if err != nil {
					return fmt.Errorf("failed to list users: %w", err)
				}

				return render(cmd.OutOrStdout(), documents(users), func(table *tablewriter.Table) {
					table.Header("Login ID", "Email", "Name", "Role")

					for _, user := range users {
						name := strings.TrimSpace(user.FirstName() + " " + user.LastName())
						_ = table.Append(orNA(user.LoginID()), user.Email(), orNA(name), orNA(user.Role()))
					}
				})
			})
		},
	}
}

func newUsersCreateCommand() *cobra.Command {
	var (
		role      string
		firstName string
		lastName  string
	)

	cmd := &cobra.Command{
		Use:   "create EMAIL",
		Short: "Create a user",
		Long:  "Invite a new console user with the given role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPI(cmd, func(ctx context.Context, api *platform.API) error {
				user := api.NewUser(args[0], role)
				if firstName != "" || lastName != "" {
					user.SetName(firstName, lastName)
				}

				err := user.Save(ctx)
				if err != nil {
					return fmt.Errorf("failed to create user: %w", err)
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "User %s created\n", user.Email())

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "role URN granted to the user")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")

	return cmd
}
