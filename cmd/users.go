package cmd

import (
	"bufio"

	"github.com/habedi/uniboard/client"
	"github.com/spf13/cobra"
)

// usersCmd creates the command group for managing user accounts.
// The backend only allows admins to call these endpoints.
func usersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts (admin only)",
	}
	cmd.AddCommand(usersListCmd(opts), usersCreateCmd(opts))
	return cmd
}

func usersListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			resp, err := a.client.ListUsers(cmd.Context())
			if err != nil {
				return reportError(cmd, "list users", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			table := newTable(cmd.OutOrStdout(), "ID", "Username", "Full name", "Role", "Active")
			for _, u := range resp.Users {
				table.Append([]string{itoa(u.ID), u.Username, u.FullName, u.Role, yesNo(u.IsActive)})
			}
			table.Render()
			cmd.Printf("%d user(s)\n", resp.Total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw response as JSON")
	return cmd
}

func usersCreateCmd(opts *rootOptions) *cobra.Command {
	var req client.CreateUserRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			in := bufio.NewReader(cmd.InOrStdin())
			if req.Username == "" {
				req.Username = promptForInput(cmd, in, "Username: ")
			}
			if req.FullName == "" {
				req.FullName = promptForInput(cmd, in, "Full name: ")
			}
			req.Password = promptForPassword(cmd, in, "Password: ")

			user, err := a.client.CreateUser(cmd.Context(), req)
			if err != nil {
				return reportError(cmd, "create user", err)
			}
			cmd.Printf("Created user %s (ID %d, role %s).\n", user.Username, user.ID, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&req.FullName, "full-name", "n", "", "Full name")
	cmd.Flags().StringVarP(&req.Role, "role", "r", "user", "Role: admin or user")
	return cmd
}
