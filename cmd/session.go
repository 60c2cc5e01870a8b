package cmd

import (
	"time"

	"github.com/habedi/uniboard/session"
	"github.com/spf13/cobra"
)

func whoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user the stored session belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			user, err := a.auth.CurrentUser(cmd.Context())
			if err != nil {
				return reportError(cmd, "fetch the current user", err)
			}
			if user == nil {
				cmd.Println("Not logged in. Run `uniboard login`.")
				return nil
			}
			table := newTable(cmd.OutOrStdout(), "Field", "Value")
			table.Append([]string{"ID", itoa(user.ID)})
			table.Append([]string{"Username", user.Username})
			table.Append([]string{"Full name", user.FullName})
			table.Append([]string{"Role", user.Role})
			table.Append([]string{"Active", yesNo(user.IsActive)})
			table.Render()
			return nil
		},
	}
}

// statusCmd reports the stored session without contacting the backend.
func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the API address and the state of the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			st, err := a.auth.Status(cmd.Context())
			if err != nil {
				return reportError(cmd, "read the session", err)
			}

			now := time.Now()
			cmd.Printf("API: %s (from %s)\n", a.cfg.APIBaseURL, a.cfg.APIBaseURLSource)
			if st.State == session.Anonymous {
				cmd.Println("Session: not logged in")
				return nil
			}
			cmd.Println("Session: logged in")
			if st.User != nil {
				cmd.Printf("User: %s (%s)\n", st.User.Username, st.User.Role)
			}
			if !st.AccessTokenExpiry.IsZero() {
				state := "valid"
				if st.AccessTokenExpired(now) {
					state = "expired, will be refreshed on the next request"
				}
				cmd.Printf("Access token expires: %s (%s)\n", st.AccessTokenExpiry.Local().Format(time.RFC3339), state)
			}
			if !st.RefreshTokenExpiry.IsZero() {
				cmd.Printf("Refresh token expires: %s\n", st.RefreshTokenExpiry.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}
