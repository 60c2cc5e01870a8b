package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/habedi/uniboard/pkg/clierr"
	"github.com/habedi/uniboard/pkg/validation"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// loginCmd creates a new cobra.Command for logging into the dashboard API.
func loginCmd(opts *rootOptions) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the dashboard API",
		Long:  "Log in with your dashboard username and password and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				username = promptForInput(cmd, in, "Username: ")
			}
			if err := validation.ValidateNonEmptyString("username", username); err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			password := promptForPassword(cmd, in, "Password: ")
			if err := validation.ValidateNonEmptyString("password", password); err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}

			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}

			user, err := a.auth.Login(cmd.Context(), username, password)
			if err != nil {
				return reportError(cmd, "log in", err)
			}
			name := user.FullName
			if name == "" {
				name = user.Username
			}
			cmd.Printf("Logged in to %s as %s (%s).\n", a.cfg.APIBaseURL, name, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted for when omitted)")

	return cmd
}

// logoutCmd clears the stored session and revokes the refresh token.
func logoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.auth.Logout(cmd.Context()); err != nil {
				return reportError(cmd, "log out", err)
			}
			cmd.Println("Logged out.")
			return nil
		},
	}
}

// promptForInput prompts the user for input and returns the trimmed string.
func promptForInput(cmd *cobra.Command, in *bufio.Reader, prompt string) string {
	cmd.Print(prompt)
	input, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return ""
	}
	return strings.TrimSpace(input)
}

// promptForPassword reads a password without echo when stdin is a terminal
// and falls back to a plain line read otherwise.
func promptForPassword(cmd *cobra.Command, in *bufio.Reader, prompt string) string {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print(prompt)
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(password))
	}
	return promptForInput(cmd, in, prompt)
}
