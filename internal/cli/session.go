package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"attendo/internal/auth"
)

var errNotSignedIn = errors.New("not signed in; run attendo login")

func newRegisterCmd(load loader) *cobra.Command {
	var email, password, name, role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an identity and sign in as it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load(cmd)
			if err != nil {
				return err
			}
			ident, err := env.Session.Register(cmd.Context(), email, password, name, auth.Role(strings.ToLower(role)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered and signed in as %s (%s)\n", ident.Email, ident.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleStudent), "admin or student")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCmd(load loader) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load(cmd)
			if err != nil {
				return err
			}
			ident, err := env.Session.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", ident.Email, ident.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load(cmd)
			if err != nil {
				return err
			}
			env.Session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newWhoamiCmd(load loader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load(cmd)
			if err != nil {
				return err
			}
			ident, ok := env.Session.CurrentUser()
			if !ok {
				return errNotSignedIn
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), ident)
			}
			return renderTable(cmd.OutOrStdout(),
				[]string{"ID", "Email", "Name", "Role"},
				[][]string{{ident.ID, ident.Email, ident.Name, string(ident.Role)}})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
