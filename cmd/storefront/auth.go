package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/storefront/pkg/api"
)

func loginCmd(a *app) *cobra.Command {
	var creds api.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session until the token expires",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(cmd *cobra.Command, _ []string) error {
			s, err := a.client.Session().Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			return a.print(s, func(p *printer) {
				p.line("Logged in as %s", s.Email)
				if !s.ExpiresAt.IsZero() {
					p.line("Session expires %s", s.ExpiresAt.Local().Format("2006-01-02 15:04"))
				}
			})
		}),
	}
	cmd.Flags().StringVarP(&creds.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "account password")
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var reg api.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Session().Register(cmd.Context(), reg); err != nil {
				return err
			}
			return a.print(map[string]string{"email": reg.Email}, func(p *printer) {
				p.line("Registered %s. Log in to continue.", reg.Email)
			})
		}),
	}
	cmd.Flags().StringVarP(&reg.Name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "account password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Session().Logout(cmd.Context()); err != nil {
				return err
			}
			return a.print(map[string]bool{"loggedIn": false}, func(p *printer) {
				p.line("Logged out")
			})
		}),
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user's profile",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(cmd *cobra.Command, _ []string) error {
			u, err := a.client.Catalog().Profile(cmd.Context())
			if errors.Is(err, api.ErrUnauthorized) {
				return errors.New("not logged in")
			}
			if err != nil {
				return err
			}
			return a.print(u, func(p *printer) {
				p.line("%s <%s>", u.Name, u.Email)
				if u.Role != "" {
					p.line("Role: %s", u.Role)
				}
			})
		}),
	}
}
