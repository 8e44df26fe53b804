package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/storefront/internal/config"
)

// newRootCmd builds the command tree. The returned app must be closed after
// the command ran, whether or not it failed.
func newRootCmd(out io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, loader: config.NewLoader()}
	var cfgFile string

	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront client: catalog, session, cart and favorites",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, cfgFile)
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "YAML config file")
	flags.String("api", "", "API base URL")
	flags.StringP("output", "o", "", "output format: text, json or yaml")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("state-dir", "", "directory holding the session, cart and favorites")

	for key, name := range map[string]string{
		"api.base_url": "api",
		"output":       "output",
		"log.level":    "log-level",
		"storage.dir":  "state-dir",
	} {
		cobra.CheckErr(a.loader.BindFlag(key, flags.Lookup(name)))
	}

	root.AddGroup(
		&cobra.Group{ID: "account", Title: "Account:"},
		&cobra.Group{ID: "catalog", Title: "Catalog:"},
		&cobra.Group{ID: "shopping", Title: "Shopping:"},
		&cobra.Group{ID: "server", Title: "Server:"},
	)

	for _, cmd := range []*cobra.Command{loginCmd(a), registerCmd(a), logoutCmd(a), whoamiCmd(a)} {
		cmd.GroupID = "account"
		root.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{productsCmd(a), productCmd(a), categoriesCmd(a), categoryCmd(a)} {
		cmd.GroupID = "catalog"
		root.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{cartCmd(a), favCmd(a)} {
		cmd.GroupID = "shopping"
		root.AddCommand(cmd)
	}
	serve := serveCmd(a)
	serve.GroupID = "server"
	root.AddCommand(serve, versionCmd(a))

	return root, a
}

// withClient wraps a command body that needs a restored client.
func withClient(a *app, fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if _, err := a.openClient(cmd.Context()); err != nil {
			return err
		}
		return fn(cmd, args)
	}
}
