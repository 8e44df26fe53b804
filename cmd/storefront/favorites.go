package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/storefront/pkg/favorites"
)

func favCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fav",
		Aliases: []string{"favorites"},
		Short:   "Manage favorite products",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List favorites",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(*cobra.Command, []string) error {
			return a.printFavorites(a.client.Favorites().Snapshot())
		}),
	}

	toggle := &cobra.Command{
		Use:   "toggle <product-id>",
		Short: "Add or remove a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, args []string) error {
			added, err := a.client.ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(map[string]any{"productId": args[0], "favorite": added}, func(p *printer) {
				if added {
					p.line("Added %s to favorites", args[0])
				} else {
					p.line("Removed %s from favorites", args[0])
				}
			})
		}),
	}

	rm := &cobra.Command{
		Use:     "rm <product-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a favorite",
		Args:    cobra.ExactArgs(1),
		RunE: withClient(a, func(_ *cobra.Command, args []string) error {
			a.client.Favorites().Remove(args[0])
			return a.printFavorites(a.client.Favorites().Snapshot())
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every favorite",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(*cobra.Command, []string) error {
			a.client.Favorites().Clear()
			return a.printFavorites(a.client.Favorites().Snapshot())
		}),
	}

	cmd.AddCommand(list, toggle, rm, clearCmd)
	return cmd
}

func (a *app) printFavorites(snap favorites.Snapshot) error {
	return a.print(snap, func(p *printer) {
		if len(snap.Entries) == 0 {
			p.line("No favorites")
			return
		}
		for _, e := range snap.Entries {
			p.line("%-26s %-32s %12s", e.ProductID, e.Name, p.money(e.UnitPrice))
		}
	})
}
