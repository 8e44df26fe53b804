package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/storefront/pkg/cart"
)

func cartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and change the cart",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(*cobra.Command, []string) error {
			return a.printCart(a.client.Cart().Snapshot())
		}),
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE:  cmd.RunE,
	}

	var qty int
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, args []string) error {
			snap, err := a.client.AddToCart(cmd.Context(), args[0], qty)
			if err != nil {
				return err
			}
			return a.printCart(snap)
		}),
	}
	add.Flags().IntVarP(&qty, "quantity", "q", 1, "quantity to add")

	set := &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set a line's quantity; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(a, func(_ *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q is not a number", args[1])
			}
			snap, err := a.client.SetCartQuantity(args[0], n)
			if err != nil {
				return err
			}
			return a.printCart(snap)
		}),
	}

	rm := &cobra.Command{
		Use:     "rm <product-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a product from the cart",
		Args:    cobra.ExactArgs(1),
		RunE: withClient(a, func(_ *cobra.Command, args []string) error {
			a.client.Cart().RemoveItem(args[0])
			return a.printCart(a.client.Cart().Snapshot())
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(*cobra.Command, []string) error {
			a.client.Cart().Clear()
			return a.printCart(a.client.Cart().Snapshot())
		}),
	}

	cmd.AddCommand(show, add, set, rm, clearCmd)
	return cmd
}

func (a *app) printCart(snap cart.Snapshot) error {
	return a.print(snap, func(p *printer) {
		if len(snap.Lines) == 0 {
			p.line("Cart is empty")
			return
		}
		for _, l := range snap.Lines {
			p.line("%-32s %4s %12s %12s", l.Name, formatQty(l.Quantity), p.money(l.UnitPrice), p.money(l.Subtotal()))
		}
		p.line("%d items, total %s", snap.Totals.Quantity, p.money(snap.Totals.Amount))
	})
}
