package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/storefront/pkg/api"
)

func productsCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(cmd *cobra.Command, _ []string) error {
			products, err := a.client.Catalog().Products(cmd.Context())
			if err != nil {
				return err
			}
			if !all {
				products = available(products)
			}
			return a.print(products, func(p *printer) {
				for _, pr := range products {
					p.line("%-26s %-32s %12s  stock %d", pr.ID, pr.Name, p.money(pr.Price), pr.Stock)
				}
			})
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "include deleted products")
	return cmd
}

func productCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "product <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, args []string) error {
			pr, err := a.client.Catalog().Product(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(pr, func(p *printer) {
				p.line("%s", pr.Name)
				p.line("Price: %s", p.money(pr.Price))
				p.line("Stock: %d", pr.Stock)
				if pr.Description != "" {
					p.line("%s", strings.TrimSpace(pr.Description))
				}
				if img := pr.Image(); img != "" {
					p.line("Image: %s", img)
				}
			})
		}),
	}
}

func categoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: withClient(a, func(cmd *cobra.Command, _ []string) error {
			cats, err := a.client.Catalog().Categories(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cats, func(p *printer) {
				for _, c := range cats {
					p.line("%-26s %s", c.ID, c.Name)
				}
			})
		}),
	}
}

func categoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "category <id>",
		Short: "Show one category",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, args []string) error {
			c, err := a.client.Catalog().Category(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(c, func(p *printer) {
				p.line("%s %s", c.ID, c.Name)
			})
		}),
	}
}

func available(products []api.Product) []api.Product {
	out := make([]api.Product, 0, len(products))
	for _, p := range products {
		if !p.IsDeleted {
			out = append(out, p)
		}
	}
	return out
}
