package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/storefront"
	"github.com/dmitrymomot/storefront/internal/web"
	"github.com/dmitrymomot/storefront/pkg/cookie"
	"github.com/dmitrymomot/storefront/pkg/redis"
)

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server that keeps per-visitor sessions, carts and favorites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			cookies, err := cookie.New(cfg.Server.CookieSecret, cookie.WithSecure(cfg.Server.SecureCookie))
			if err != nil {
				return fmt.Errorf("server.cookie_secret: %w", err)
			}

			store, err := a.openStorage(ctx)
			if err != nil {
				return err
			}
			query, err := a.openQuery(ctx)
			if err != nil {
				return err
			}

			opts := []web.Option{
				web.WithAddr(cfg.Server.Addr),
				web.WithAPI(cfg.API.BaseURL),
				web.WithStorage(store),
				web.WithLogger(a.logger),
				web.WithRefresh(cfg.Catalog.Refresh),
				web.WithMaxVisitors(cfg.Server.MaxVisitors),
				web.WithVisitorTTL(cfg.Server.VisitorTTL),
				web.WithClientOptions(
					storefront.WithTimeout(cfg.API.Timeout),
					storefront.WithAuthScheme(cfg.API.AuthScheme),
				),
			}
			if a.redis != nil {
				opts = append(opts, web.WithCheck("redis", web.CheckFunc(redis.Healthcheck(a.redis))))
			}

			srv, err := web.New(cookies, query, opts...)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address")
	cobra.CheckErr(a.loader.BindFlag("server.addr", cmd.Flags().Lookup("addr")))
	return cmd
}
