// Package storefront is the client state core of the produce storefront.
//
// A [Client] wires together everything one shopper needs:
//
//   - an API client for the remote REST service (pkg/api)
//   - the session manager, whose token is attached to authenticated
//     requests and which is cleared by any 401 (pkg/session)
//   - the cart and favorites stores (pkg/cart, pkg/favorites)
//   - a [Catalog] that reads products, categories and the profile through a
//     tag-invalidated, request-coalescing cache (pkg/cache)
//
// State is mirrored to a [storage.Storage]. The session is written as it
// changes; cart and favorites snapshots go through a background writer
// that coalesces bursts and is flushed by [Client.Close].
//
//	store, _ := storage.NewFile("")
//	c, err := storefront.New("", storefront.WithStorage(store))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if err := c.Restore(ctx); err != nil {
//		return err
//	}
//	products, err := c.Catalog().Products(ctx)
//
// Several clients may share one [cache.Query] (see [WithQuery]); the web
// server does this so all visitors read the catalog from one cache.
package storefront
