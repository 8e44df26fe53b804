// Package api is a typed client for the storefront REST API.
//
// Responses arrive in a {success, message, data} envelope; the client
// unwraps data into the caller's type and turns everything else into an
// [*Error] whose Kind is one of [ErrNetwork], [ErrUnauthorized],
// [ErrValidation], [ErrNotFound] or [ErrServer]:
//
//	c := api.New("", api.WithTokenSource(sessions.Token))
//	products, err := c.ListProducts(ctx)
//	switch {
//	case errors.Is(err, api.ErrNetwork):
//		// retry later
//	case errors.Is(err, api.ErrValidation):
//		fields := api.FieldErrors(err)
//	}
//
// The token source is read on every request and the token is attached as
// the raw Authorization header value unless [WithAuthScheme] is set. Login
// and registration never carry a token. A 401 on a request that did carry
// one triggers the handler set with [WithUnauthorizedHandler], which is how
// the session layer forces a logout.
//
// Inputs are validated locally before any network call, and product
// descriptions are passed through a bluemonday policy.
package api
