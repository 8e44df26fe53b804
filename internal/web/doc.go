// Package web serves the storefront client state over HTTP for browsers
// that cannot hold it themselves.
//
// Every visitor is identified by a signed cookie and gets a lazily created
// storefront.Client whose session, cart and favorites live in a shared
// storage backend under "visitor/<id>/". Catalog reads of all visitors go
// through one query cache, so concurrent page loads hit the upstream API
// once per resource. A cron job refreshes the product and category lists in
// the background.
//
// Responses use the upstream envelope:
//
//	{"success": true, "message": "ok", "data": {...}}
//	{"success": false, "message": "invalid input", "errors": {"email": "is required"}}
package web
