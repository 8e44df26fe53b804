// Package session holds the client's authenticated identity.
//
// A [Manager] logs in through a [Gateway], decodes the returned JWT for
// display purposes (the signature is never checked here; the server does
// that) and mirrors the session to durable storage under the auth/* keys.
// On startup [Manager.Restore] brings a persisted session back; corrupted
// or expired data is discarded instead of failing.
//
// The API client's unauthorized hook is wired to [Manager.Expire], so a 401
// on any authenticated call drops the session and its stored token:
//
//	var sessions *session.Manager
//	client := api.New(baseURL,
//		api.WithTokenSource(func() string { return sessions.Token() }),
//		api.WithUnauthorizedHandler(func(ctx context.Context) { sessions.Expire(ctx) }),
//	)
//	sessions = session.NewManager(client, store)
//	_ = sessions.Restore(ctx)
package session
