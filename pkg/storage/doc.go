// Package storage provides durable key-value persistence for client state.
//
// The storefront client persists its session token, decoded user claims,
// cart lines and favorites under short slash-separated keys. Any backend
// implementing [Storage] can hold them:
//
//   - [NewFile]: one file per key under $XDG_CONFIG_HOME/storefront (CLI default)
//   - [NewRedis]: shared state for the backend-for-frontend server
//   - [NewS3]: S3-compatible object storage
//   - [NewMemory]: tests and ephemeral clients
//
// # Namespaces
//
// [Namespace] scopes a backend to a key prefix, so one Redis database can
// hold the state of many visitors:
//
//	shared := storage.NewRedis(client, "storefront", 30*24*time.Hour)
//	visitor := storage.Namespace(shared, "visitor/"+visitorID)
//	visitor.Set(ctx, "auth/token", []byte(token)) // key: storefront:visitor/<id>/auth/token
//
// # Errors
//
// Get returns [ErrNotFound] for missing keys. Keys containing empty, "." or
// ".." segments are rejected with [ErrInvalidKey] by the file and S3 backends.
package storage
