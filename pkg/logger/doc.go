// Package logger builds the slog loggers used across the storefront.
//
// [New] takes a [Config] (level, json or text format, optional Sentry DSN)
// and a list of [Extractor] functions. Extractors read request-scoped values
// from the context on every log call:
//
//	requestID := func(ctx context.Context) (slog.Attr, bool) {
//		id, ok := ctx.Value(requestIDKey{}).(string)
//		return slog.String("request_id", id), ok
//	}
//
//	log, flush := logger.New(logger.Config{Level: "debug", Format: "text"}, requestID)
//	defer flush(2 * time.Second)
//
// When SentryDSN is set, records go to both the local handler and Sentry:
// errors become issues and warnings are kept as searchable logs. A Sentry
// init failure is logged and the logger falls back to local output.
package logger
