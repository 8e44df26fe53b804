package web

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/storefront/pkg/id"
	"github.com/dmitrymomot/storefront/pkg/logger"
)

type (
	requestIDKey struct{}
	visitorIDKey struct{}
	leaseKey     struct{}
	scopeKey     struct{}
)

// scope is filled in by inner middleware for the request log line.
type scope struct {
	visitorID string
}

// requestIDHeaders are checked in order for an upstream request ID.
var requestIDHeaders = []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID"}

const stackSize = 4096

// requestID keeps an upstream request ID or assigns a ULID, and echoes it
// in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqID string
		for _, h := range requestIDHeaders {
			if v := r.Header.Get(h); v != "" {
				reqID = v
				break
			}
		}
		if reqID == "" {
			reqID = id.NewULID()
		}

		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)))
	})
}

// RequestID returns the request ID stored by the server, or "".
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// VisitorID returns the visitor ID of the request, or "".
func VisitorID(ctx context.Context) string {
	if v, _ := ctx.Value(visitorIDKey{}).(string); v != "" {
		return v
	}
	if sc, _ := ctx.Value(scopeKey{}).(*scope); sc != nil {
		return sc.visitorID
	}
	return ""
}

// RequestIDExtractor adds "request_id" to records logged with a request context.
func RequestIDExtractor() logger.Extractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if v := RequestID(ctx); v != "" {
			return slog.String("request_id", v), true
		}
		return slog.Attr{}, false
	}
}

// VisitorIDExtractor adds "visitor_id" to records logged with a request context.
func VisitorIDExtractor() logger.Extractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if v := VisitorID(ctx); v != "" {
			return slog.String("visitor_id", v), true
		}
		return slog.Attr{}, false
	}
}

// recoverer turns a handler panic into a logged 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			stack := make([]byte, stackSize)
			stack = stack[:runtime.Stack(stack, false)]
			s.logger.ErrorContext(r.Context(), "panic recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(stack)),
			)
			s.renderError(w, r, &PanicError{Value: rec, Stack: stack})
		}()

		next.ServeHTTP(w, r)
	})
}

// timeout bounds the request context. Handlers observe it through the
// API calls they make.
func timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger logs one line per request after it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(context.WithValue(r.Context(), scopeKey{}, &scope{}))

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.LogAttrs(r.Context(), level, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_ip", r.RemoteAddr),
		)
	})
}

// visitor resolves the visitor cookie, issuing a fresh ID when it is
// missing or fails verification. A client leased by a handler is
// released when the request returns.
func (s *Server) visitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vid, err := s.cookies.Read(r, VisitorCookie)
		if err != nil || !id.IsVisitorID(vid) {
			vid = id.NewVisitorID()
			s.cookies.Write(w, VisitorCookie, vid, int(s.cfg.cookieMaxAge.Seconds()))
		}
		if sc, _ := r.Context().Value(scopeKey{}).(*scope); sc != nil {
			sc.visitorID = vid
		}

		l := &lease{}
		defer l.done()

		ctx := context.WithValue(r.Context(), visitorIDKey{}, vid)
		ctx = context.WithValue(ctx, leaseKey{}, l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
