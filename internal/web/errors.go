package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/storefront"
	"github.com/dmitrymomot/storefront/pkg/api"
	"github.com/dmitrymomot/storefront/pkg/cart"
	"github.com/dmitrymomot/storefront/pkg/favorites"
	"github.com/dmitrymomot/storefront/pkg/session"
)

var (
	ErrBadRequestBody = errors.New("web: malformed request body")
	ErrNoVisitor      = errors.New("web: no visitor in request context")
)

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// HTTPError is an error with the status and body it renders to.
type HTTPError struct {
	Err     error
	Fields  map[string]string
	Message string
	Code    int
}

func (e *HTTPError) Error() string { return e.Message }

func (e *HTTPError) Unwrap() error { return e.Err }

// toHTTPError maps client errors onto statuses.
func toHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	e := &HTTPError{Err: err, Code: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)}

	switch {
	case errors.Is(err, api.ErrValidation):
		e.Code = http.StatusUnprocessableEntity
		e.Message = api.Message(err)
		e.Fields = api.FieldErrors(err)
	case errors.Is(err, ErrBadRequestBody),
		errors.Is(err, cart.ErrInvalidLine),
		errors.Is(err, favorites.ErrInvalidEntry):
		e.Code = http.StatusUnprocessableEntity
		e.Message = err.Error()
	case errors.Is(err, storefront.ErrExceedsStock),
		errors.Is(err, storefront.ErrUnavailable):
		e.Code = http.StatusConflict
		e.Message = err.Error()
	case errors.Is(err, api.ErrUnauthorized),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrExpired):
		e.Code = http.StatusUnauthorized
		e.Message = api.Message(err)
	case errors.Is(err, api.ErrNotFound),
		errors.Is(err, cart.ErrNotInCart):
		e.Code = http.StatusNotFound
		e.Message = api.Message(err)
	case errors.Is(err, api.ErrNetwork):
		e.Code = http.StatusBadGateway
		e.Message = "upstream unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		e.Code = http.StatusGatewayTimeout
		e.Message = "request timed out"
	}

	if e.Message == "" {
		e.Message = http.StatusText(e.Code)
	}
	return e
}
