package api

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Error kinds. Every error returned by Client wraps exactly one of them,
// so callers branch with errors.Is.
var (
	ErrNetwork      = errors.New("api: network failure")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrValidation   = errors.New("api: validation failed")
	ErrNotFound     = errors.New("api: not found")
	ErrServer       = errors.New("api: server error")
)

// Error describes a failed call.
type Error struct {
	Kind    error             // one of the Err* kinds
	Status  int               // HTTP status, 0 when no response was received
	Message string            // server or validator message
	Fields  map[string]string // per-field messages for validation failures
	Err     error             // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		fmt.Fprintf(&b, "; %s %s", k, e.Fields[k])
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FieldErrors returns the per-field messages carried by err, or nil.
func FieldErrors(err error) map[string]string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Fields
	}
	return nil
}

// Message returns the human-readable part of err: the server message when
// there is one, the error text otherwise.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
