package session

import "errors"

var (
	// ErrInvalidToken is returned when a token is not a structurally valid JWT.
	ErrInvalidToken = errors.New("session: invalid token")

	// ErrExpired is returned when the server hands out a token that has
	// already expired.
	ErrExpired = errors.New("session: token expired")
)
