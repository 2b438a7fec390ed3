package auth

import "errors"

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, wrong token
	// kinds and revoked tokens. Callers must not tell these apart to clients.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrNoSecret     = errors.New("jwt secret is required")

	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)
