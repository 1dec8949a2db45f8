package auth

import "errors"

// Domain errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrNoSecret     = errors.New("no signing secret configured")
)
