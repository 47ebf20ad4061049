package shared

import "errors"

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionInvalid indicates a missing, expired or tampered session token.
	ErrSessionInvalid = errors.New("session invalid")
)
