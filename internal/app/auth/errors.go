package auth

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is the parent of every session failure. Clients only
// need to know "show the login screen"; the specific cause is for logs.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

var (
	ErrMissingToken = fmt.Errorf("%w: token not provided", ErrUnauthenticated)
	ErrInvalidToken = fmt.Errorf("%w: token invalid", ErrUnauthenticated)
	ErrExpiredToken = fmt.Errorf("%w: token expired", ErrUnauthenticated)
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password so responses never enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrDuplicateEmail     = errors.New("auth: email already registered")
	// ErrMissingCredentials rejects empty fields and passwords bcrypt
	// cannot hash (longer than 72 bytes).
	ErrMissingCredentials = errors.New("auth: email and password are required")
)
