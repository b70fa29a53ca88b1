package auth

import "errors"

var (
	// ErrUnauthenticated covers every credential failure: unknown email,
	// wrong password, inactive account, missing/expired/revoked session.
	// Callers must not be able to tell these apart.
	ErrUnauthenticated = errors.New("authentication failed")

	// ErrForbidden means the session is valid but the caller lacks rights
	// over the specific resource.
	ErrForbidden = errors.New("forbidden")
)
