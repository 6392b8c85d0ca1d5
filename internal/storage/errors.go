package storage

import "errors"

// Errors returned by the services. Handlers map them to HTTP statuses.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("not the owner")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailPwdRequired   = errors.New("email and password are required")
)
