package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Registration
	ErrDuplicateEmail       = errors.New("email is already registered")
	ErrDuplicateDisplayName = errors.New("nickname is already taken")
	ErrTransactionFailed    = errors.New("store transaction failed")

	// Login / logout
	ErrTooManyAttempts    = errors.New("too many login attempts, try again later")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrAccountNotFound    = errors.New("account not found")
)
