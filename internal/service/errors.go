package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates required input fields are missing.
	ErrValidation = errors.New("email and password required")
	// ErrPasswordTooLong is a validation failure for passwords bcrypt cannot hash.
	ErrPasswordTooLong = fmt.Errorf("%w: password exceeds 72 bytes", ErrValidation)
	// ErrDuplicateUser is returned when attempting to sign up with a registered email.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is the single outcome for any session token that fails verification.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConfiguration indicates the signing secret is not configured.
	ErrConfiguration = errors.New("signing secret is not configured")
	// ErrInternal wraps unexpected persistence or runtime faults.
	ErrInternal = errors.New("internal error")
)

func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
