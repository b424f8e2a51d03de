package errors

import (
	"errors"
	"fmt"
)

// Common error types for the identity & access security core
var (
	// Authentication errors
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrTokenMalformed = errors.New("malformed token")
	ErrWrongTokenType = errors.New("wrong token type")

	// Refresh token errors
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrRefreshExpired  = errors.New("refresh token expired")

	// Authorization errors
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrInvalidRole             = errors.New("invalid role")

	// Account security errors
	ErrAccountLocked      = errors.New("account locked")
	ErrSuspiciousActivity = errors.New("suspicious activity detected")

	// MFA errors
	ErrMFARequired        = errors.New("mfa required")
	ErrMFAInvalidCode     = errors.New("invalid mfa code")
	ErrMFANotConfigured   = errors.New("mfa not configured")
	ErrMFAAlreadyEnabled  = errors.New("mfa already enabled")
	ErrBackupCodeConsumed = errors.New("backup code already used")

	// ErrBackupCodesExhausted is informational: the caller should prompt
	// the user to regenerate; it never fails a request on its own.
	ErrBackupCodesExhausted = errors.New("backup codes exhausted")

	// ErrConfiguration is fatal at startup; nothing should accept
	// traffic after one is returned.
	ErrConfiguration = errors.New("configuration error")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
