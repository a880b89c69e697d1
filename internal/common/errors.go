// Package common defines shared constants, sentinel errors and small helpers
// used across the fieldauth server. Callers should use errors.Is to match
// these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Credential errors. Unknown user and wrong password both map here.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrWeakInput           = errors.New("weak input")
	ErrAlreadyBootstrapped = errors.New("already bootstrapped")
	ErrUsernameTaken       = errors.New("username taken")
	ErrPermissionDenied    = errors.New("permission denied")

	// Token validity errors. See IsTokenValidityError.
	ErrInvalidToken   = errors.New("invalid token")
	ErrRevokedToken   = errors.New("token revoked")
	ErrExpiredToken   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")

	// Token issuance errors.
	ErrDuplicateToken    = errors.New("duplicate token")
	ErrIssuanceExhausted = errors.New("token issuance exhausted")

	// Availability errors.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrConfig = errors.New("invalid config")
)

// PublicTokenMessage is the only text untrusted callers ever see for a token
// that failed validation, whatever the underlying reason.
const PublicTokenMessage = "invalid or expired token"

// PublicCredentialsMessage is returned to callers for every failed login.
const PublicCredentialsMessage = "invalid credentials"

// IsTokenValidityError reports whether err is one of the four token validity
// failures (invalid, revoked, expired, wrong type).
func IsTokenValidityError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrRevokedToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrWrongTokenType)
}

// StoreUnavailableError reports a backing store that could not answer in time
// or could not be reached. It matches ErrStoreUnavailable via errors.Is.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

// Unavailable wraps err as a StoreUnavailableError for operation op.
func Unavailable(op string, err error) error {
	return &StoreUnavailableError{Op: op, Err: err}
}
