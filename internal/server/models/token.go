// Package models contains the persistent records of the auth subsystem.
package models

import (
	"fmt"
	"time"
)

// TokenType constrains where a token may be used.
type TokenType string

const (
	TokenTypeSession           TokenType = "session"
	TokenTypeEmailVerification TokenType = "email_verification"
	TokenTypePasswordReset     TokenType = "password_reset"
)

// TokenTypes lists every supported token type.
var TokenTypes = []TokenType{TokenTypeSession, TokenTypeEmailVerification, TokenTypePasswordReset}

func (t TokenType) Valid() bool {
	switch t {
	case TokenTypeSession, TokenTypeEmailVerification, TokenTypePasswordReset:
		return true
	}
	return false
}

// Exclusive reports whether a user holds at most one live token of this
// type: issuing a new one revokes the earlier ones.
func (t TokenType) Exclusive() bool {
	return t == TokenTypeEmailVerification || t == TokenTypePasswordReset
}

// ParseTokenType validates s as a TokenType.
func ParseTokenType(s string) (TokenType, error) {
	t := TokenType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown token type %q", s)
	}
	return t, nil
}

// Token is a stored bearer token. Hash is the SHA-256 hex digest of the raw
// token value; the raw value itself is never persisted.
type Token struct {
	ID        string
	Hash      string
	UserID    string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	OriginIP  string
	UserAgent string
}

// ExpiredAt reports whether the token is expired at now. A token is expired
// from the instant now reaches ExpiresAt.
func (t *Token) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Purgeable reports whether a sweep with cutoff before may delete the token.
// Revoked tokens always qualify; expired ones only when revokedOnly is false
// and they expired strictly before the cutoff.
func (t *Token) Purgeable(before time.Time, revokedOnly bool) bool {
	if t.Revoked {
		return true
	}
	return !revokedOnly && t.ExpiresAt.Before(before)
}

// TokenMetadata is optional device information captured at issuance.
type TokenMetadata struct {
	OriginIP  string
	UserAgent string
}
