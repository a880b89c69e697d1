package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_ExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := Token{IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)}

	assert.False(t, tok.ExpiredAt(issued.Add(time.Hour-time.Nanosecond)))
	assert.True(t, tok.ExpiredAt(issued.Add(time.Hour)), "expired exactly at expiresAt")
	assert.True(t, tok.ExpiredAt(issued.Add(2*time.Hour)))
}

func TestTokenType_Exclusive(t *testing.T) {
	assert.False(t, TokenTypeSession.Exclusive())
	assert.True(t, TokenTypePasswordReset.Exclusive())
	assert.True(t, TokenTypeEmailVerification.Exclusive())
}

func TestToken_Purgeable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	active := Token{ExpiresAt: now.Add(time.Minute)}
	expired := Token{ExpiresAt: now.Add(-time.Minute)}
	revokedActive := Token{ExpiresAt: now.Add(time.Hour), Revoked: true}

	assert.False(t, active.Purgeable(now, false))
	assert.True(t, expired.Purgeable(now, false))
	assert.False(t, expired.Purgeable(now, true))
	assert.True(t, revokedActive.Purgeable(now, true))
	assert.False(t, expired.Purgeable(now.Add(-time.Minute), false), "cutoff equal to expiry keeps it")
}

func TestParseTokenType(t *testing.T) {
	for _, tt := range TokenTypes {
		got, err := ParseTokenType(string(tt))
		require.NoError(t, err)
		assert.Equal(t, tt, got)
	}
	_, err := ParseTokenType("refresh")
	assert.Error(t, err)
}

func TestUser_Identity(t *testing.T) {
	u := &User{ID: "u1", Username: "ann", Email: "ann@example.com", FullName: "Ann Lee", Role: RoleAdmin, PasswordHash: "secret"}
	assert.Equal(t, Identity{ID: "u1", Username: "ann", Email: "ann@example.com", FullName: "Ann Lee", Role: "admin"}, u.Identity())
}
