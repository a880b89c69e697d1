// Package tokens declares the token store contract and its backends:
// memory (ephemeral), file (atomic JSON journal), postgres and redis.
//
// Every backend is keyed by the SHA-256 hex digest of the raw token value
// (models.Token.Hash). Raw bearer tokens never reach a store.
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/server/models"
)

// DefaultPurgeBatch bounds how many tokens a single purge step removes
// before releasing locks or round-tripping to the backend again.
const DefaultPurgeBatch = 500

// Store persists tokens.
type Store interface {
	// Put inserts a new token. It fails with common.ErrDuplicateToken if a
	// token with the same hash exists. The write is durable when Put returns.
	Put(ctx context.Context, t *models.Token) error

	// Get returns the token stored under hash and whether it was found.
	Get(ctx context.Context, hash string) (models.Token, bool, error)

	// Revoke marks the token revoked and reports whether this call changed
	// it. Unknown or already revoked tokens are not an error; they report
	// false. Of concurrent Revoke calls on one token exactly one sees true.
	Revoke(ctx context.Context, hash string) (bool, error)

	// RevokeByUser revokes every token of userID and returns how many changed.
	RevokeByUser(ctx context.Context, userID string) (int, error)

	// RevokeByUserAndType revokes the tokens of userID that have type typ.
	RevokeByUserAndType(ctx context.Context, userID string, typ models.TokenType) (int, error)

	// Purge deletes revoked tokens and, unless revokedOnly, tokens whose
	// expiry lies strictly before before. It returns the number removed.
	Purge(ctx context.Context, before time.Time, revokedOnly bool) (int, error)

	// ListByUser returns every stored token of userID, oldest first.
	ListByUser(ctx context.Context, userID string) ([]models.Token, error)

	Close() error
}
