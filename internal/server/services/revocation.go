package services

import (
	"context"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/cryptox"
	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/tokens"
)

// Revoker invalidates tokens ahead of their expiry.
type Revoker struct {
	store  tokens.Store
	logger logging.Logger
}

func NewRevoker(store tokens.Store, logger logging.Logger) *Revoker {
	return &Revoker{store: store, logger: logger}
}

// Logout revokes raw. It succeeds for unknown, expired and already revoked
// tokens alike. A store failure is logged, not returned; only a cancelled or
// expired caller context is reported.
func (r *Revoker) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := r.store.Revoke(ctx, cryptox.HashToken(raw)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.logger.Error(ctx, "logout: revoke failed", "error", err)
	}
	return nil
}

// Revoke revokes raw and reports store failures.
func (r *Revoker) Revoke(ctx context.Context, raw string) error {
	_, err := r.store.Revoke(ctx, cryptox.HashToken(raw))
	return err
}

// Consume revokes a single-use token. It fails with common.ErrRevokedToken
// unless this call is the one that revoked it, so of several concurrent
// consumers of one token exactly one succeeds.
func (r *Revoker) Consume(ctx context.Context, raw string) error {
	changed, err := r.store.Revoke(ctx, cryptox.HashToken(raw))
	if err != nil {
		return err
	}
	if !changed {
		return common.ErrRevokedToken
	}
	return nil
}

// RevokeAllForUser revokes every token of userID, of any type, and returns
// how many were active before.
func (r *Revoker) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := r.store.RevokeByUser(ctx, userID)
	if err != nil {
		return n, err
	}
	r.logger.Info(ctx, "revoked user tokens", "user_id", userID, "count", n)
	return n, nil
}
