package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/cryptox"
	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/metrics"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/tokens"
)

// Verifier validates presented tokens.
type Verifier struct {
	store   tokens.Store
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewVerifier(store tokens.Store, logger logging.Logger, m *metrics.Metrics) *Verifier {
	if m == nil {
		m = metrics.New()
	}
	return &Verifier{store: store, logger: logger, metrics: m, now: time.Now}
}

// Verify resolves raw to its owner. Checks run in a fixed order: existence,
// revocation, expiry (expired from the instant now reaches ExpiresAt), then
// type. Failures are common.ErrInvalidToken, ErrRevokedToken,
// ErrExpiredToken or ErrWrongTokenType; store failures pass through
// unchanged and are never reported as an invalid token.
func (v *Verifier) Verify(ctx context.Context, raw string, expected models.TokenType) (string, error) {
	tok, err := v.lookup(ctx, raw, expected)
	v.metrics.Verifications.WithLabelValues(verifyResult(err)).Inc()
	if err != nil {
		if common.IsTokenValidityError(err) {
			v.logger.Debug(ctx, "token rejected", "reason", err.Error(), "expected_type", expected)
		} else {
			v.logger.Error(ctx, "token verification failed", "error", err)
		}
		return "", err
	}
	return tok.UserID, nil
}

func (v *Verifier) lookup(ctx context.Context, raw string, expected models.TokenType) (models.Token, error) {
	if raw == "" {
		return models.Token{}, common.ErrInvalidToken
	}
	tok, found, err := v.store.Get(ctx, cryptox.HashToken(raw))
	if err != nil {
		return models.Token{}, err
	}
	switch {
	case !found:
		return models.Token{}, common.ErrInvalidToken
	case tok.Revoked:
		return models.Token{}, common.ErrRevokedToken
	case tok.ExpiredAt(v.now()):
		return models.Token{}, common.ErrExpiredToken
	case tok.Type != expected:
		return models.Token{}, common.ErrWrongTokenType
	case tok.UserID == "":
		// ownerless entries from older token files never authenticate
		return models.Token{}, common.ErrInvalidToken
	}
	return tok, nil
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, common.ErrInvalidToken):
		return metrics.ResultInvalid
	case errors.Is(err, common.ErrRevokedToken):
		return metrics.ResultRevoked
	case errors.Is(err, common.ErrExpiredToken):
		return metrics.ResultExpired
	case errors.Is(err, common.ErrWrongTokenType):
		return metrics.ResultWrongType
	case errors.Is(err, common.ErrStoreUnavailable):
		return metrics.ResultUnavailable
	}
	return metrics.ResultError
}
