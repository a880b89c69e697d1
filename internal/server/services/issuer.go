// Package services contains the server-side business logic: token issuance,
// verification, revocation and the expiry sweep, composed by SessionService
// into the login/verify/logout/bootstrap flows the transports call.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/cryptox"
	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/netx"
	"github.com/dmitrijs2005/fieldauth/internal/server/metrics"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/tokens"
	"github.com/google/uuid"
)

// MaxIssueAttempts bounds token generation retries on hash collisions.
const MaxIssueAttempts = 3

const maxUserAgentLen = 512

// DefaultTTLs are the token lifetimes used when none are configured.
var DefaultTTLs = map[models.TokenType]time.Duration{
	models.TokenTypeSession:           24 * time.Hour,
	models.TokenTypeEmailVerification: 24 * time.Hour,
	models.TokenTypePasswordReset:     time.Hour,
}

// Issuer creates tokens and persists them before handing them out.
type Issuer struct {
	store   tokens.Store
	ttls    map[models.TokenType]time.Duration
	logger  logging.Logger
	metrics *metrics.Metrics

	now       func() time.Time
	randToken func() (string, error)
}

// NewIssuer builds an Issuer. Types missing from ttls fall back to DefaultTTLs.
func NewIssuer(store tokens.Store, ttls map[models.TokenType]time.Duration, logger logging.Logger, m *metrics.Metrics) *Issuer {
	merged := make(map[models.TokenType]time.Duration, len(DefaultTTLs))
	for typ, ttl := range DefaultTTLs {
		merged[typ] = ttl
	}
	for typ, ttl := range ttls {
		if ttl > 0 {
			merged[typ] = ttl
		}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Issuer{
		store:     store,
		ttls:      merged,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		randToken: common.MakeRandToken,
	}
}

// TTL returns the lifetime of tokens of typ.
func (i *Issuer) TTL(typ models.TokenType) time.Duration { return i.ttls[typ] }

// Issue generates a token for userID and stores it. The raw value is
// returned exactly once; the store only sees its digest. Issue returns only
// after the store has durably accepted the token.
//
// For exclusive types the user's earlier tokens of the same type are revoked
// first.
func (i *Issuer) Issue(ctx context.Context, userID string, typ models.TokenType, meta models.TokenMetadata) (string, models.Token, error) {
	if !typ.Valid() {
		return "", models.Token{}, fmt.Errorf("issue token: unknown token type %q", typ)
	}
	if userID == "" {
		return "", models.Token{}, errors.New("issue token: empty user id")
	}

	if typ.Exclusive() {
		n, err := i.store.RevokeByUserAndType(ctx, userID, typ)
		if err != nil {
			return "", models.Token{}, err
		}
		if n > 0 {
			i.logger.Info(ctx, "superseded earlier tokens", "user_id", userID, "type", typ, "count", n)
		}
	}

	for attempt := 1; attempt <= MaxIssueAttempts; attempt++ {
		raw, err := i.randToken()
		if err != nil {
			return "", models.Token{}, fmt.Errorf("issue token: %w", err)
		}

		issuedAt := i.now().UTC().Truncate(time.Millisecond)
		tok := models.Token{
			ID:        uuid.NewString(),
			Hash:      cryptox.HashToken(raw),
			UserID:    userID,
			Type:      typ,
			IssuedAt:  issuedAt,
			ExpiresAt: issuedAt.Add(i.ttls[typ]),
			OriginIP:  meta.OriginIP,
			UserAgent: netx.TruncateUserAgent(meta.UserAgent, maxUserAgentLen),
		}

		err = i.store.Put(ctx, &tok)
		if errors.Is(err, common.ErrDuplicateToken) {
			i.logger.Warn(ctx, "token collision, regenerating", "attempt", attempt, "type", typ)
			continue
		}
		if err != nil {
			return "", models.Token{}, err
		}

		i.metrics.TokensIssued.WithLabelValues(string(typ)).Inc()
		return raw, tok, nil
	}

	i.logger.Error(ctx, "token issuance exhausted", "type", typ, "attempts", MaxIssueAttempts)
	return "", models.Token{}, common.ErrIssuanceExhausted
}
