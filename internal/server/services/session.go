package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/cryptox"
	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/metrics"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/notify"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/users"
)

// SessionDeps are the collaborators of a SessionService.
type SessionDeps struct {
	Users    users.Repository
	Hasher   *cryptox.Hasher
	Issuer   *Issuer
	Verifier *Verifier
	Revoker  *Revoker
	Notifier notify.Notifier
	Logger   logging.Logger
	Metrics  *metrics.Metrics
}

// SessionService is the single entry point of the transports: login,
// session verification, logout, admin bootstrap and the password and email
// token flows.
type SessionService struct {
	users    users.Repository
	hasher   *cryptox.Hasher
	issuer   *Issuer
	verifier *Verifier
	revoker  *Revoker
	notifier notify.Notifier
	logger   logging.Logger
	metrics  *metrics.Metrics

	bootstrapMu sync.Mutex
}

func NewSessionService(d SessionDeps) *SessionService {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLogNotifier(d.Logger)
	}
	return &SessionService{
		users:    d.Users,
		hasher:   d.Hasher,
		issuer:   d.Issuer,
		verifier: d.Verifier,
		revoker:  d.Revoker,
		notifier: d.Notifier,
		logger:   d.Logger,
		metrics:  d.Metrics,
	}
}

// AdminFields describe the first administrator.
type AdminFields struct {
	Username string
	Email    string
	Password string
	FullName string
}

// Login checks username and password and issues a session token. Unknown
// users and wrong passwords both yield common.ErrInvalidCredentials after
// comparable work. Store outages are returned as such.
func (s *SessionService) Login(ctx context.Context, username, password string, meta models.TokenMetadata) (string, models.Identity, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyDummy(password)
			s.loginAttempt(ctx, username, meta, "unknown_user")
			return "", models.Identity{}, common.ErrInvalidCredentials
		}
		s.loginAttempt(ctx, username, meta, "error")
		return "", models.Identity{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.loginAttempt(ctx, username, meta, "bad_password")
		return "", models.Identity{}, common.ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	raw, _, err := s.issuer.Issue(ctx, user.ID, models.TokenTypeSession, meta)
	if err != nil {
		s.loginAttempt(ctx, username, meta, "error")
		return "", models.Identity{}, err
	}

	s.loginAttempt(ctx, username, meta, "ok")
	return raw, user.Identity(), nil
}

// loginAttempt records the outcome of a login. The detailed outcome stays
// server side; callers only ever see ErrInvalidCredentials.
func (s *SessionService) loginAttempt(ctx context.Context, username string, meta models.TokenMetadata, outcome string) {
	result := metrics.ResultInvalid
	switch outcome {
	case "ok":
		result = metrics.ResultOK
	case "error":
		result = metrics.ResultError
	}
	s.metrics.LoginAttempts.WithLabelValues(result).Inc()

	if outcome == "ok" {
		s.logger.Info(ctx, "login succeeded", "username", username, "origin_ip", meta.OriginIP)
		return
	}
	s.logger.Warn(ctx, "login failed", "username", username, "reason", outcome, "origin_ip", meta.OriginIP)
}

// upgradeHash replaces a legacy or weaker credential after a successful
// login. Failure only delays the upgrade to the next login.
func (s *SessionService) upgradeHash(ctx context.Context, user *models.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn(ctx, "credential rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash, cryptox.FormatBcrypt.String()); err != nil {
		s.logger.Warn(ctx, "credential rehash not stored", "user_id", user.ID, "error", err)
		return
	}
	s.logger.Info(ctx, "credential upgraded", "user_id", user.ID, "from", cryptox.DetectFormat(user.PasswordHash).String())
}

// VerifySession resolves a session token to its owner's identity.
func (s *SessionService) VerifySession(ctx context.Context, raw string) (models.Identity, error) {
	userID, err := s.verifier.Verify(ctx, raw, models.TokenTypeSession)
	if err != nil {
		return models.Identity{}, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "session of unknown user", "user_id", userID)
			return models.Identity{}, common.ErrInvalidToken
		}
		return models.Identity{}, err
	}
	return user.Identity(), nil
}

// Logout revokes a session token; see Revoker.Logout.
func (s *SessionService) Logout(ctx context.Context, raw string) error {
	return s.revoker.Logout(ctx, raw)
}

// BootstrapAdmin creates the first administrator. Once any admin exists it
// fails with common.ErrAlreadyBootstrapped. Calls are serialized in process;
// the relational directory also enforces a single admin with a unique index.
func (s *SessionService) BootstrapAdmin(ctx context.Context, f AdminFields) (models.Identity, error) {
	username := strings.TrimSpace(f.Username)
	if username == "" {
		return models.Identity{}, fmt.Errorf("%w: username is required", common.ErrWeakInput)
	}

	s.bootstrapMu.Lock()
	defer s.bootstrapMu.Unlock()

	n, err := s.users.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return models.Identity{}, err
	}
	if n > 0 {
		s.logger.Warn(ctx, "admin bootstrap refused: already bootstrapped", "username", username)
		return models.Identity{}, common.ErrAlreadyBootstrapped
	}

	hash, err := s.hasher.Hash(f.Password)
	if err != nil {
		return models.Identity{}, err
	}

	user, err := s.users.Create(ctx, &models.User{
		Username:      username,
		Email:         strings.TrimSpace(f.Email),
		FullName:      strings.TrimSpace(f.FullName),
		Role:          models.RoleAdmin,
		PasswordHash:  hash,
		HashAlgorithm: cryptox.FormatBcrypt.String(),
	})
	if err != nil {
		return models.Identity{}, err
	}

	s.logger.Info(ctx, "admin bootstrapped", "user_id", user.ID, "username", user.Username)
	return user.Identity(), nil
}

// RequestPasswordReset issues a password reset token for username and hands
// it to the notifier. It returns nil for unknown users and when delivery
// fails, so the response never reveals whether an account exists.
func (s *SessionService) RequestPasswordReset(ctx context.Context, username string, meta models.TokenMetadata) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Info(ctx, "password reset for unknown user", "username", username, "origin_ip", meta.OriginIP)
			return nil
		}
		return err
	}

	raw, tok, err := s.issuer.Issue(ctx, user.ID, models.TokenTypePasswordReset, meta)
	if err != nil {
		return err
	}

	err = s.notifier.Notify(ctx, notify.Notification{
		Kind:      notify.KindPasswordReset,
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Token:     raw,
		ExpiresAt: tok.ExpiresAt,
	})
	if err != nil {
		s.logger.Error(ctx, "password reset not delivered", "user_id", user.ID, "error", err)
		if rerr := s.revoker.Revoke(ctx, raw); rerr != nil {
			s.logger.Error(ctx, "undelivered reset token not revoked", "user_id", user.ID, "error", rerr)
		}
	}
	return nil
}

// ResetPassword consumes a password reset token: the token is revoked before
// the credential changes, and only the caller that revoked it proceeds. Then
// the credential is replaced and every other token of the user is revoked.
func (s *SessionService) ResetPassword(ctx context.Context, raw, newPassword string) error {
	userID, err := s.verifier.Verify(ctx, raw, models.TokenTypePasswordReset)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.revoker.Consume(ctx, raw); err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash, cryptox.FormatBcrypt.String()); err != nil {
		return err
	}
	if _, err := s.revoker.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("password changed but sessions not revoked: %w", err)
	}
	s.logger.Info(ctx, "password reset", "user_id", userID)
	return nil
}

// ChangePassword replaces the credential of an authenticated user after
// checking the old password, then revokes all of the user's tokens.
func (s *SessionService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidCredentials
		}
		return err
	}
	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		s.logger.Warn(ctx, "password change refused: wrong password", "user_id", userID)
		return common.ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash, cryptox.FormatBcrypt.String()); err != nil {
		return err
	}
	if _, err := s.revoker.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("password changed but sessions not revoked: %w", err)
	}
	return nil
}

// RequestEmailVerification sends an email verification token to the user.
// Already verified users get nothing.
func (s *SessionService) RequestEmailVerification(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}
	if user.Email == "" {
		return fmt.Errorf("%w: user has no email address", common.ErrWeakInput)
	}

	raw, tok, err := s.issuer.Issue(ctx, user.ID, models.TokenTypeEmailVerification, models.TokenMetadata{})
	if err != nil {
		return err
	}
	err = s.notifier.Notify(ctx, notify.Notification{
		Kind:      notify.KindEmailVerification,
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Token:     raw,
		ExpiresAt: tok.ExpiresAt,
	})
	if err != nil {
		s.logger.Error(ctx, "email verification not delivered", "user_id", user.ID, "error", err)
		if rerr := s.revoker.Revoke(ctx, raw); rerr != nil {
			s.logger.Error(ctx, "undelivered verification token not revoked", "user_id", user.ID, "error", rerr)
		}
		return err
	}
	return nil
}

// ConfirmEmail consumes an email verification token and marks the owner's
// address verified.
func (s *SessionService) ConfirmEmail(ctx context.Context, raw string) (models.Identity, error) {
	userID, err := s.verifier.Verify(ctx, raw, models.TokenTypeEmailVerification)
	if err != nil {
		return models.Identity{}, err
	}
	if err := s.revoker.Consume(ctx, raw); err != nil {
		return models.Identity{}, err
	}
	if err := s.users.MarkEmailVerified(ctx, userID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return models.Identity{}, common.ErrInvalidToken
		}
		return models.Identity{}, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.Identity{}, err
	}
	return user.Identity(), nil
}

// RevokeUserSessions revokes every token of userID on behalf of caller, who
// must be an admin.
func (s *SessionService) RevokeUserSessions(ctx context.Context, caller models.Identity, userID string) (int, error) {
	if caller.Role != models.RoleAdmin {
		return 0, common.ErrPermissionDenied
	}
	n, err := s.revoker.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "user sessions revoked by admin", "admin_id", caller.ID, "user_id", userID, "count", n)
	return n, nil
}
