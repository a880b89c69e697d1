package grpc

import (
	"context"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/services"
)

var (
	adminIdent = models.Identity{ID: "a1", Username: "root", Role: models.RoleAdmin}
	techIdent  = models.Identity{ID: "u1", Username: "tech1", Role: models.RoleUser}
)

// fakeSessions knows two sessions: "admin-token" and "tech-token".
type fakeSessions struct {
	lastMeta    models.TokenMetadata
	loggedOut   []string
	revokedUser string
	unavailable bool
}

func (f *fakeSessions) Login(_ context.Context, username, password string, meta models.TokenMetadata) (string, models.Identity, error) {
	f.lastMeta = meta
	if f.unavailable {
		return "", models.Identity{}, &common.StoreUnavailableError{Op: "put", Err: context.DeadlineExceeded}
	}
	if username == "tech1" && password == "pw" {
		return "tech-token", techIdent, nil
	}
	return "", models.Identity{}, common.ErrInvalidCredentials
}

func (f *fakeSessions) VerifySession(_ context.Context, raw string) (models.Identity, error) {
	if f.unavailable {
		return models.Identity{}, &common.StoreUnavailableError{Op: "get", Err: context.DeadlineExceeded}
	}
	switch raw {
	case "admin-token":
		return adminIdent, nil
	case "tech-token":
		return techIdent, nil
	case "revoked-token":
		return models.Identity{}, common.ErrRevokedToken
	}
	return models.Identity{}, common.ErrInvalidToken
}

func (f *fakeSessions) Logout(_ context.Context, raw string) error {
	f.loggedOut = append(f.loggedOut, raw)
	return nil
}

func (f *fakeSessions) BootstrapAdmin(_ context.Context, a services.AdminFields) (models.Identity, error) {
	if a.Password == "" {
		return models.Identity{}, common.ErrWeakInput
	}
	if a.Username != "root" {
		return models.Identity{}, common.ErrAlreadyBootstrapped
	}
	return adminIdent, nil
}

func (f *fakeSessions) RevokeUserSessions(_ context.Context, caller models.Identity, userID string) (int, error) {
	if caller.Role != models.RoleAdmin {
		return 0, common.ErrPermissionDenied
	}
	f.revokedUser = userID
	return 3, nil
}

func newTestServer(f *fakeSessions) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.Nop(), f)
}
