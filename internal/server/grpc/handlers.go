package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/netx"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const maxUserAgentLen = 512

func tokenMeta(ctx context.Context) models.TokenMetadata {
	var remote string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	return models.TokenMetadata{
		OriginIP:  netx.ClientIP(remote, firstMetadata(ctx, common.ForwardedForHeaderName), ""),
		UserAgent: netx.TruncateUserAgent(firstMetadata(ctx, common.UserAgentHeaderName), maxUserAgentLen),
	}
}

func (s *GRPCServer) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	raw, ident, err := s.sessions.Login(ctx, strings.TrimSpace(req.Username), req.Password, tokenMeta(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &LoginResponse{Token: raw, User: ident}, nil
}

func (s *GRPCServer) VerifyToken(ctx context.Context, req *VerifyTokenRequest) (*VerifyTokenResponse, error) {
	ident, err := s.sessions.VerifySession(ctx, req.Token)
	if err != nil {
		if common.IsTokenValidityError(err) {
			return &VerifyTokenResponse{Valid: false}, nil
		}
		return nil, s.toStatus(ctx, err)
	}
	return &VerifyTokenResponse{Valid: true, User: &ident}, nil
}

func (s *GRPCServer) LogoutToken(ctx context.Context, req *LogoutTokenRequest) (*LogoutTokenResponse, error) {
	if err := s.sessions.Logout(ctx, req.Token); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &LogoutTokenResponse{Success: true}, nil
}

func (s *GRPCServer) CreateAdmin(ctx context.Context, req *CreateAdminRequest) (*CreateAdminResponse, error) {
	ident, err := s.sessions.BootstrapAdmin(ctx, services.AdminFields{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &CreateAdminResponse{User: ident}, nil
}

func (s *GRPCServer) RevokeUserSessions(ctx context.Context, req *RevokeUserSessionsRequest) (*RevokeUserSessionsResponse, error) {
	caller, ok := identityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user id is required")
	}
	n, err := s.sessions.RevokeUserSessions(ctx, caller, req.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &RevokeUserSessionsResponse{Revoked: n}, nil
}
