// Package client is the gRPC client of the fieldauth.v1.Auth service used by
// other internal services to log users in and verify session tokens.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	authrpc "github.com/dmitrijs2005/fieldauth/internal/server/grpc"
)

type AuthClient struct {
	endpointURL string
	conn        *grpc.ClientConn

	mu          sync.RWMutex
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *AuthClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	if token := s.Token(); token != "" {
		ctx = withAccessToken(ctx, token)
	}

	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewAuthClient connects lazily to endpointURL. Extra options are appended
// to the defaults (insecure transport, JSON codec).
func NewAuthClient(endpointURL string, opts ...grpc.DialOption) (*AuthClient, error) {
	c := &AuthClient{endpointURL: endpointURL}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(authrpc.CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// Token returns the session token obtained by the last Login.
func (s *AuthClient) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// SetToken makes later calls authenticate with token.
func (s *AuthClient) SetToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

func (s *AuthClient) Login(ctx context.Context, username, password string) (models.Identity, error) {
	var resp authrpc.LoginResponse
	if err := s.conn.Invoke(ctx, authrpc.MethodLogin, &authrpc.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return models.Identity{}, s.mapError(err)
	}
	s.SetToken(resp.Token)
	return resp.User, nil
}

// VerifyToken reports whether token is a valid session and whose it is.
func (s *AuthClient) VerifyToken(ctx context.Context, token string) (models.Identity, bool, error) {
	var resp authrpc.VerifyTokenResponse
	if err := s.conn.Invoke(ctx, authrpc.MethodVerifyToken, &authrpc.VerifyTokenRequest{Token: token}, &resp); err != nil {
		return models.Identity{}, false, s.mapError(err)
	}
	if !resp.Valid || resp.User == nil {
		return models.Identity{}, false, nil
	}
	return *resp.User, true, nil
}

// Logout revokes the client's own session token and forgets it.
func (s *AuthClient) Logout(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return nil
	}
	var resp authrpc.LogoutTokenResponse
	if err := s.conn.Invoke(ctx, authrpc.MethodLogoutToken, &authrpc.LogoutTokenRequest{Token: token}, &resp); err != nil {
		return s.mapError(err)
	}
	s.SetToken("")
	return nil
}

func (s *AuthClient) CreateAdmin(ctx context.Context, f services.AdminFields) (models.Identity, error) {
	req := &authrpc.CreateAdminRequest{Username: f.Username, Email: f.Email, Password: f.Password, FullName: f.FullName}
	var resp authrpc.CreateAdminResponse
	if err := s.conn.Invoke(ctx, authrpc.MethodCreateAdmin, req, &resp); err != nil {
		return models.Identity{}, s.mapError(err)
	}
	return resp.User, nil
}

// RevokeUserSessions needs an admin session (see Login).
func (s *AuthClient) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	var resp authrpc.RevokeUserSessionsResponse
	if err := s.conn.Invoke(ctx, authrpc.MethodRevokeUserSessions, &authrpc.RevokeUserSessionsRequest{UserID: userID}, &resp); err != nil {
		return 0, s.mapError(err)
	}
	return resp.Revoked, nil
}

func (s *AuthClient) Close() error {
	return s.conn.Close()
}

func (s *AuthClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.PermissionDenied:
		return common.ErrPermissionDenied
	case codes.FailedPrecondition:
		return common.ErrAlreadyBootstrapped
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrWeakInput, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
