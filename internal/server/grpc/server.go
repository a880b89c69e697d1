// Package grpc serves the session facade as the fieldauth.v1.Auth gRPC
// service for internal callers.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/services"
	"google.golang.org/grpc"
)

// Sessions is the part of services.SessionService served over gRPC.
type Sessions interface {
	Login(ctx context.Context, username, password string, meta models.TokenMetadata) (string, models.Identity, error)
	VerifySession(ctx context.Context, raw string) (models.Identity, error)
	Logout(ctx context.Context, raw string) error
	BootstrapAdmin(ctx context.Context, f services.AdminFields) (models.Identity, error)
	RevokeUserSessions(ctx context.Context, caller models.Identity, userID string) (int, error)
}

type GRPCServer struct {
	address  string
	sessions Sessions
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, sessions Sessions) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		sessions: sessions,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	RegisterAuthServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
