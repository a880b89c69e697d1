package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const identityKey ctxKey = "identity"

// protectedMethods require a valid session in the access_token metadata.
var protectedMethods = map[string]bool{
	MethodRevokeUserSessions: true,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if protectedMethods[info.FullMethod] {

		accessToken := firstMetadata(ctx, common.AccessTokenHeaderName)
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		ident, err := s.sessions.VerifySession(ctx, accessToken)
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}

		ctx = context.WithValue(ctx, identityKey, ident)

	}

	return handler(ctx, req)
}

func identityFromContext(ctx context.Context) (models.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(models.Identity)
	return ident, ok
}

func firstMetadata(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// toStatus maps facade errors to gRPC statuses. Validity failures all share
// one generic message.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case common.IsTokenValidityError(err):
		return status.Error(codes.Unauthenticated, common.PublicTokenMessage)
	case errors.Is(err, common.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, common.PublicCredentialsMessage)
	case errors.Is(err, common.ErrAlreadyBootstrapped):
		return status.Error(codes.FailedPrecondition, "already bootstrapped")
	case errors.Is(err, common.ErrWeakInput):
		return status.Error(codes.InvalidArgument, "username and password are required")
	case errors.Is(err, common.ErrUsernameTaken):
		return status.Error(codes.AlreadyExists, "username taken")
	case errors.Is(err, common.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, common.ErrStoreUnavailable):
		s.logger.Error(ctx, "store unavailable", "error", err)
		return status.Error(codes.Unavailable, "service unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(ctx, "request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
