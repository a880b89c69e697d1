package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestInterceptor_Unprotected_AllowsWithoutToken(t *testing.T) {
	s := newTestServer(&fakeSessions{})

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: MethodLogin}
	handlerCalled := false

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(ctx, nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
}

func TestInterceptor_Protected_MissingToken(t *testing.T) {
	s := newTestServer(&fakeSessions{})

	info := &grpc.UnaryServerInfo{FullMethod: MethodRevokeUserSessions}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestInterceptor_Protected_RejectedToken(t *testing.T) {
	s := newTestServer(&fakeSessions{})

	info := &grpc.UnaryServerInfo{FullMethod: MethodRevokeUserSessions}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called for a revoked token")
		return nil, nil
	}

	for _, tok := range []string{"revoked-token", "garbage"} {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, tok))
		_, err := s.accessTokenInterceptor(ctx, nil, info, h)
		st, _ := status.FromError(err)
		if st.Code() != codes.Unauthenticated {
			t.Fatalf("%s: expected Unauthenticated, got %v", tok, err)
		}
		if st.Message() != common.PublicTokenMessage {
			t.Fatalf("%s: expected generic message, got %q", tok, st.Message())
		}
	}
}

func TestInterceptor_Protected_StoreUnavailable(t *testing.T) {
	s := newTestServer(&fakeSessions{unavailable: true})

	info := &grpc.UnaryServerInfo{FullMethod: MethodRevokeUserSessions}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, "admin-token"))
	h := func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil }

	_, err := s.accessTokenInterceptor(ctx, nil, info, h)
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestInterceptor_Protected_PutsIdentityIntoContext(t *testing.T) {
	s := newTestServer(&fakeSessions{})

	info := &grpc.UnaryServerInfo{FullMethod: MethodRevokeUserSessions}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, "admin-token"))

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		ident, ok := identityFromContext(ctx)
		if !ok {
			return nil, errors.New("identity missing")
		}
		return ident.ID, nil
	}

	resp, err := s.accessTokenInterceptor(ctx, nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != adminIdent.ID {
		t.Fatalf("unexpected identity: %v", resp)
	}
}

func TestToStatus(t *testing.T) {
	s := newTestServer(&fakeSessions{})
	ctx := context.Background()

	cases := map[error]codes.Code{
		common.ErrExpiredToken:        codes.Unauthenticated,
		common.ErrWrongTokenType:      codes.Unauthenticated,
		common.ErrInvalidCredentials:  codes.Unauthenticated,
		common.ErrAlreadyBootstrapped: codes.FailedPrecondition,
		common.ErrWeakInput:           codes.InvalidArgument,
		common.ErrUsernameTaken:       codes.AlreadyExists,
		common.ErrPermissionDenied:    codes.PermissionDenied,
		context.DeadlineExceeded:      codes.DeadlineExceeded,
		errors.New("boom"):            codes.Internal,
	}
	for err, want := range cases {
		if got := status.Code(s.toStatus(ctx, err)); got != want {
			t.Errorf("%v: got %v, want %v", err, got, want)
		}
	}
}
