package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeSessions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", newTestServer(&fakeSessions{}).logger, &fakeSessions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

// dial starts the service on an in-memory listener.
func dial(t *testing.T, f *fakeSessions) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := newTestServer(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
		grpc.WithUserAgent("field-tablet/2.3"),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return conn
}

func TestAuthService_EndToEnd(t *testing.T) {
	f := &fakeSessions{}
	conn := dial(t, f)
	ctx := context.Background()

	var login LoginResponse
	mdCtx := metadata.AppendToOutgoingContext(ctx, common.ForwardedForHeaderName, "203.0.113.9")
	require.NoError(t, conn.Invoke(mdCtx, MethodLogin, &LoginRequest{Username: "tech1", Password: "pw"}, &login))
	assert.Equal(t, "tech-token", login.Token)
	assert.Equal(t, techIdent, login.User)
	assert.Equal(t, "203.0.113.9", f.lastMeta.OriginIP)
	assert.Contains(t, f.lastMeta.UserAgent, "field-tablet/2.3")

	err := conn.Invoke(ctx, MethodLogin, &LoginRequest{Username: "tech1", Password: "bad"}, &login)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, common.PublicCredentialsMessage, st.Message())

	var verify VerifyTokenResponse
	require.NoError(t, conn.Invoke(ctx, MethodVerifyToken, &VerifyTokenRequest{Token: "tech-token"}, &verify))
	assert.True(t, verify.Valid)
	require.NotNil(t, verify.User)
	assert.Equal(t, "u1", verify.User.ID)

	verify = VerifyTokenResponse{}
	require.NoError(t, conn.Invoke(ctx, MethodVerifyToken, &VerifyTokenRequest{Token: "revoked-token"}, &verify))
	assert.False(t, verify.Valid)
	assert.Nil(t, verify.User)

	var logout LogoutTokenResponse
	require.NoError(t, conn.Invoke(ctx, MethodLogoutToken, &LogoutTokenRequest{Token: "tech-token"}, &logout))
	assert.True(t, logout.Success)
	assert.Equal(t, []string{"tech-token"}, f.loggedOut)

	var admin CreateAdminResponse
	require.NoError(t, conn.Invoke(ctx, MethodCreateAdmin, &CreateAdminRequest{Username: "root", Password: "pw"}, &admin))
	assert.Equal(t, adminIdent, admin.User)

	err = conn.Invoke(ctx, MethodCreateAdmin, &CreateAdminRequest{Username: "second", Password: "pw"}, &admin)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestAuthService_RevokeUserSessions(t *testing.T) {
	f := &fakeSessions{}
	conn := dial(t, f)
	ctx := context.Background()
	req := &RevokeUserSessionsRequest{UserID: "u1"}

	var resp RevokeUserSessionsResponse
	err := conn.Invoke(ctx, MethodRevokeUserSessions, req, &resp)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	techCtx := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, "tech-token")
	err = conn.Invoke(techCtx, MethodRevokeUserSessions, req, &resp)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	adminCtx := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, "admin-token")
	require.NoError(t, conn.Invoke(adminCtx, MethodRevokeUserSessions, req, &resp))
	assert.Equal(t, 3, resp.Revoked)
	assert.Equal(t, "u1", f.revokedUser)

	err = conn.Invoke(adminCtx, MethodRevokeUserSessions, &RevokeUserSessionsRequest{}, &resp)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
