package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fieldauth.v1.Auth"

// Full method names, as seen by interceptors.
const (
	MethodLogin              = "/" + ServiceName + "/Login"
	MethodVerifyToken        = "/" + ServiceName + "/VerifyToken"
	MethodLogoutToken        = "/" + ServiceName + "/LogoutToken"
	MethodCreateAdmin        = "/" + ServiceName + "/CreateAdmin"
	MethodRevokeUserSessions = "/" + ServiceName + "/RevokeUserSessions"
)

// AuthServer is the server API of fieldauth.v1.Auth.
type AuthServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	VerifyToken(context.Context, *VerifyTokenRequest) (*VerifyTokenResponse, error)
	LogoutToken(context.Context, *LogoutTokenRequest) (*LogoutTokenResponse, error)
	CreateAdmin(context.Context, *CreateAdminRequest) (*CreateAdminResponse, error)
	RevokeUserSessions(context.Context, *RevokeUserSessionsRequest) (*RevokeUserSessionsResponse, error)
}

// authServiceDesc stands in for protoc output; messages travel through the
// JSON codec.
var authServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", AuthServer.Login),
		unary("VerifyToken", AuthServer.VerifyToken),
		unary("LogoutToken", AuthServer.LogoutToken),
		unary("CreateAdmin", AuthServer.CreateAdmin),
		unary("RevokeUserSessions", AuthServer.RevokeUserSessions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fieldauth/v1/auth",
}

// RegisterAuthServer registers srv on s.
func RegisterAuthServer(s grpc.ServiceRegistrar, srv AuthServer) {
	s.RegisterService(&authServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(AuthServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AuthServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
