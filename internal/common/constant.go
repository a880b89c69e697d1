package common

// AccessTokenHeaderName is the gRPC metadata key used to carry a session
// token on inbound requests.
const AccessTokenHeaderName = "access_token"

// UserAgentHeaderName and ForwardedForHeaderName are read to fill token
// metadata when a session is issued.
const (
	UserAgentHeaderName    = "user-agent"
	ForwardedForHeaderName = "x-forwarded-for"
)
