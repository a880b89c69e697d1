// Package netx resolves client network metadata recorded alongside issued tokens.
package netx

import (
	"net"
	"strings"
)

// ClientIP picks the originating client address. The first entry of
// X-Forwarded-For wins, then X-Real-IP, then the host part of remoteAddr.
// Values that do not parse as an IP are skipped; "" is returned if nothing fits.
func ClientIP(remoteAddr, forwardedFor, realIP string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}
	if ip := parseIP(realIP); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return parseIP(host)
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// TruncateUserAgent bounds a User-Agent value to max bytes.
func TruncateUserAgent(ua string, max int) string {
	ua = strings.TrimSpace(ua)
	if max <= 0 || len(ua) <= max {
		return ua
	}
	return ua[:max]
}
