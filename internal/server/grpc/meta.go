package grpc

import (
	"context"
	"net"
	"strings"

	"github.com/dmitrijs2005/perfectkey/internal/server/services"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

const (
	forwardedForKey = "x-forwarded-for"
	userAgentKey    = "user-agent"
	clientAgentKey  = "x-client-user-agent"
)

// requestMeta describes the client for session enrichment. A proxy supplied
// x-forwarded-for wins over the socket address; x-client-user-agent wins
// over the user-agent that grpc-go prefixes with its own token.
func requestMeta(ctx context.Context, rememberMe bool) services.RequestMeta {
	m := services.RequestMeta{IPAddress: services.UnknownIP, RememberMe: rememberMe}

	md, _ := metadata.FromIncomingContext(ctx)
	if v := firstValue(md, forwardedForKey); v != "" {
		if ip := strings.TrimSpace(strings.Split(v, ",")[0]); ip != "" {
			m.IPAddress = ip
		}
	} else if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil && net.ParseIP(host) != nil {
			m.IPAddress = host
		}
	}

	m.UserAgent = firstValue(md, clientAgentKey)
	if m.UserAgent == "" {
		m.UserAgent = firstValue(md, userAgentKey)
	}
	return m
}

func firstValue(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
