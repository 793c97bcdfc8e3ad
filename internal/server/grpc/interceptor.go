package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const principalKey ctxKey = "principal"

type access int

const (
	// accessVerified needs a live session that passed two-factor when the
	// account requires it. Methods not listed below get this level.
	accessVerified access = iota
	accessPublic
	// accessPending accepts a session still waiting for its second factor.
	accessPending
	accessAdmin
)

var methodAccess = map[string]access{
	"Login":           accessPublic,
	"Register":        accessPublic,
	"RefreshToken":    accessPublic,
	"Logout":          accessPublic,
	"ForgotPassword":  accessPublic,
	"ResetPassword":   accessPublic,
	"GetUserHotels":   accessPublic,
	"ValidateSession": accessPublic,

	"VerifyTwoFactor": accessPending,
	"RevokeToken":     accessPending,
}

func accessFor(fullMethod string) access {
	prefix := "/" + ServiceName + "/"
	if !strings.HasPrefix(fullMethod, prefix) {
		return accessVerified
	}
	name := strings.TrimPrefix(fullMethod, prefix)
	if a, ok := methodAccess[name]; ok {
		return a
	}
	if strings.HasPrefix(name, "Admin") {
		return accessAdmin
	}
	return accessVerified
}

// PrincipalFrom returns the caller stored by the interceptor.
func PrincipalFrom(ctx context.Context) (*services.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*services.Principal)
	return p, ok && p != nil
}

func accessTokenFrom(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			return strings.TrimPrefix(values[0], "Bearer ")
		}
	}
	return ""
}

func (s *GRPCServer) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	ctx = logging.ContextWith(ctx, "rpc", info.FullMethod)

	level := accessFor(info.FullMethod)
	if level == accessPublic {
		return handler(ctx, req)
	}

	accessToken := accessTokenFrom(ctx)
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	p, err := s.authenticator.Authenticate(ctx, accessToken)
	if err != nil {
		s.logger.Error(ctx, "authenticate failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	if p == nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired session")
	}

	if level != accessPending && p.TwoFactorRequired && !p.TwoFactorVerified {
		return nil, status.Error(codes.Unauthenticated, "two-factor verification required")
	}
	if level == accessAdmin && !p.IsAdmin() {
		s.logger.Warn(ctx, "admin method refused", "user_id", p.UserID)
		return nil, status.Error(codes.PermissionDenied, "administrator role required")
	}

	ctx = context.WithValue(ctx, principalKey, p)
	ctx = logging.ContextWith(ctx, "caller_id", p.UserID, "caller_session_id", p.SessionID)
	return handler(ctx, req)
}
