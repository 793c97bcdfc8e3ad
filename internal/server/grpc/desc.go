package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "perfectkey.auth.v1.AuthService"

// AuthServiceServer is implemented by GRPCServer. The descriptor below routes
// every method to it.
type AuthServiceServer interface {
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*AuthResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	ForgotPassword(context.Context, *ForgotPasswordRequest) (*MessageResponse, error)
	ResetPassword(context.Context, *ResetPasswordRequest) (*MessageResponse, error)
	GetUserHotels(context.Context, *HotelsRequest) (*HotelsResponse, error)
	ValidateSession(context.Context, *Empty) (*ValidateSessionResponse, error)

	VerifyTwoFactor(context.Context, *CodeRequest) (*AuthResponse, error)
	RevokeToken(context.Context, *Empty) (*LogoutResponse, error)

	EnableTwoFactor(context.Context, *Empty) (*TwoFactorSetupResponse, error)
	ConfirmEnableTwoFactor(context.Context, *CodeRequest) (*MessageResponse, error)
	DisableTwoFactor(context.Context, *CodeRequest) (*MessageResponse, error)
	RegenerateTwoFactor(context.Context, *Empty) (*TwoFactorSetupResponse, error)
	GetRecoveryCodes(context.Context, *Empty) (*RecoveryCodesResponse, error)
	GenerateNewRecoveryCodes(context.Context, *CodeRequest) (*RecoveryCodesResponse, error)

	ListSessions(context.Context, *ListSessionsRequest) (*SessionPageResponse, error)
	GetSession(context.Context, *SessionRequest) (*SessionInfo, error)
	LogoutSession(context.Context, *SessionRequest) (*LogoutResponse, error)
	LogoutOtherSessions(context.Context, *Empty) (*CountResponse, error)
	LogoutAllSessions(context.Context, *Empty) (*CountResponse, error)
	GetSessionStats(context.Context, *Empty) (*SessionStatsResponse, error)

	AvatarUploadURL(context.Context, *Empty) (*AvatarUploadResponse, error)
	SetAvatar(context.Context, *SetAvatarRequest) (*MessageResponse, error)
	GetAvatarURL(context.Context, *Empty) (*AvatarURLResponse, error)

	AdminEnableTwoFactor(context.Context, *TargetUserRequest) (*TwoFactorSetupResponse, error)
	AdminConfirmEnableTwoFactor(context.Context, *TargetUserRequest) (*MessageResponse, error)
	AdminDisableTwoFactor(context.Context, *TargetUserRequest) (*MessageResponse, error)
	AdminRegenerateTwoFactor(context.Context, *TargetUserRequest) (*TwoFactorSetupResponse, error)
	AdminGetRecoveryCodes(context.Context, *TargetUserRequest) (*RecoveryCodesResponse, error)
	AdminGenerateRecoveryCodes(context.Context, *TargetUserRequest) (*RecoveryCodesResponse, error)
	AdminLogoutUserSessions(context.Context, *TargetUserRequest) (*CountResponse, error)
	AdminHotelSessions(context.Context, *HotelSessionsRequest) (*SessionsResponse, error)
}

// FullMethod returns the "/service/method" path used in interceptors.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds the MethodDesc for one handler: decode, run the interceptor
// chain if any, dispatch.
func unary[Req, Resp any](name string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(AuthServiceServer)
			if interceptor == nil {
				return call(h, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(h, ctx, req.(*Req))
			})
		},
	}
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", AuthServiceServer.Login),
		unary("Register", AuthServiceServer.Register),
		unary("RefreshToken", AuthServiceServer.RefreshToken),
		unary("Logout", AuthServiceServer.Logout),
		unary("ForgotPassword", AuthServiceServer.ForgotPassword),
		unary("ResetPassword", AuthServiceServer.ResetPassword),
		unary("GetUserHotels", AuthServiceServer.GetUserHotels),
		unary("ValidateSession", AuthServiceServer.ValidateSession),

		unary("VerifyTwoFactor", AuthServiceServer.VerifyTwoFactor),
		unary("RevokeToken", AuthServiceServer.RevokeToken),

		unary("EnableTwoFactor", AuthServiceServer.EnableTwoFactor),
		unary("ConfirmEnableTwoFactor", AuthServiceServer.ConfirmEnableTwoFactor),
		unary("DisableTwoFactor", AuthServiceServer.DisableTwoFactor),
		unary("RegenerateTwoFactor", AuthServiceServer.RegenerateTwoFactor),
		unary("GetRecoveryCodes", AuthServiceServer.GetRecoveryCodes),
		unary("GenerateNewRecoveryCodes", AuthServiceServer.GenerateNewRecoveryCodes),

		unary("ListSessions", AuthServiceServer.ListSessions),
		unary("GetSession", AuthServiceServer.GetSession),
		unary("LogoutSession", AuthServiceServer.LogoutSession),
		unary("LogoutOtherSessions", AuthServiceServer.LogoutOtherSessions),
		unary("LogoutAllSessions", AuthServiceServer.LogoutAllSessions),
		unary("GetSessionStats", AuthServiceServer.GetSessionStats),

		unary("AvatarUploadURL", AuthServiceServer.AvatarUploadURL),
		unary("SetAvatar", AuthServiceServer.SetAvatar),
		unary("GetAvatarURL", AuthServiceServer.GetAvatarURL),

		unary("AdminEnableTwoFactor", AuthServiceServer.AdminEnableTwoFactor),
		unary("AdminConfirmEnableTwoFactor", AuthServiceServer.AdminConfirmEnableTwoFactor),
		unary("AdminDisableTwoFactor", AuthServiceServer.AdminDisableTwoFactor),
		unary("AdminRegenerateTwoFactor", AuthServiceServer.AdminRegenerateTwoFactor),
		unary("AdminGetRecoveryCodes", AuthServiceServer.AdminGetRecoveryCodes),
		unary("AdminGenerateRecoveryCodes", AuthServiceServer.AdminGenerateRecoveryCodes),
		unary("AdminLogoutUserSessions", AuthServiceServer.AdminLogoutUserSessions),
		unary("AdminHotelSessions", AuthServiceServer.AdminHotelSessions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "perfectkey/auth/v1/auth.json",
}

// RegisterAuthServiceServer attaches srv to s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&authServiceDesc, srv)
}
