package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/perfectkey/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// outcomeError maps an unsuccessful Outcome onto a status. Successful
// outcomes map to nil.
func outcomeError(o services.Outcome) error {
	if o.Success {
		return nil
	}
	if o.Message == services.MsgTooManyAttempts {
		return status.Error(codes.ResourceExhausted, o.Message)
	}
	switch o.Failure {
	case services.AuthenticationFailure, services.TwoFactorFailure, services.SessionNotFound:
		return status.Error(codes.Unauthenticated, o.Message)
	case services.AccountStateError:
		return status.Error(codes.PermissionDenied, o.Message)
	case services.ValidationError:
		return status.Error(codes.InvalidArgument, o.Message)
	case services.UpstreamUnavailable:
		return status.Error(codes.Unavailable, o.Message)
	}
	return status.Error(codes.Unknown, o.Message)
}

// internalError logs err and hides it from the caller.
func (s *GRPCServer) internalError(ctx context.Context, op string, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return status.Error(codes.NotFound, "not found")
	}
	s.logger.Error(ctx, "request failed", "op", op, "error", err)
	return status.Error(codes.Internal, "internal error")
}

func principal(ctx context.Context) (*services.Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing session")
	}
	return p, nil
}

func (s *GRPCServer) authResult(ctx context.Context, op string, res *services.AuthResult, err error) (*AuthResponse, error) {
	if err != nil {
		return nil, s.internalError(ctx, op, err)
	}
	if err := outcomeError(res.Outcome); err != nil {
		return nil, err
	}
	return authResponse(res), nil
}

func (s *GRPCServer) message(ctx context.Context, op string, o *services.Outcome, err error) (*MessageResponse, error) {
	if err != nil {
		return nil, s.internalError(ctx, op, err)
	}
	if err := outcomeError(*o); err != nil {
		return nil, err
	}
	return &MessageResponse{Message: o.Message}, nil
}

func (s *GRPCServer) setup(ctx context.Context, op string, r *services.TwoFactorSetup, err error) (*TwoFactorSetupResponse, error) {
	if err != nil {
		return nil, s.internalError(ctx, op, err)
	}
	if err := outcomeError(r.Outcome); err != nil {
		return nil, err
	}
	return &TwoFactorSetupResponse{
		Message:       r.Message,
		Secret:        r.Secret,
		AuthURI:       r.AuthURI,
		RecoveryCodes: r.RecoveryCodes,
	}, nil
}

func (s *GRPCServer) recoveryCodes(ctx context.Context, op string, r *services.RecoveryCodeList, err error) (*RecoveryCodesResponse, error) {
	if err != nil {
		return nil, s.internalError(ctx, op, err)
	}
	if err := outcomeError(r.Outcome); err != nil {
		return nil, err
	}
	return &RecoveryCodesResponse{Message: r.Message, Codes: r.Codes}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	res, err := s.auth.Login(ctx, req.UserName, req.Password, req.HotelCode, requestMeta(ctx, req.RememberMe))
	return s.authResult(ctx, "login", res, err)
}

func (s *GRPCServer) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	res, err := s.auth.Register(ctx, services.RegisterRequest{
		UserName:  req.UserName,
		Password:  req.Password,
		Email:     req.Email,
		FullName:  req.FullName,
		HotelCode: req.HotelCode,
	})
	if err != nil {
		return nil, s.internalError(ctx, "register", err)
	}
	if err := outcomeError(res.Outcome); err != nil {
		return nil, err
	}
	return &RegisterResponse{Message: res.Message, User: userInfo(res.User)}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *RefreshTokenRequest) (*AuthResponse, error) {
	access := req.AccessToken
	if access == "" {
		access = accessTokenFrom(ctx)
	}
	res, err := s.auth.RefreshToken(ctx, access, req.RefreshToken)
	return s.authResult(ctx, "refresh token", res, err)
}

func (s *GRPCServer) Logout(ctx context.Context, req *LogoutRequest) (*LogoutResponse, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token is required")
	}
	ok, err := s.auth.Logout(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.internalError(ctx, "logout", err)
	}
	return &LogoutResponse{LoggedOut: ok}, nil
}

func (s *GRPCServer) ForgotPassword(ctx context.Context, req *ForgotPasswordRequest) (*MessageResponse, error) {
	o, err := s.auth.ForgotPassword(ctx, req.Email)
	return s.message(ctx, "forgot password", o, err)
}

func (s *GRPCServer) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*MessageResponse, error) {
	o, err := s.auth.ResetPassword(ctx, req.Token, req.NewPassword)
	return s.message(ctx, "reset password", o, err)
}

func (s *GRPCServer) GetUserHotels(ctx context.Context, req *HotelsRequest) (*HotelsResponse, error) {
	return &HotelsResponse{Hotels: s.auth.GetUserHotels(ctx, req.UserName)}, nil
}

func (s *GRPCServer) ValidateSession(ctx context.Context, _ *Empty) (*ValidateSessionResponse, error) {
	ok, err := s.auth.ValidateSession(ctx, accessTokenFrom(ctx))
	if err != nil {
		return nil, s.internalError(ctx, "validate session", err)
	}
	return &ValidateSessionResponse{Valid: ok}, nil
}

func (s *GRPCServer) VerifyTwoFactor(ctx context.Context, req *CodeRequest) (*AuthResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.auth.VerifyTwoFactor(ctx, services.VerifyTwoFactorRequest{
		UserID:      p.UserID,
		Code:        req.Code,
		AccessToken: p.AccessToken,
		SessionID:   p.SessionID,
	})
	return s.authResult(ctx, "verify two factor", res, err)
}

func (s *GRPCServer) RevokeToken(ctx context.Context, _ *Empty) (*LogoutResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.auth.RevokeCurrent(ctx, p.AccessToken)
	if err != nil {
		return nil, s.internalError(ctx, "revoke token", err)
	}
	return &LogoutResponse{LoggedOut: ok}, nil
}

func (s *GRPCServer) EnableTwoFactor(ctx context.Context, _ *Empty) (*TwoFactorSetupResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.auth.EnableTwoFactor(ctx, p.UserID)
	return s.setup(ctx, "enable two factor", r, err)
}

func (s *GRPCServer) ConfirmEnableTwoFactor(ctx context.Context, req *CodeRequest) (*MessageResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.auth.ConfirmEnableTwoFactor(ctx, p.UserID, req.Code)
	return s.message(ctx, "confirm two factor", o, err)
}

func (s *GRPCServer) DisableTwoFactor(ctx context.Context, req *CodeRequest) (*MessageResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.auth.DisableTwoFactor(ctx, p.UserID, req.Code)
	return s.message(ctx, "disable two factor", o, err)
}

func (s *GRPCServer) RegenerateTwoFactor(ctx context.Context, _ *Empty) (*TwoFactorSetupResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.auth.RegenerateTwoFactor(ctx, p.UserID)
	return s.setup(ctx, "regenerate two factor", r, err)
}

func (s *GRPCServer) GetRecoveryCodes(ctx context.Context, _ *Empty) (*RecoveryCodesResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.auth.GetRecoveryCodes(ctx, p.UserID)
	return s.recoveryCodes(ctx, "get recovery codes", r, err)
}

func (s *GRPCServer) GenerateNewRecoveryCodes(ctx context.Context, req *CodeRequest) (*RecoveryCodesResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.auth.GenerateNewRecoveryCodes(ctx, p.UserID, req.Code)
	return s.recoveryCodes(ctx, "generate recovery codes", r, err)
}

func (s *GRPCServer) ListSessions(ctx context.Context, req *ListSessionsRequest) (*SessionPageResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	page, err := s.sessions.ListSessions(ctx, p.UserID, p.SessionID, sessions.ListFilter{
		Page:       req.Page,
		PageSize:   req.PageSize,
		Sort:       models.ParseSessionSort(req.Sort),
		ActiveOnly: req.ActiveOnly,
	})
	if err != nil {
		return nil, s.internalError(ctx, "list sessions", err)
	}
	return &SessionPageResponse{
		Sessions:   sessionInfos(page.Items),
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}, nil
}

func (s *GRPCServer) GetSession(ctx context.Context, req *SessionRequest) (*SessionInfo, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.sessions.SessionDetail(ctx, p.UserID, req.SessionID, p.SessionID)
	if err != nil {
		return nil, s.internalError(ctx, "get session", err)
	}
	info := sessionInfo(*v)
	return &info, nil
}

func (s *GRPCServer) LogoutSession(ctx context.Context, req *SessionRequest) (*LogoutResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.sessions.LogoutSession(ctx, p.UserID, req.SessionID)
	if err != nil {
		return nil, s.internalError(ctx, "logout session", err)
	}
	if !ok {
		return nil, status.Error(codes.NotFound, services.MsgSessionNotFound)
	}
	return &LogoutResponse{LoggedOut: true}, nil
}

func (s *GRPCServer) LogoutOtherSessions(ctx context.Context, _ *Empty) (*CountResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.sessions.LogoutOtherSessions(ctx, p.UserID, p.SessionID)
	if err != nil {
		return nil, s.internalError(ctx, "logout other sessions", err)
	}
	return &CountResponse{Count: n}, nil
}

func (s *GRPCServer) LogoutAllSessions(ctx context.Context, _ *Empty) (*CountResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.sessions.LogoutAllSessions(ctx, p.UserID)
	if err != nil {
		return nil, s.internalError(ctx, "logout all sessions", err)
	}
	return &CountResponse{Count: n}, nil
}

func (s *GRPCServer) GetSessionStats(ctx context.Context, _ *Empty) (*SessionStatsResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.sessions.Stats(ctx, p.UserID)
	if err != nil {
		return nil, s.internalError(ctx, "session stats", err)
	}
	return statsResponse(st), nil
}

func (s *GRPCServer) AvatarUploadURL(ctx context.Context, _ *Empty) (*AvatarUploadResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	key, url, err := s.profile.AvatarUploadURL(ctx, p.UserID)
	if err != nil {
		return nil, s.internalError(ctx, "avatar upload url", err)
	}
	return &AvatarUploadResponse{Key: key, URL: url}, nil
}

func (s *GRPCServer) SetAvatar(ctx context.Context, req *SetAvatarRequest) (*MessageResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.profile.SetAvatar(ctx, p.UserID, req.Key)
	return s.message(ctx, "set avatar", o, err)
}

func (s *GRPCServer) GetAvatarURL(ctx context.Context, _ *Empty) (*AvatarURLResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	url, err := s.profile.AvatarURL(ctx, p.UserID)
	if err != nil {
		return nil, s.internalError(ctx, "avatar url", err)
	}
	return &AvatarURLResponse{URL: url}, nil
}

func (s *GRPCServer) AdminEnableTwoFactor(ctx context.Context, req *TargetUserRequest) (*TwoFactorSetupResponse, error) {
	r, err := s.auth.AdminEnableTwoFactor(ctx, req.UserID)
	return s.setup(ctx, "admin enable two factor", r, err)
}

func (s *GRPCServer) AdminConfirmEnableTwoFactor(ctx context.Context, req *TargetUserRequest) (*MessageResponse, error) {
	o, err := s.auth.AdminConfirmEnableTwoFactor(ctx, req.UserID)
	return s.message(ctx, "admin confirm two factor", o, err)
}

func (s *GRPCServer) AdminDisableTwoFactor(ctx context.Context, req *TargetUserRequest) (*MessageResponse, error) {
	o, err := s.auth.AdminDisableTwoFactor(ctx, req.UserID)
	return s.message(ctx, "admin disable two factor", o, err)
}

func (s *GRPCServer) AdminRegenerateTwoFactor(ctx context.Context, req *TargetUserRequest) (*TwoFactorSetupResponse, error) {
	r, err := s.auth.AdminRegenerateTwoFactor(ctx, req.UserID)
	return s.setup(ctx, "admin regenerate two factor", r, err)
}

func (s *GRPCServer) AdminGetRecoveryCodes(ctx context.Context, req *TargetUserRequest) (*RecoveryCodesResponse, error) {
	r, err := s.auth.AdminGetRecoveryCodes(ctx, req.UserID)
	return s.recoveryCodes(ctx, "admin get recovery codes", r, err)
}

func (s *GRPCServer) AdminGenerateRecoveryCodes(ctx context.Context, req *TargetUserRequest) (*RecoveryCodesResponse, error) {
	r, err := s.auth.AdminGenerateRecoveryCodes(ctx, req.UserID)
	return s.recoveryCodes(ctx, "admin generate recovery codes", r, err)
}

func (s *GRPCServer) AdminLogoutUserSessions(ctx context.Context, req *TargetUserRequest) (*CountResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.sessions.AdminLogoutUserSessions(ctx, p.UserID, req.UserID)
	if err != nil {
		return nil, s.internalError(ctx, "admin logout user sessions", err)
	}
	return &CountResponse{Count: n}, nil
}

func (s *GRPCServer) AdminHotelSessions(ctx context.Context, req *HotelSessionsRequest) (*SessionsResponse, error) {
	if req.HotelGUID == "" {
		return nil, status.Error(codes.InvalidArgument, "hotel guid is required")
	}
	views, err := s.sessions.HotelSessions(ctx, req.HotelGUID, req.ActiveOnly)
	if err != nil {
		return nil, s.internalError(ctx, "hotel sessions", err)
	}
	return &SessionsResponse{Sessions: sessionInfos(views)}, nil
}
