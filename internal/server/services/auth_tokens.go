package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/server/gateway"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/sessions"
)

// VerifyTwoFactorRequest names the session to promote either by the bearer
// access token (preferred) or by id.
type VerifyTwoFactorRequest struct {
	UserID      int64
	Code        string
	AccessToken string
	SessionID   int64
}

// VerifyTwoFactor promotes a pending session once the user proves the second
// factor with a TOTP code or an unused recovery code.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, req VerifyTwoFactorRequest) (*AuthResult, error) {
	if strings.TrimSpace(req.Code) == "" {
		return failure(ValidationError, "verification code is required"), nil
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, req.UserID)
	if errors.Is(err, common.ErrorNotFound) {
		return failure(TwoFactorFailure, MsgTwoFactorDisabled), nil
	}
	if err != nil {
		return nil, err
	}
	if res := accountStateFailure(user); res != nil {
		return res, nil
	}
	if !user.RequiresTwoFactor() {
		return failure(TwoFactorFailure, MsgTwoFactorDisabled), nil
	}

	sess, err := s.resolveSession(ctx, user.ID, req.AccessToken, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return failure(SessionNotFound, MsgSessionNotFound), nil
	}

	rejected, err := s.checkSecondFactor(ctx, user, req.Code, true)
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return &AuthResult{Outcome: *rejected}, nil
	}

	now := s.now()
	err = s.repomanager.Sessions(s.db).MarkTwoFactorVerified(ctx, sess.ID, now)
	if errors.Is(err, common.ErrorNotFound) {
		return failure(SessionNotFound, MsgSessionNotFound), nil
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "second factor verified", "user_id", user.ID, "session_id", sess.ID)

	return &AuthResult{
		Outcome:      succeeded("two-factor verification successful"),
		Token:        sess.Token,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.TokenExpiry,
		User:         user,
		SessionID:    sess.ID,
		Source:       sess.TokenSource,
	}, nil
}

// resolveSession returns the caller's active session, or nil when it does
// not exist or belongs to somebody else.
func (s *AuthService) resolveSession(ctx context.Context, userID int64, accessToken string, sessionID int64) (*models.LoginSession, error) {
	repo := s.repomanager.Sessions(s.db)

	var (
		sess *models.LoginSession
		err  error
	)
	switch {
	case accessToken != "":
		sess, err = repo.GetByAccessToken(ctx, accessToken)
	case sessionID > 0:
		sess, err = repo.GetByID(ctx, sessionID)
	default:
		return nil, nil
	}
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID || !sess.IsActive {
		return nil, nil
	}
	return sess, nil
}

// RefreshToken rotates the token pair of the session holding refreshToken.
// Presenting a refresh token that was already rotated out revokes the
// session it used to belong to.
func (s *AuthService) RefreshToken(ctx context.Context, accessToken, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return failure(ValidationError, "refresh token is required"), nil
	}
	repo := s.repomanager.Sessions(s.db)
	now := s.now()

	sess, err := repo.GetByRefreshToken(ctx, refreshToken)
	if errors.Is(err, common.ErrorNotFound) {
		reused, rerr := repo.GetByPreviousRefreshToken(ctx, refreshToken)
		switch {
		case rerr == nil:
			if err := repo.Deactivate(ctx, reused.ID, now); err != nil {
				return nil, err
			}
			s.logger.Warn(ctx, "refresh token reuse detected, session revoked",
				"session_id", reused.ID, "user_id", reused.UserID)
		case !errors.Is(rerr, common.ErrorNotFound):
			return nil, rerr
		}
		return failure(SessionNotFound, MsgSessionNotFound), nil
	}
	if err != nil {
		return nil, err
	}

	if accessToken != "" && !sameToken(accessToken, sess.Token) {
		s.logger.Warn(ctx, "refresh rejected, token pair mismatch", "session_id", sess.ID)
		return failure(SessionNotFound, MsgSessionNotFound), nil
	}
	if !sess.RefreshExpiry.IsZero() && !now.Before(sess.RefreshExpiry) {
		if err := repo.Deactivate(ctx, sess.ID, now); err != nil {
			return nil, err
		}
		return failure(SessionNotFound, common.ErrRefreshTokenExpired.Error()), nil
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if res := accountStateFailure(user); res != nil {
		if err := repo.Deactivate(ctx, sess.ID, now); err != nil {
			return nil, err
		}
		return res, nil
	}

	// A gateway refresh token is single use on the remote side too, so only
	// the caller that claims the row may present it.
	current := refreshToken
	if s.refreshesRemotely(sess) {
		claim, err := s.tokens.IssueRefreshToken()
		if err != nil {
			return nil, err
		}
		err = repo.ClaimRefresh(ctx, sess.ID, refreshToken, claim)
		if errors.Is(err, common.ErrConflict) {
			s.logger.Warn(ctx, "refresh lost a concurrent rotation", "session_id", sess.ID)
			return failure(SessionNotFound, MsgSessionNotFound), nil
		}
		if err != nil {
			return nil, err
		}
		current = claim
	}

	pair, refused, err := s.renewPair(ctx, sess, user)
	if err != nil {
		return nil, err
	}
	if refused {
		err := repo.DeactivateIfRefresh(ctx, sess.ID, current, now)
		if err != nil && !errors.Is(err, common.ErrConflict) {
			return nil, err
		}
		return failure(SessionNotFound, MsgSessionNotFound), nil
	}

	refreshTTL := s.refreshTTL
	if sess.IsRememberMe {
		refreshTTL = s.rememberMeTTL
	}
	err = repo.RotateTokens(ctx, sess.ID, current, sessions.Rotation{
		Token:         pair.access,
		RefreshToken:  pair.refresh,
		TokenExpiry:   pair.expiresAt,
		RefreshExpiry: now.Add(refreshTTL),
		Source:        pair.source,
		At:            now,
		Replaces:      refreshToken,
	})
	if errors.Is(err, common.ErrConflict) {
		s.logger.Warn(ctx, "refresh lost a concurrent rotation", "session_id", sess.ID)
		return failure(SessionNotFound, MsgSessionNotFound), nil
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "tokens rotated", "session_id", sess.ID, "user_id", user.ID, "source", string(pair.source))

	return &AuthResult{
		Outcome:           succeeded("token refreshed"),
		Token:             pair.access,
		RefreshToken:      pair.refresh,
		ExpiresAt:         pair.expiresAt,
		User:              user,
		SessionID:         sess.ID,
		RequiresTwoFactor: user.RequiresTwoFactor() && !sess.IsTwoFactorVerified,
		Source:            pair.source,
	}, nil
}

func (s *AuthService) refreshesRemotely(sess *models.LoginSession) bool {
	return sess.TokenSource == models.TokenSourceGateway && s.gateway != nil
}

// renewPair asks the gateway for gateway-issued sessions and mints locally
// otherwise or when the gateway is unreachable. refused reports a definite
// gateway rejection.
func (s *AuthService) renewPair(ctx context.Context, sess *models.LoginSession, user *models.User) (pair tokenPair, refused bool, err error) {
	if s.refreshesRemotely(sess) {
		env, gwErr := s.gateway.Refresh(ctx, sess.RefreshToken, s.hotelFor(user))
		switch {
		case gwErr == nil:
			pair, err = s.pairFromGateway(ctx, user, env)
			return pair, false, err
		case errors.Is(gwErr, gateway.ErrUnavailable):
			s.logger.Warn(ctx, "identity gateway unavailable, minting local tokens", "session_id", sess.ID, "error", gwErr)
		default:
			s.logger.Info(ctx, "identity gateway refused refresh", "session_id", sess.ID, "error", gwErr)
			return tokenPair{}, true, nil
		}
	}
	pair, err = s.mintLocalPair(user)
	return pair, false, err
}

// Logout ends the session holding refreshToken. The remote revoke is best
// effort; the result reflects the local deactivation only.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (bool, error) {
	if refreshToken == "" {
		return false, nil
	}
	repo := s.repomanager.Sessions(s.db)

	sess, err := repo.GetByRefreshToken(ctx, refreshToken)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.endSession(ctx, sess)
}

// RevokeCurrent ends the session the access token belongs to.
func (s *AuthService) RevokeCurrent(ctx context.Context, accessToken string) (bool, error) {
	if accessToken == "" {
		return false, nil
	}
	sess, err := s.repomanager.Sessions(s.db).GetByAccessToken(ctx, accessToken)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.endSession(ctx, sess)
}

func (s *AuthService) endSession(ctx context.Context, sess *models.LoginSession) (bool, error) {
	if sess.TokenSource == models.TokenSourceGateway && s.gateway != nil {
		hotel := s.defaultHotel
		if user, err := s.repomanager.Users(s.db).GetByID(ctx, sess.UserID); err == nil {
			hotel = s.hotelFor(user)
		}
		if err := s.gateway.Logout(ctx, sess.RefreshToken, hotel); err != nil {
			s.logger.Info(ctx, "remote logout failed, continuing", "session_id", sess.ID, "error", err)
		}
	}

	if err := s.repomanager.Sessions(s.db).Deactivate(ctx, sess.ID, s.now()); err != nil {
		return false, err
	}
	s.logger.Info(ctx, "session ended", "session_id", sess.ID, "user_id", sess.UserID)
	return true, nil
}
